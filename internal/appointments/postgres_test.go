package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columnNames = []string{"id", "patient_id", "provider_id", "start_time", "duration_minutes", "service_type", "status", "price_cents", "meeting_link", "notes", "created_at", "updated_at"}

func appointmentRow(rows *pgxmock.Rows, id uuid.UUID, status Status, start time.Time, price pgtype.Int8) *pgxmock.Rows {
	return rows.AddRow(id.String(), "pat-1", "prov-1", start, 30, "quitline_smoking_cessation", string(status), price, "", "", start, start)
}

func TestPostgresStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)

	id := uuid.New()
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id = \\$1").
		WithArgs(id.String()).
		WillReturnRows(appointmentRow(pgxmock.NewRows(columnNames), id, StatusScheduled, start, pgtype.Int8{Int64: 15000, Valid: true}))

	appt, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, appt.ID)
	assert.Equal(t, TypeQuitlineSmoking, appt.Type)
	require.NotNil(t, appt.PriceCents)
	assert.Equal(t, int64(15000), *appt.PriceCents)

	missing := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id = \\$1").
		WithArgs(missing.String()).
		WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(context.Background(), missing)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateWithinSlotLocksProviderAndInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	appt := newAppt("prov-1", "pat-1", start)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs("prov-1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs("prov-1", start, start.Add(30*time.Minute)).
		WillReturnRows(pgxmock.NewRows(columnNames))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "pat-1", "prov-1", start, 30, "general_consultation", "scheduled", pgtype.Int8{}, "", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.CreateWithinSlot(context.Background(), appt, rejectOverlap))
	assert.NotEqual(t, uuid.Nil, appt.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateWithinSlotRollsBackWhenGuardFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	appt := newAppt("prov-1", "pat-2", start)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs("prov-1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs("prov-1", start, start.Add(30*time.Minute)).
		WillReturnRows(appointmentRow(pgxmock.NewRows(columnNames), uuid.New(), StatusConfirmed, start, pgtype.Int8{}))
	mock.ExpectRollback()

	err = store.CreateWithinSlot(context.Background(), appt, rejectOverlap)
	assert.ErrorIs(t, err, errSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatusConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)

	id := uuid.New()
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE appointments SET status").
		WithArgs(id.String(), "scheduled", "confirmed").
		WillReturnRows(appointmentRow(pgxmock.NewRows(columnNames), id, StatusConfirmed, start, pgtype.Int8{}))
	updated, err := store.UpdateStatus(context.Background(), id, StatusScheduled, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	// The loser of a race sees no row updated, but the appointment exists.
	mock.ExpectQuery("UPDATE appointments SET status").
		WithArgs(id.String(), "scheduled", "confirmed").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id = \\$1").
		WithArgs(id.String()).
		WillReturnRows(appointmentRow(pgxmock.NewRows(columnNames), id, StatusConfirmed, start, pgtype.Int8{}))
	_, err = store.UpdateStatus(context.Background(), id, StatusScheduled, StatusConfirmed)
	assert.ErrorIs(t, err, ErrStatusConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}
