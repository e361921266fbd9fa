package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const formColumns = `appointment_id, patient_id, form_data, completed, completed_at, created_at, updated_at`

// PostgresStore keeps intake forms in the intake_forms table.
type PostgresStore struct {
	db pgxDB
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("intake: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithDB(db pgxDB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ensure(ctx context.Context, appointmentID uuid.UUID, patientID string) (*Form, error) {
	insert := `INSERT INTO intake_forms (appointment_id, patient_id)
		VALUES ($1, $2)
		ON CONFLICT (appointment_id) DO NOTHING`
	if _, err := s.db.Exec(ctx, insert, appointmentID.String(), patientID); err != nil {
		return nil, fmt.Errorf("intake: ensure form: %w", err)
	}
	query := `SELECT ` + formColumns + ` FROM intake_forms WHERE appointment_id = $1`
	form, err := scanForm(s.db.QueryRow(ctx, query, appointmentID.String()))
	if err != nil {
		return nil, fmt.Errorf("intake: load form: %w", err)
	}
	return form, nil
}

func (s *PostgresStore) Submit(ctx context.Context, appointmentID uuid.UUID, patientID string, data json.RawMessage) (*Form, error) {
	query := `INSERT INTO intake_forms (appointment_id, patient_id, form_data, completed, completed_at)
		VALUES ($1, $2, $3, TRUE, now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET form_data = EXCLUDED.form_data,
			completed = TRUE,
			completed_at = COALESCE(intake_forms.completed_at, now()),
			updated_at = now()
		RETURNING ` + formColumns
	form, err := scanForm(s.db.QueryRow(ctx, query, appointmentID.String(), patientID, []byte(data)))
	if err != nil {
		return nil, fmt.Errorf("intake: submit form: %w", err)
	}
	return form, nil
}

func scanForm(row pgx.Row) (*Form, error) {
	var (
		form        Form
		id          string
		data        []byte
		completedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &form.PatientID, &data, &form.Completed, &completedAt, &form.CreatedAt, &form.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("intake: invalid appointment id %q: %w", id, err)
	}
	form.AppointmentID = parsed
	if len(data) > 0 {
		form.FormData = json.RawMessage(data)
	}
	if completedAt.Valid {
		t := completedAt.Time
		form.CompletedAt = &t
	}
	return &form, nil
}
