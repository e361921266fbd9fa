package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxDB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type pgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `id, patient_id, provider_id, start_time, duration_minutes, service_type, status, price_cents, meeting_link, notes, created_at, updated_at`

const activeStatusFilter = `status IN ('scheduled', 'confirmed', 'in-progress')`

// PostgresStore stores appointments in Postgres.
type PostgresStore struct {
	db pgxDB
}

// NewPostgresStore creates a store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithDB(db pgxDB) *PostgresStore {
	if db == nil {
		panic("appointments: db required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) ListActiveForPatient(ctx context.Context, patientID string, from, to time.Time) ([]*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE patient_id = $1 AND ` + activeStatusFilter + ` AND start_time >= $2 AND start_time < $3
		ORDER BY start_time`
	rows, err := s.db.Query(ctx, query, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for patient: %w", err)
	}
	return collectAppointments(rows)
}

func (s *PostgresStore) ListActiveForProvider(ctx context.Context, providerID string, from, to time.Time) ([]*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE provider_id = $1 AND ` + activeStatusFilter + ` AND start_time >= $2 AND start_time < $3
		ORDER BY start_time`
	rows, err := s.db.Query(ctx, query, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for provider: %w", err)
	}
	return collectAppointments(rows)
}

// CreateWithinSlot takes a transaction-scoped advisory lock on the provider,
// reads the overlapping active appointments, runs the guard and inserts. Two
// bookings for the same provider can never interleave between guard and insert.
func (s *PostgresStore) CreateWithinSlot(ctx context.Context, appt *Appointment, guard SlotGuard) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, appt.ProviderID); err != nil {
		return fmt.Errorf("appointments: lock provider: %w", err)
	}

	end := appt.EndTime()
	overlapQuery := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE provider_id = $1 AND ` + activeStatusFilter + `
		AND start_time < $3 AND start_time + make_interval(mins => duration_minutes) > $2
		ORDER BY start_time`
	rows, err := tx.Query(ctx, overlapQuery, appt.ProviderID, appt.StartTime, end)
	if err != nil {
		return fmt.Errorf("appointments: load overlapping: %w", err)
	}
	overlapping, err := collectAppointments(rows)
	if err != nil {
		return err
	}
	if guard != nil {
		if err := guard(ctx, overlapping); err != nil {
			return err
		}
	}

	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	insert := `INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := tx.Exec(ctx, insert,
		appt.ID.String(),
		appt.PatientID,
		appt.ProviderID,
		appt.StartTime,
		appt.DurationMinutes,
		string(appt.Type),
		string(appt.Status),
		toPGInt8(appt.PriceCents),
		appt.MeetingLink,
		appt.Notes,
		appt.CreatedAt,
		appt.UpdatedAt,
	); err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit: %w", err)
	}
	committed = true
	return nil
}

// UpdateStatus moves an appointment from -> to only if it is still in `from`.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	query := `UPDATE appointments SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + appointmentColumns
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, id.String(), string(from), string(to)))
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointments: update status: %w", err)
	}
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusConflict
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt        Appointment
		id          string
		serviceType string
		status      string
		price       pgtype.Int8
	)
	if err := row.Scan(
		&id,
		&appt.PatientID,
		&appt.ProviderID,
		&appt.StartTime,
		&appt.DurationMinutes,
		&serviceType,
		&status,
		&price,
		&appt.MeetingLink,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("appointments: invalid id %q: %w", id, err)
	}
	appt.ID = parsed
	appt.Type = ServiceType(serviceType)
	appt.Status = Status(status)
	if price.Valid {
		v := price.Int64
		appt.PriceCents = &v
	}
	return &appt, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows: %w", err)
	}
	return out, nil
}

func toPGInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}
