package payments

import (
	"context"
	"errors"
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

const sessionColumns = `id, appointment_id, amount_cents, currency, status, gateway, gateway_reference, redirect_url, created_at, updated_at`

// uniqueViolation is the Postgres SQLSTATE raised by the pending-session index.
const uniqueViolation = "23505"

// PostgresStore persists payment sessions in the payment_sessions table.
type PostgresStore struct {
	db pgxDB
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithDB(db pgxDB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE id = $1`
	sess, err := scanSession(s.db.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("payments: get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Latest(ctx context.Context, appointmentID uuid.UUID) (*Session, error) {
	// a paid session outranks any later attempt
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions
		WHERE appointment_id = $1
		ORDER BY (status = 'paid') DESC, created_at DESC
		LIMIT 1`
	sess, err := scanSession(s.db.QueryRow(ctx, query, appointmentID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("payments: latest session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Insert(ctx context.Context, session *Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	query := `INSERT INTO payment_sessions (id, appointment_id, amount_cents, currency, status, gateway)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	err := s.db.QueryRow(ctx, query,
		session.ID.String(),
		session.AppointmentID.String(),
		session.AmountCents,
		session.Currency,
		string(session.Status),
		session.Gateway,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrPendingExists
		}
		return fmt.Errorf("payments: insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Attach(ctx context.Context, id uuid.UUID, reference, redirectURL string) (*Session, error) {
	query := `UPDATE payment_sessions
		SET gateway_reference = $2, redirect_url = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + sessionColumns
	sess, err := scanSession(s.db.QueryRow(ctx, query, id.String(), toPGText(reference), toPGText(redirectURL)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("payments: attach gateway reference: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE payment_sessions SET status = 'failed', updated_at = now()
		WHERE id = $1 AND status = 'pending'`
	if _, err := s.db.Exec(ctx, query, id.String()); err != nil {
		return fmt.Errorf("payments: mark failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatusByReference(ctx context.Context, reference string, status SessionStatus) (*Session, bool, error) {
	// A paid event also fails any newer pending attempt for the appointment,
	// so checkout is not offered again for money already taken.
	query := `WITH applied AS (
			UPDATE payment_sessions SET status = $2, updated_at = now()
			WHERE gateway_reference = $1 AND status <> 'paid' AND status <> $2
			RETURNING ` + sessionColumns + `
		), superseded AS (
			UPDATE payment_sessions SET status = 'failed', updated_at = now()
			WHERE $2 = 'paid' AND status = 'pending'
				AND appointment_id IN (SELECT appointment_id FROM applied)
				AND id NOT IN (SELECT id FROM applied)
		)
		SELECT ` + sessionColumns + ` FROM applied`
	sess, err := scanSession(s.db.QueryRow(ctx, query, reference, string(status)))
	if err == nil {
		return sess, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("payments: update by reference: %w", err)
	}

	current, err := scanSession(s.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM payment_sessions WHERE gateway_reference = $1`, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrSessionNotFound
		}
		return nil, false, fmt.Errorf("payments: load by reference: %w", err)
	}
	return current, false, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess      Session
		id        string
		apptID    string
		status    string
		reference pgtype.Text
		redirect  pgtype.Text
	)
	if err := row.Scan(
		&id,
		&apptID,
		&sess.AmountCents,
		&sess.Currency,
		&status,
		&sess.Gateway,
		&reference,
		&redirect,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if sess.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("payments: invalid session id %q: %w", id, err)
	}
	if sess.AppointmentID, err = uuid.Parse(apptID); err != nil {
		return nil, fmt.Errorf("payments: invalid appointment id %q: %w", apptID, err)
	}
	sess.Status = SessionStatus(status)
	sess.GatewayReference = reference.String
	sess.RedirectURL = redirect.String
	return &sess, nil
}

func toPGText(v string) pgtype.Text {
	return pgtype.Text{String: v, Valid: v != ""}
}
