package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLDirectory reads patients and providers from the shared relational store.
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory creates a directory backed by database/sql.
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	if db == nil {
		panic("directory: sql db required")
	}
	return &SQLDirectory{db: db}
}

func (d *SQLDirectory) Patient(ctx context.Context, id string) (*Patient, error) {
	var (
		p     Patient
		email sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `SELECT id, full_name, email FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: load patient: %w", err)
	}
	p.Email = email.String
	return &p, nil
}

func (d *SQLDirectory) Provider(ctx context.Context, id string) (*Provider, error) {
	var (
		p         Provider
		specialty sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `SELECT id, full_name, specialty FROM providers WHERE id = $1 AND active`, id).
		Scan(&p.ID, &p.Name, &specialty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: load provider: %w", err)
	}
	p.Specialty = specialty.String
	return &p, nil
}
