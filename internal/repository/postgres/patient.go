package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/database"
	apperrors "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/errors"
)

// PatientRepository is the PostgreSQL PatientRepository.
type PatientRepository struct {
	pool database.DBTX
}

// NewPatientRepository creates a PostgreSQL-backed patient repository.
func NewPatientRepository(pool database.DBTX) *PatientRepository {
	return &PatientRepository{pool: pool}
}

func (r *PatientRepository) DeleteAll(ctx context.Context) (n int64, err error) {
	const query = `DELETE FROM patients`
	ctx, end := database.TraceQuery(ctx, system, "DeleteAllPatients", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete patients: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PatientRepository) Insert(ctx context.Context, p *domain.Patient) (err error) {
	const query = `
		INSERT INTO patients (id, name, date_of_birth, gender, id_number, phone, email, address, external_customer_id, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	ctx, end := database.TraceQuery(ctx, system, "InsertPatient", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.DateOfBirth,
		p.Gender,
		p.IDNumber,
		p.Phone,
		p.Email,
		p.Address,
		p.ExternalCustomerID,
		p.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("insert patient %s: %w", p.ExternalCustomerID, err)
	}
	return nil
}

func (r *PatientRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

// GetByID returns apperrors.ErrNotFound when no patient has id.
func (r *PatientRepository) GetByID(ctx context.Context, id string) (*domain.Patient, error) {
	const query = `
		SELECT id, name, date_of_birth, gender, id_number, phone, email, address, external_customer_id, synced_at
		FROM patients
		WHERE id = $1`

	var p domain.Patient
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.DateOfBirth,
		&p.Gender,
		&p.IDNumber,
		&p.Phone,
		&p.Email,
		&p.Address,
		&p.ExternalCustomerID,
		&p.SyncedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("patient", id)
		}
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return &p, nil
}
