package postgres

import (
	"context"
	"fmt"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/database"
)

const system = "postgresql"

// MedicationRepository is the PostgreSQL MedicationRepository.
type MedicationRepository struct {
	pool database.DBTX
}

// NewMedicationRepository creates a PostgreSQL-backed medication repository.
func NewMedicationRepository(pool database.DBTX) *MedicationRepository {
	return &MedicationRepository{pool: pool}
}

// DeleteAll removes every medication and returns how many were removed.
func (r *MedicationRepository) DeleteAll(ctx context.Context) (n int64, err error) {
	const query = `DELETE FROM medications`
	ctx, end := database.TraceQuery(ctx, system, "DeleteAllMedications", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete medications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Insert adds one medication.
func (r *MedicationRepository) Insert(ctx context.Context, m *domain.Medication) (err error) {
	const query = `
		INSERT INTO medications (id, name, strength, count, manufacturer, external_product_id, unit_price, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	ctx, end := database.TraceQuery(ctx, system, "InsertMedication", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		m.ID,
		m.Name,
		m.Strength,
		m.Count,
		m.Manufacturer,
		m.ExternalProductID,
		m.UnitPrice,
		m.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("insert medication %s: %w", m.ExternalProductID, err)
	}
	return nil
}

// Count returns the number of stored medications.
func (r *MedicationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM medications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count medications: %w", err)
	}
	return n, nil
}

// GetByIDs returns the medications with the given ids.
func (r *MedicationRepository) GetByIDs(ctx context.Context, ids []string) (_ []domain.Medication, err error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const query = `
		SELECT id, name, strength, count, manufacturer, external_product_id, unit_price, synced_at
		FROM medications
		WHERE id = ANY($1)`
	ctx, end := database.TraceQuery(ctx, system, "GetMedicationsByIDs", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get medications: %w", err)
	}
	defer rows.Close()

	var out []domain.Medication
	for rows.Next() {
		var m domain.Medication
		if err := rows.Scan(
			&m.ID,
			&m.Name,
			&m.Strength,
			&m.Count,
			&m.Manufacturer,
			&m.ExternalProductID,
			&m.UnitPrice,
			&m.SyncedAt,
		); err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medications: %w", err)
	}
	return out, nil
}
