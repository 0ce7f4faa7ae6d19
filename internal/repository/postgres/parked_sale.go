package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/repository"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/database"
)

// ParkedSaleRepository is the PostgreSQL ParkedSaleRepository.
type ParkedSaleRepository struct {
	pool database.DBTX
}

// NewParkedSaleRepository creates a PostgreSQL-backed parked sale repository.
func NewParkedSaleRepository(pool database.DBTX) *ParkedSaleRepository {
	return &ParkedSaleRepository{pool: pool}
}

const parkedSaleColumns = `id, prescription_id, external_sale_id, reference_number, status, total_price, total_tax, created_at`

// Create records a parked sale.
func (r *ParkedSaleRepository) Create(ctx context.Context, rec *domain.ParkedSaleRecord) (err error) {
	const query = `
		INSERT INTO parked_sales (` + parkedSaleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	ctx, end := database.TraceQuery(ctx, system, "CreateParkedSale", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.PrescriptionID,
		rec.ExternalSaleID,
		rec.Reference,
		rec.Status,
		rec.TotalPrice,
		rec.TotalTax,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create parked sale %s: %w", rec.ExternalSaleID, err)
	}
	return nil
}

// List returns one page of parked sales, newest first, and the total count.
func (r *ParkedSaleRepository) List(ctx context.Context, offset, limit int) ([]domain.ParkedSaleRecord, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM parked_sales`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count parked sales: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+parkedSaleColumns+`
		FROM parked_sales
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list parked sales: %w", err)
	}
	out, err := scanParkedSales(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListByPrescription returns every sale parked for a prescription.
func (r *ParkedSaleRepository) ListByPrescription(ctx context.Context, prescriptionID string) ([]domain.ParkedSaleRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+parkedSaleColumns+`
		FROM parked_sales
		WHERE prescription_id = $1
		ORDER BY created_at DESC`, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list parked sales for %s: %w", prescriptionID, err)
	}
	return scanParkedSales(rows)
}

func scanParkedSales(rows pgx.Rows) ([]domain.ParkedSaleRecord, error) {
	defer rows.Close()

	var out []domain.ParkedSaleRecord
	for rows.Next() {
		var rec domain.ParkedSaleRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.PrescriptionID,
			&rec.ExternalSaleID,
			&rec.Reference,
			&rec.Status,
			&rec.TotalPrice,
			&rec.TotalTax,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan parked sale: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parked sales: %w", err)
	}
	return out, nil
}

// NewStore returns the PostgreSQL repositories sharing pool.
func NewStore(pool database.DBTX) repository.Store {
	return repository.Store{
		Medications: NewMedicationRepository(pool),
		Patients:    NewPatientRepository(pool),
		ParkedSales: NewParkedSaleRepository(pool),
	}
}
