// Package sqlite implements the repositories on SQLite through sqlx, for
// single-machine pharmacy installs without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/repository"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/database"
	apperrors "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/errors"
)

const system = "sqlite"

// Timestamps are stored as RFC 3339 text in UTC; dates as YYYY-MM-DD.
const dateLayout = "2006-01-02"

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// NewStore returns the SQLite repositories sharing db.
func NewStore(db *sqlx.DB) repository.Store {
	return repository.Store{
		Medications: &MedicationRepository{db: db},
		Patients:    &PatientRepository{db: db},
		ParkedSales: &ParkedSaleRepository{db: db},
	}
}

type medicationRow struct {
	ID                string         `db:"id"`
	Name              string         `db:"name"`
	Strength          string         `db:"strength"`
	Count             int            `db:"count"`
	Manufacturer      string         `db:"manufacturer"`
	ExternalProductID string         `db:"external_product_id"`
	UnitPrice         sql.NullString `db:"unit_price"`
	SyncedAt          string         `db:"synced_at"`
}

func (r medicationRow) toDomain() domain.Medication {
	m := domain.Medication{
		ID:                r.ID,
		Name:              r.Name,
		Strength:          r.Strength,
		Count:             r.Count,
		Manufacturer:      r.Manufacturer,
		ExternalProductID: r.ExternalProductID,
		SyncedAt:          parseTime(r.SyncedAt),
	}
	if r.UnitPrice.Valid {
		if d, err := decimal.NewFromString(r.UnitPrice.String); err == nil {
			m.UnitPrice = decimal.NewNullDecimal(d)
		}
	}
	return m
}

// MedicationRepository is the SQLite MedicationRepository.
type MedicationRepository struct {
	db *sqlx.DB
}

func (r *MedicationRepository) DeleteAll(ctx context.Context) (n int64, err error) {
	const query = `DELETE FROM medications`
	ctx, end := database.TraceQuery(ctx, system, "DeleteAllMedications", query)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete medications: %w", err)
	}
	return res.RowsAffected()
}

func (r *MedicationRepository) Insert(ctx context.Context, m *domain.Medication) (err error) {
	const query = `
		INSERT INTO medications (id, name, strength, count, manufacturer, external_product_id, unit_price, synced_at)
		VALUES (:id, :name, :strength, :count, :manufacturer, :external_product_id, :unit_price, :synced_at)`
	ctx, end := database.TraceQuery(ctx, system, "InsertMedication", query)
	defer func() { end(err) }()

	row := medicationRow{
		ID:                m.ID,
		Name:              m.Name,
		Strength:          m.Strength,
		Count:             m.Count,
		Manufacturer:      m.Manufacturer,
		ExternalProductID: m.ExternalProductID,
		SyncedAt:          formatTime(m.SyncedAt),
	}
	if m.UnitPrice.Valid {
		row.UnitPrice = sql.NullString{String: m.UnitPrice.Decimal.StringFixed(2), Valid: true}
	}

	if _, err = r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("insert medication %s: %w", m.ExternalProductID, err)
	}
	return nil
}

func (r *MedicationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM medications`); err != nil {
		return 0, fmt.Errorf("count medications: %w", err)
	}
	return n, nil
}

func (r *MedicationRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Medication, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, name, strength, count, manufacturer, external_product_id, unit_price, synced_at
		FROM medications
		WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build medications query: %w", err)
	}

	var rows []medicationRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get medications: %w", err)
	}

	out := make([]domain.Medication, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

type patientRow struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	DateOfBirth        sql.NullString `db:"date_of_birth"`
	Gender             string         `db:"gender"`
	IDNumber           string         `db:"id_number"`
	Phone              string         `db:"phone"`
	Email              string         `db:"email"`
	Address            string         `db:"address"`
	ExternalCustomerID string         `db:"external_customer_id"`
	SyncedAt           string         `db:"synced_at"`
}

// PatientRepository is the SQLite PatientRepository.
type PatientRepository struct {
	db *sqlx.DB
}

func (r *PatientRepository) DeleteAll(ctx context.Context) (n int64, err error) {
	const query = `DELETE FROM patients`
	ctx, end := database.TraceQuery(ctx, system, "DeleteAllPatients", query)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete patients: %w", err)
	}
	return res.RowsAffected()
}

func (r *PatientRepository) Insert(ctx context.Context, p *domain.Patient) (err error) {
	const query = `
		INSERT INTO patients (id, name, date_of_birth, gender, id_number, phone, email, address, external_customer_id, synced_at)
		VALUES (:id, :name, :date_of_birth, :gender, :id_number, :phone, :email, :address, :external_customer_id, :synced_at)`
	ctx, end := database.TraceQuery(ctx, system, "InsertPatient", query)
	defer func() { end(err) }()

	row := patientRow{
		ID:                 p.ID,
		Name:               p.Name,
		Gender:             p.Gender,
		IDNumber:           p.IDNumber,
		Phone:              p.Phone,
		Email:              p.Email,
		Address:            p.Address,
		ExternalCustomerID: p.ExternalCustomerID,
		SyncedAt:           formatTime(p.SyncedAt),
	}
	if p.DateOfBirth != nil {
		row.DateOfBirth = sql.NullString{String: p.DateOfBirth.Format(dateLayout), Valid: true}
	}

	if _, err = r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("insert patient %s: %w", p.ExternalCustomerID, err)
	}
	return nil
}

func (r *PatientRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM patients`); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func (r *PatientRepository) GetByID(ctx context.Context, id string) (*domain.Patient, error) {
	var row patientRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, name, date_of_birth, gender, id_number, phone, email, address, external_customer_id, synced_at
		FROM patients
		WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("patient", id)
		}
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}

	p := &domain.Patient{
		ID:                 row.ID,
		Name:               row.Name,
		Gender:             row.Gender,
		IDNumber:           row.IDNumber,
		Phone:              row.Phone,
		Email:              row.Email,
		Address:            row.Address,
		ExternalCustomerID: row.ExternalCustomerID,
		SyncedAt:           parseTime(row.SyncedAt),
	}
	if row.DateOfBirth.Valid {
		if dob, err := time.Parse(dateLayout, row.DateOfBirth.String); err == nil {
			p.DateOfBirth = &dob
		}
	}
	return p, nil
}

type parkedSaleRow struct {
	ID             string `db:"id"`
	PrescriptionID string `db:"prescription_id"`
	ExternalSaleID string `db:"external_sale_id"`
	Reference      string `db:"reference_number"`
	Status         string `db:"status"`
	TotalPrice     string `db:"total_price"`
	TotalTax       string `db:"total_tax"`
	CreatedAt      string `db:"created_at"`
}

func (r parkedSaleRow) toDomain() domain.ParkedSaleRecord {
	price, _ := decimal.NewFromString(r.TotalPrice)
	tax, _ := decimal.NewFromString(r.TotalTax)
	return domain.ParkedSaleRecord{
		ID:             r.ID,
		PrescriptionID: r.PrescriptionID,
		ExternalSaleID: r.ExternalSaleID,
		Reference:      r.Reference,
		Status:         r.Status,
		TotalPrice:     price,
		TotalTax:       tax,
		CreatedAt:      parseTime(r.CreatedAt),
	}
}

// ParkedSaleRepository is the SQLite ParkedSaleRepository.
type ParkedSaleRepository struct {
	db *sqlx.DB
}

const parkedSaleColumns = `id, prescription_id, external_sale_id, reference_number, status, total_price, total_tax, created_at`

func (r *ParkedSaleRepository) Create(ctx context.Context, rec *domain.ParkedSaleRecord) (err error) {
	const query = `
		INSERT INTO parked_sales (` + parkedSaleColumns + `)
		VALUES (:id, :prescription_id, :external_sale_id, :reference_number, :status, :total_price, :total_tax, :created_at)`
	ctx, end := database.TraceQuery(ctx, system, "CreateParkedSale", query)
	defer func() { end(err) }()

	row := parkedSaleRow{
		ID:             rec.ID,
		PrescriptionID: rec.PrescriptionID,
		ExternalSaleID: rec.ExternalSaleID,
		Reference:      rec.Reference,
		Status:         rec.Status,
		TotalPrice:     rec.TotalPrice.StringFixed(2),
		TotalTax:       rec.TotalTax.StringFixed(2),
		CreatedAt:      formatTime(rec.CreatedAt),
	}
	if _, err = r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create parked sale %s: %w", rec.ExternalSaleID, err)
	}
	return nil
}

func (r *ParkedSaleRepository) List(ctx context.Context, offset, limit int) ([]domain.ParkedSaleRecord, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM parked_sales`); err != nil {
		return nil, 0, fmt.Errorf("count parked sales: %w", err)
	}

	var rows []parkedSaleRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+parkedSaleColumns+`
		FROM parked_sales
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list parked sales: %w", err)
	}
	return toRecords(rows), total, nil
}

func (r *ParkedSaleRepository) ListByPrescription(ctx context.Context, prescriptionID string) ([]domain.ParkedSaleRecord, error) {
	var rows []parkedSaleRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+parkedSaleColumns+`
		FROM parked_sales
		WHERE prescription_id = ?
		ORDER BY created_at DESC`, prescriptionID); err != nil {
		return nil, fmt.Errorf("list parked sales for %s: %w", prescriptionID, err)
	}
	return toRecords(rows), nil
}

func toRecords(rows []parkedSaleRow) []domain.ParkedSaleRecord {
	out := make([]domain.ParkedSaleRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out
}
