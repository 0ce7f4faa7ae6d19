package repository

import (
	"context"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
)

// MedicationRepository stores medications created by catalog sync.
type MedicationRepository interface {
	DeleteAll(ctx context.Context) (int64, error)
	Insert(ctx context.Context, m *domain.Medication) error
	Count(ctx context.Context) (int, error)
	// GetByIDs returns the medications found among ids, in no particular
	// order. Missing ids are not an error.
	GetByIDs(ctx context.Context, ids []string) ([]domain.Medication, error)
}

// PatientRepository stores patients created by customer sync.
type PatientRepository interface {
	DeleteAll(ctx context.Context) (int64, error)
	Insert(ctx context.Context, p *domain.Patient) error
	Count(ctx context.Context) (int, error)
	GetByID(ctx context.Context, id string) (*domain.Patient, error)
}

// ParkedSaleRepository records sales parked for prescriptions.
type ParkedSaleRepository interface {
	Create(ctx context.Context, rec *domain.ParkedSaleRecord) error
	List(ctx context.Context, offset, limit int) ([]domain.ParkedSaleRecord, int, error)
	ListByPrescription(ctx context.Context, prescriptionID string) ([]domain.ParkedSaleRecord, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Medications MedicationRepository
	Patients    PatientRepository
	ParkedSales ParkedSaleRepository
}
