package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/repository"
	apperrors "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/errors"
)

// PatientRef identifies the prescription's patient in the local store.
type PatientRef struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// ParkInput is a prescription as the pharmacy system hands it over.
type ParkInput struct {
	Prescription domain.Prescription             `json:"prescription" validate:"required"`
	Medications  []domain.PrescriptionMedication `json:"medications" validate:"required,min=1,dive"`
	Patient      PatientRef                      `json:"patient" validate:"required"`
	Doctor       domain.Doctor                   `json:"doctor"`
}

// RequestBuilder fills in platform mappings from the synced local records.
type RequestBuilder struct {
	medications repository.MedicationRepository
	patients    repository.PatientRepository
}

// NewRequestBuilder creates a RequestBuilder.
func NewRequestBuilder(medications repository.MedicationRepository, patients repository.PatientRepository) *RequestBuilder {
	return &RequestBuilder{medications: medications, patients: patients}
}

// Build looks up the patient's customer id and each medication's product id
// and price. Records missing locally are left unmapped for the parking
// preconditions to report.
func (b *RequestBuilder) Build(ctx context.Context, in ParkInput) (ParkRequest, error) {
	req := ParkRequest{
		Prescription:            in.Prescription,
		Medications:             in.Medications,
		Patient:                 domain.Patient{ID: in.Patient.ID, Name: in.Patient.Name},
		Doctor:                  in.Doctor,
		ProductIDByMedicationID: make(map[string]string, len(in.Medications)),
		UnitPriceByMedicationID: make(map[string]decimal.Decimal, len(in.Medications)),
	}

	patient, err := b.patients.GetByID(ctx, in.Patient.ID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
	case err != nil:
		return ParkRequest{}, fmt.Errorf("load patient: %w", err)
	default:
		req.ExternalCustomerID = patient.ExternalCustomerID
		if req.Patient.Name == "" {
			req.Patient.Name = patient.Name
		}
	}

	ids := make([]string, 0, len(in.Medications))
	for _, m := range in.Medications {
		ids = append(ids, m.MedicationID)
	}
	meds, err := b.medications.GetByIDs(ctx, ids)
	if err != nil {
		return ParkRequest{}, fmt.Errorf("load medications: %w", err)
	}
	for _, m := range meds {
		req.ProductIDByMedicationID[m.ID] = m.ExternalProductID
		if m.UnitPrice.Valid {
			req.UnitPriceByMedicationID[m.ID] = m.UnitPrice.Decimal
		}
	}
	return req, nil
}
