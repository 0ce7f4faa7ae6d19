package service

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
)

// Local ids are derived from the platform id so they stay stable across
// full-replace syncs.
var (
	medicationNamespace = uuid.MustParse("6f1c0d5e-2b0a-4c55-9a57-3d1b8f0e7a10")
	patientNamespace    = uuid.MustParse("c2a9e4b1-7d3f-4e0a-8b6c-5f2d1a9e3c47")
)

const (
	unknownPatientName = "Unknown"
	unknownProductName = "Unknown Product"
)

var errMissingExternalID = errors.New("record has no platform id")

// strengthPattern matches dosage strengths such as 500mg, 5 ml or 0.1%.
var strengthPattern = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*(?:mg|mcg|µg|g|ml|l|iu|units?|meq|mmol)\b|\b\d+(?:[.,]\d+)?\s*%`)

func extractStrength(texts ...string) string {
	for _, t := range texts {
		if m := strengthPattern.FindString(t); m != "" {
			return m
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// MapMedication converts a platform product into a local medication.
func MapMedication(p domain.ExternalProduct, syncedAt time.Time) (domain.Medication, error) {
	if p.ID == "" {
		return domain.Medication{}, errMissingExternalID
	}

	name := firstNonEmpty(p.Name, unknownProductName)

	count := 0
	if p.Quantity.Valid && p.Quantity.Decimal.IsPositive() {
		count = int(p.Quantity.Decimal.IntPart())
	}

	return domain.Medication{
		ID:                uuid.NewSHA1(medicationNamespace, []byte(p.ID)).String(),
		Name:              name,
		Strength:          extractStrength(p.Name, p.Description),
		Count:             count,
		Manufacturer:      firstNonEmpty(p.BrandName, p.SupplierName),
		ExternalProductID: p.ID,
		UnitPrice:         p.Price,
		SyncedAt:          syncedAt,
	}, nil
}

// MapPatient converts a platform customer into a local patient.
func MapPatient(c domain.ExternalCustomer, syncedAt time.Time) (domain.Patient, error) {
	if c.ID == "" {
		return domain.Patient{}, errMissingExternalID
	}

	fullName := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))

	return domain.Patient{
		ID:                 uuid.NewSHA1(patientNamespace, []byte(c.ID)).String(),
		Name:               firstNonEmpty(fullName, c.Name, unknownPatientName),
		DateOfBirth:        parseDateOfBirth(c.DateOfBirth),
		Gender:             normalizeGender(c.Gender),
		IDNumber:           strings.TrimSpace(c.CustomerCode),
		Phone:              firstNonEmpty(c.Mobile, c.Phone),
		Email:              strings.TrimSpace(c.Email),
		Address:            joinNonEmpty(", ", c.Address1, c.Address2, c.City, c.State, c.Postcode, c.Country),
		ExternalCustomerID: c.ID,
		SyncedAt:           syncedAt,
	}, nil
}

func normalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "m", "male", "man":
		return domain.GenderMale
	case "f", "female", "woman":
		return domain.GenderFemale
	case "o", "x", "other", "non-binary", "nonbinary":
		return domain.GenderOther
	default:
		return domain.GenderUnknown
	}
}

var dobLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// parseDateOfBirth keeps only the calendar date. Unparseable input yields nil.
func parseDateOfBirth(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}
