package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Medication is the local record created from an ExternalProduct by sync.
type Medication struct {
	ID                string              `json:"id" db:"id"`
	Name              string              `json:"name" db:"name"`
	Strength          string              `json:"strength" db:"strength"`
	Count             int                 `json:"count" db:"count"`
	Manufacturer      string              `json:"manufacturer,omitempty" db:"manufacturer"`
	ExternalProductID string              `json:"external_product_id" db:"external_product_id"`
	UnitPrice         decimal.NullDecimal `json:"unit_price" db:"unit_price"`
	SyncedAt          time.Time           `json:"synced_at" db:"synced_at"`
}

// Patient is the local record created from an ExternalCustomer by sync.
type Patient struct {
	ID                 string     `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	DateOfBirth        *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Gender             string     `json:"gender" db:"gender"`
	IDNumber           string     `json:"id_number,omitempty" db:"id_number"`
	Phone              string     `json:"phone,omitempty" db:"phone"`
	Email              string     `json:"email,omitempty" db:"email"`
	Address            string     `json:"address,omitempty" db:"address"`
	ExternalCustomerID string     `json:"external_customer_id" db:"external_customer_id"`
	SyncedAt           time.Time  `json:"synced_at" db:"synced_at"`
}

// Gender values stored on Patient.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)
