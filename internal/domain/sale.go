package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParkedSaleStatus is the platform status of a held, unpaid sale.
const ParkedSaleStatus = "SAVED"

// Fallback tax used when the tax lookup is unavailable.
const (
	NoTaxID   = "default"
	NoTaxName = "No Tax"
)

// SaleConfig is what parking a sale needs to know about the platform account.
// TaxRate is never negative.
type SaleConfig struct {
	RegisterID   string          `json:"register_id"`
	RegisterName string          `json:"register_name"`
	UserID       string          `json:"user_id"`
	UserName     string          `json:"user_name"`
	TaxID        string          `json:"tax_id"`
	TaxName      string          `json:"tax_name"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	TaxExclusive bool            `json:"tax_exclusive"`
}

// NoTax is the fallback tax configuration.
func NoTax() Tax {
	return Tax{ID: NoTaxID, Name: NoTaxName, Rate: decimal.Zero}
}

// ParkedSaleLineItem is one prescribed medication on a parked sale.
// PriceExcludingTax + TaxAmount equals the line total.
type ParkedSaleLineItem struct {
	ProductID         string          `json:"product_id"`
	Quantity          int             `json:"quantity"`
	PriceExcludingTax decimal.Decimal `json:"price"`
	TaxAmount         decimal.Decimal `json:"tax"`
	TaxID             string          `json:"tax_id"`
	Note              string          `json:"note,omitempty"`
}

// ParkedSale is the document submitted to the platform. Payments is always
// empty: the sale is reserved and paid for in person later.
type ParkedSale struct {
	RegisterID string               `json:"register_id"`
	UserID     string               `json:"user_id"`
	CustomerID string               `json:"customer_id"`
	SaleDate   time.Time            `json:"sale_date"`
	Status     string               `json:"status"`
	Note       string               `json:"note"`
	LineItems  []ParkedSaleLineItem `json:"register_sale_products"`
	Payments   []any                `json:"register_sale_payments"`
}

// ParkedSaleResult is the platform's view of a created sale.
type ParkedSaleResult struct {
	ID              string          `json:"id"`
	InvoiceNumber   string          `json:"invoice_number,omitempty"`
	ReferenceNumber string          `json:"reference_number"`
	Status          string          `json:"status"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	TotalTax        decimal.Decimal `json:"total_tax"`
}

// ParkedSaleRecord cross-references a prescription with the sale parked for it.
type ParkedSaleRecord struct {
	ID             string          `json:"id" db:"id"`
	PrescriptionID string          `json:"prescription_id" db:"prescription_id"`
	ExternalSaleID string          `json:"external_sale_id" db:"external_sale_id"`
	Reference      string          `json:"reference_number" db:"reference_number"`
	Status         string          `json:"status" db:"status"`
	TotalPrice     decimal.Decimal `json:"total_price" db:"total_price"`
	TotalTax       decimal.Decimal `json:"total_tax" db:"total_tax"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Prescription is supplied by the pharmacy's own records.
type Prescription struct {
	ID        string    `json:"id" validate:"required"`
	Reference string    `json:"reference"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// PrescriptionMedication is one dispensed item with its SIG.
type PrescriptionMedication struct {
	MedicationID string `json:"medication_id" validate:"required"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity" validate:"gt=0"`
	Dose         string `json:"dose"`
	Route        string `json:"route"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Notes        string `json:"notes"`
}

// Doctor is the prescriber.
type Doctor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
