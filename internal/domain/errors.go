package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingRefreshToken is returned by a refresh attempt when no session
// with a refresh token is held.
var ErrMissingRefreshToken = errors.New("no refresh token: POS is not connected")

// AuthExchangeError reports a failed authorization-code exchange.
type AuthExchangeError struct {
	Status int
	Body   string
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("oauth code exchange failed with status %d", e.Status)
}

// RefreshError reports a failed token refresh. The stale credential is left in
// the store.
type RefreshError struct {
	Status int
	Body   string
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth token refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("oauth token refresh failed with status %d", e.Status)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from the platform REST API.
type APIError struct {
	Status     int
	StatusText string
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pos api %s %s: %d %s", e.Method, e.Path, e.Status, e.StatusText)
}

// RegisterNotFoundError means no register matched the configured name.
type RegisterNotFoundError struct {
	Expected  string
	Available []string
}

func (e *RegisterNotFoundError) Error() string {
	return fmt.Sprintf("register %q not found; available: [%s]", e.Expected, strings.Join(e.Available, ", "))
}

// UserNotFoundError means no platform user matched the configured operator.
type UserNotFoundError struct {
	Expected  string
	Available []string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %q not found; available: [%s]", e.Expected, strings.Join(e.Available, ", "))
}

// MissingCustomerMappingError means the patient has no platform customer id.
type MissingCustomerMappingError struct {
	PatientID   string
	PatientName string
}

func (e *MissingCustomerMappingError) Error() string {
	return fmt.Sprintf("patient %q (%s) is not linked to a POS customer", e.PatientName, e.PatientID)
}

// MissingProductMappingError names the first medication with no platform
// product id.
type MissingProductMappingError struct {
	MedicationID string
	Name         string
}

func (e *MissingProductMappingError) Error() string {
	return fmt.Sprintf("medication %q (%s) is not linked to a POS product", e.Name, e.MedicationID)
}

// InvalidQuantityError rejects a prescribed quantity that is not positive.
type InvalidQuantityError struct {
	MedicationID string
	Quantity     int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("medication %s: quantity must be positive, got %d", e.MedicationID, e.Quantity)
}

// AlreadyParkedError means the prescription already has a parked sale on the
// platform.
type AlreadyParkedError struct {
	PrescriptionID  string
	ExternalSaleID  string
	ReferenceNumber string
}

func (e *AlreadyParkedError) Error() string {
	return fmt.Sprintf("prescription %s is already parked as sale %s", e.PrescriptionID, e.ReferenceNumber)
}
