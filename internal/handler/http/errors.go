package http

import (
	"errors"
	"net/http"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/oauth"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/service"
	apperrors "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/errors"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/httpclient"
)

// toAppError maps POS integration failures onto HTTP-facing AppErrors.
// Errors it does not recognise are returned unchanged.
func toAppError(err error) error {
	var (
		appErr      *apperrors.AppError
		exchangeErr *domain.AuthExchangeError
		refreshErr  *domain.RefreshError
		apiErr      *domain.APIError
		registerErr *domain.RegisterNotFoundError
		userErr     *domain.UserNotFoundError
		customerErr *domain.MissingCustomerMappingError
		productErr  *domain.MissingProductMappingError
		quantityErr *domain.InvalidQuantityError
		parkedErr   *domain.AlreadyParkedError
	)

	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, httpclient.ErrCircuitOpen):
		return &apperrors.AppError{
			Code:    "UPSTREAM_UNAVAILABLE",
			Message: "the POS platform is temporarily unavailable",
			Status:  http.StatusServiceUnavailable,
			Err:     errors.Join(apperrors.ErrServiceUnavail, err),
		}
	case errors.As(err, &refreshErr) && refreshErr.Status == 0:
		return apperrors.Upstream(0, "could not reach the POS platform to renew the session", err)
	case errors.Is(err, domain.ErrMissingRefreshToken),
		errors.As(err, &exchangeErr),
		errors.As(err, &refreshErr):
		return apperrors.ReconnectRequired(err)
	case errors.As(err, &apiErr):
		return apperrors.Upstream(apiErr.Status, "the POS platform rejected the request", err)
	case errors.As(err, &registerErr):
		return apperrors.Unprocessable("SALE_CONFIG_ERROR", registerErr.Error(), err).
			WithDetails(map[string]any{"lookup": "register", "expected": registerErr.Expected, "available": registerErr.Available})
	case errors.As(err, &userErr):
		return apperrors.Unprocessable("SALE_CONFIG_ERROR", userErr.Error(), err).
			WithDetails(map[string]any{"lookup": "user", "expected": userErr.Expected, "available": userErr.Available})
	case errors.As(err, &customerErr):
		return apperrors.Unprocessable("MAPPING_REQUIRED", customerErr.Error(), err).
			WithDetails(map[string]any{"patient_id": customerErr.PatientID})
	case errors.As(err, &productErr):
		return apperrors.Unprocessable("MAPPING_REQUIRED", productErr.Error(), err).
			WithDetails(map[string]any{"medication_id": productErr.MedicationID})
	case errors.As(err, &quantityErr):
		return apperrors.InvalidInput(quantityErr.Error())
	case errors.As(err, &parkedErr):
		return &apperrors.AppError{
			Code:    "ALREADY_PARKED",
			Message: parkedErr.Error(),
			Status:  http.StatusConflict,
			Err:     err,
			Details: map[string]any{
				"prescription_id":  parkedErr.PrescriptionID,
				"external_sale_id": parkedErr.ExternalSaleID,
				"reference_number": parkedErr.ReferenceNumber,
			},
		}
	case errors.Is(err, service.ErrSyncInProgress):
		return &apperrors.AppError{
			Code:    "SYNC_IN_PROGRESS",
			Message: err.Error(),
			Status:  http.StatusConflict,
			Err:     err,
		}
	case errors.Is(err, service.ErrUnknownKind),
		errors.Is(err, oauth.ErrInvalidTenant),
		errors.Is(err, oauth.ErrInvalidState):
		return apperrors.InvalidInput(err.Error())
	default:
		return err
	}
}
