package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/event"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/repository"
	apperrors "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/errors"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/logger"
)

const (
	lineNoteSeparator = " · "
	saleNoteSeparator = " | "
	referenceLength   = 8
)

var salesParked = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pos_sales_parked_total",
		Help: "Prescriptions submitted to the POS as parked sales, by result.",
	},
	[]string{"result"},
)

// SaleCreator submits parked sales to the platform.
type SaleCreator interface {
	CreateParkedSale(ctx context.Context, sale domain.ParkedSale) (domain.ParkedSaleResult, error)
}

// SaleConfigProvider supplies the register, user and tax for a sale.
type SaleConfigProvider interface {
	Resolve(ctx context.Context) (Resolution, error)
}

// SaleEventPublisher is notified of each parked sale.
type SaleEventPublisher interface {
	PublishSaleParked(ctx context.Context, data event.SaleParkedData) error
}

// ParkRequest is a prescription with every platform mapping already looked up.
type ParkRequest struct {
	Prescription            domain.Prescription
	Medications             []domain.PrescriptionMedication
	Patient                 domain.Patient
	Doctor                  domain.Doctor
	ExternalCustomerID      string
	ProductIDByMedicationID map[string]string
	UnitPriceByMedicationID map[string]decimal.Decimal
}

// SaleParkingService turns prescriptions into parked sales on the platform.
type SaleParkingService struct {
	creator SaleCreator
	config  SaleConfigProvider
	sales   repository.ParkedSaleRepository
	events  SaleEventPublisher
	logger  *slog.Logger
	now     func() time.Time
}

// NewSaleParkingService creates the parking service. sales and events may be nil.
func NewSaleParkingService(creator SaleCreator, config SaleConfigProvider, sales repository.ParkedSaleRepository, events SaleEventPublisher, logger *slog.Logger) *SaleParkingService {
	return &SaleParkingService{
		creator: creator,
		config:  config,
		sales:   sales,
		events:  events,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// validate checks every precondition that does not need the platform.
func (req ParkRequest) validate() error {
	if len(req.Medications) == 0 {
		return apperrors.InvalidInput("prescription has no medications")
	}
	if strings.TrimSpace(req.ExternalCustomerID) == "" {
		return &domain.MissingCustomerMappingError{PatientID: req.Patient.ID, PatientName: req.Patient.Name}
	}
	for _, m := range req.Medications {
		if strings.TrimSpace(req.ProductIDByMedicationID[m.MedicationID]) == "" {
			return &domain.MissingProductMappingError{MedicationID: m.MedicationID, Name: m.Name}
		}
	}
	for _, m := range req.Medications {
		if m.Quantity <= 0 {
			return &domain.InvalidQuantityError{MedicationID: m.MedicationID, Quantity: m.Quantity}
		}
	}
	return nil
}

// ParkPrescription submits req as a parked sale. Mapping and quantity
// problems, and a prescription that is already parked, are reported before
// any platform call.
func (s *SaleParkingService) ParkPrescription(ctx context.Context, req ParkRequest) (domain.ParkedSaleResult, error) {
	log := logger.WithContext(ctx, s.logger).With(slog.String("prescription_id", req.Prescription.ID))

	if err := req.validate(); err != nil {
		salesParked.WithLabelValues("rejected").Inc()
		return domain.ParkedSaleResult{}, err
	}
	if err := s.ensureNotParked(ctx, req.Prescription.ID); err != nil {
		salesParked.WithLabelValues("rejected").Inc()
		log.WarnContext(ctx, "prescription already parked", slog.String("error", err.Error()))
		return domain.ParkedSaleResult{}, err
	}

	resolution, err := s.config.Resolve(ctx)
	if err != nil {
		salesParked.WithLabelValues("failed").Inc()
		return domain.ParkedSaleResult{}, fmt.Errorf("resolve sale config: %w", err)
	}
	cfg := resolution.Config

	items := make([]domain.ParkedSaleLineItem, len(req.Medications))
	for i, m := range req.Medications {
		unitPrice, ok := req.UnitPriceByMedicationID[m.MedicationID]
		if !ok {
			log.WarnContext(ctx, "medication has no POS price, pricing at zero",
				slog.String("medication_id", m.MedicationID),
				slog.String("name", m.Name),
			)
		}
		amounts := ApportionTax(unitPrice.Mul(decimal.NewFromInt(int64(m.Quantity))), cfg.TaxRate, cfg.TaxExclusive)

		items[i] = domain.ParkedSaleLineItem{
			ProductID:         req.ProductIDByMedicationID[m.MedicationID],
			Quantity:          m.Quantity,
			PriceExcludingTax: amounts.PriceExcludingTax,
			TaxAmount:         amounts.TaxAmount,
			TaxID:             cfg.TaxID,
			Note:              lineNote(m),
		}
	}

	sale := domain.ParkedSale{
		RegisterID: cfg.RegisterID,
		UserID:     cfg.UserID,
		CustomerID: req.ExternalCustomerID,
		SaleDate:   s.now(),
		Status:     domain.ParkedSaleStatus,
		Note:       saleNote(req),
		LineItems:  items,
		Payments:   []any{},
	}

	result, err := s.creator.CreateParkedSale(ctx, sale)
	if err != nil {
		salesParked.WithLabelValues("failed").Inc()
		return domain.ParkedSaleResult{}, fmt.Errorf("create parked sale: %w", err)
	}
	result.ReferenceNumber = referenceNumber(result)
	salesParked.WithLabelValues("parked").Inc()

	log.InfoContext(ctx, "prescription parked",
		slog.String("external_sale_id", result.ID),
		slog.String("reference_number", result.ReferenceNumber),
		slog.Int("line_items", len(items)),
	)

	s.record(ctx, log, req, result)
	return result, nil
}

// ensureNotParked rejects a prescription that already has a recorded sale.
func (s *SaleParkingService) ensureNotParked(ctx context.Context, prescriptionID string) error {
	if s.sales == nil {
		return nil
	}
	recs, err := s.sales.ListByPrescription(ctx, prescriptionID)
	if err != nil {
		return fmt.Errorf("look up parked sales: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	return &domain.AlreadyParkedError{
		PrescriptionID:  prescriptionID,
		ExternalSaleID:  recs[0].ExternalSaleID,
		ReferenceNumber: recs[0].Reference,
	}
}

// record stores the cross-reference and announces the sale. The sale already
// exists on the platform, so failures here are logged and not returned.
func (s *SaleParkingService) record(ctx context.Context, log *slog.Logger, req ParkRequest, result domain.ParkedSaleResult) {
	if s.sales != nil {
		rec := &domain.ParkedSaleRecord{
			ID:             uuid.New().String(),
			PrescriptionID: req.Prescription.ID,
			ExternalSaleID: result.ID,
			Reference:      result.ReferenceNumber,
			Status:         firstNonEmpty(result.Status, domain.ParkedSaleStatus),
			TotalPrice:     result.TotalPrice,
			TotalTax:       result.TotalTax,
			CreatedAt:      s.now(),
		}
		if err := s.sales.Create(ctx, rec); err != nil {
			log.ErrorContext(ctx, "failed to record parked sale", slog.String("error", err.Error()))
		}
	}

	if s.events != nil {
		err := s.events.PublishSaleParked(ctx, event.SaleParkedData{
			PrescriptionID:  req.Prescription.ID,
			ExternalSaleID:  result.ID,
			ReferenceNumber: result.ReferenceNumber,
			PatientID:       req.Patient.ID,
			LineItems:       len(req.Medications),
			TotalPrice:      result.TotalPrice.StringFixed(2),
			TotalTax:        result.TotalTax.StringFixed(2),
		})
		if err != nil {
			log.ErrorContext(ctx, "failed to publish sale.parked event", slog.String("error", err.Error()))
		}
	}
}

// ListParkedSales returns one page of recorded parked sales, newest first.
func (s *SaleParkingService) ListParkedSales(ctx context.Context, offset, limit int) ([]domain.ParkedSaleRecord, int, error) {
	if s.sales == nil {
		return nil, 0, nil
	}
	recs, total, err := s.sales.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list parked sales: %w", err)
	}
	return recs, total, nil
}

func lineNote(m domain.PrescriptionMedication) string {
	return joinNonEmpty(lineNoteSeparator, m.Dose, m.Route, m.Frequency, m.Duration, m.Notes)
}

func saleNote(req ParkRequest) string {
	parts := []string{"Rx " + firstNonEmpty(req.Prescription.Reference, req.Prescription.ID)}
	if name := strings.TrimSpace(req.Doctor.Name); name != "" {
		parts = append(parts, "Prescriber: "+name)
	}
	if name := strings.TrimSpace(req.Patient.Name); name != "" {
		parts = append(parts, "Patient: "+name)
	}
	return strings.Join(parts, saleNoteSeparator)
}

func joinNonEmpty(sep string, values ...string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}

// referenceNumber prefers the platform's invoice number and otherwise uses
// the start of the sale id.
func referenceNumber(r domain.ParkedSaleResult) string {
	if inv := strings.TrimSpace(r.InvoiceNumber); inv != "" {
		return inv
	}
	id := r.ID
	if len(id) > referenceLength {
		id = id[:referenceLength]
	}
	return strings.ToUpper(id)
}
