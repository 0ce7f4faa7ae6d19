package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/kafka"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/logger"
)

// Kafka topics for POS integration events.
const (
	TopicSyncCompleted = "pharmacy.pos.sync.completed"
	TopicSaleParked    = "pharmacy.pos.sale.parked"
)

const (
	AggregateTypeSync = "pos_sync"
	AggregateTypeSale = "parked_sale"
)

// SourcePOSService identifies events published by this service.
const SourcePOSService = "pos-integration"

// SyncCompletedData is the payload of a sync.completed event. Error is set
// when one entity type aborted part way.
type SyncCompletedData struct {
	TenantPrefix     string `json:"tenant_prefix"`
	Kind             string `json:"kind"`
	ProductsSynced   int    `json:"products_synced"`
	ProductsSkipped  int    `json:"products_skipped"`
	CustomersSynced  int    `json:"customers_synced"`
	CustomersSkipped int    `json:"customers_skipped"`
	Error            string `json:"error,omitempty"`
}

// SaleParkedData is the payload of a sale.parked event.
type SaleParkedData struct {
	PrescriptionID  string `json:"prescription_id"`
	ExternalSaleID  string `json:"external_sale_id"`
	ReferenceNumber string `json:"reference_number"`
	PatientID       string `json:"patient_id"`
	LineItems       int    `json:"line_items"`
	TotalPrice      string `json:"total_price"`
	TotalTax        string `json:"total_tax"`
}

// Producer publishes POS domain events. A nil Producer, or one without a
// Kafka producer, discards events.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates an event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) enabled() bool {
	return p != nil && p.kafka != nil
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourcePOSService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if tenant := logger.TenantFromContext(ctx); tenant != "" {
		evt.WithTenant(tenant)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// PublishSyncCompleted publishes the outcome of a sync run.
func (p *Producer) PublishSyncCompleted(ctx context.Context, data SyncCompletedData) error {
	if !p.enabled() {
		return nil
	}
	if err := p.publish(ctx, TopicSyncCompleted, data.TenantPrefix, AggregateTypeSync, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published sync.completed event",
		slog.String("kind", data.Kind),
		slog.Int("products_synced", data.ProductsSynced),
		slog.Int("customers_synced", data.CustomersSynced),
	)
	return nil
}

// PublishSaleParked publishes a parked sale.
func (p *Producer) PublishSaleParked(ctx context.Context, data SaleParkedData) error {
	if !p.enabled() {
		return nil
	}
	if err := p.publish(ctx, TopicSaleParked, data.PrescriptionID, AggregateTypeSale, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published sale.parked event",
		slog.String("prescription_id", data.PrescriptionID),
		slog.String("external_sale_id", data.ExternalSaleID),
	)
	return nil
}
