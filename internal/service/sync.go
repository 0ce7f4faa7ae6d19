package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/event"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/repository"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/logger"
)

// DefaultPageSize is the number of records requested per platform page.
const DefaultPageSize = 100

// Kind selects which entity types a sync run covers.
type Kind string

const (
	KindAll       Kind = ""
	KindProducts  Kind = "products"
	KindCustomers Kind = "customers"
)

// SyncState is the progress of one entity type's sync.
type SyncState string

const (
	StateIdle   SyncState = "idle"
	StatePaging SyncState = "paging"
	StateDone   SyncState = "done"
	StateFailed SyncState = "failed"
)

// ErrSyncInProgress is returned when a sync is already running.
var ErrSyncInProgress = errors.New("a POS sync is already in progress")

// ErrUnknownKind rejects a sync kind other than products or customers.
var ErrUnknownKind = errors.New("unknown sync type")

var (
	syncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_sync_records_total",
			Help: "Records processed by POS sync, by entity and result (synced, skipped).",
		},
		[]string{"entity", "result"},
	)
	syncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_sync_runs_total",
			Help: "POS sync runs, by entity and final state.",
		},
		[]string{"entity", "state"},
	)
)

// Catalog is the platform listing the sync engine pages through.
type Catalog interface {
	ListProducts(ctx context.Context, page, pageSize int) (domain.Page[domain.ExternalProduct], error)
	ListCustomers(ctx context.Context, page, pageSize int) (domain.Page[domain.ExternalCustomer], error)
}

// SyncEventPublisher receives the outcome of each sync run.
type SyncEventPublisher interface {
	PublishSyncCompleted(ctx context.Context, data event.SyncCompletedData) error
}

// EntityResult is the outcome of syncing one entity type.
type EntityResult struct {
	State   SyncState `json:"state"`
	Synced  int       `json:"synced"`
	Skipped int       `json:"skipped"`
	Pages   int       `json:"pages"`
	Error   string    `json:"error,omitempty"`
}

// Result is the outcome of a sync run.
type Result struct {
	Products  EntityResult `json:"products"`
	Customers EntityResult `json:"customers"`
}

// SyncEngine replaces the local medications and patients with the platform's
// products and customers.
type SyncEngine struct {
	catalog     Catalog
	medications repository.MedicationRepository
	patients    repository.PatientRepository
	events      SyncEventPublisher
	logger      *slog.Logger
	pageSize    int
	now         func() time.Time

	running sync.Mutex

	mu     sync.RWMutex
	states map[string]SyncState
}

// NewSyncEngine creates a sync engine. events may be nil.
func NewSyncEngine(catalog Catalog, medications repository.MedicationRepository, patients repository.PatientRepository, events SyncEventPublisher, logger *slog.Logger, pageSize int) *SyncEngine {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &SyncEngine{
		catalog:     catalog,
		medications: medications,
		patients:    patients,
		events:      events,
		logger:      logger,
		pageSize:    pageSize,
		now:         func() time.Time { return time.Now().UTC() },
		states: map[string]SyncState{
			string(KindProducts):  StateIdle,
			string(KindCustomers): StateIdle,
		},
	}
}

// States reports the last known state per entity type.
func (e *SyncEngine) States() map[string]SyncState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]SyncState, len(e.states))
	for k, v := range e.states {
		out[k] = v
	}
	return out
}

func (e *SyncEngine) setState(entity string, s SyncState) {
	e.mu.Lock()
	e.states[entity] = s
	e.mu.Unlock()
}

// Sync runs the requested entity types. With KindAll both run, products
// first; a failure of one does not stop the other and the errors are joined.
func (e *SyncEngine) Sync(ctx context.Context, kind Kind) (Result, error) {
	if kind != KindAll && kind != KindProducts && kind != KindCustomers {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if !e.running.TryLock() {
		return Result{}, ErrSyncInProgress
	}
	defer e.running.Unlock()

	var (
		res  Result
		errs []error
	)
	if kind == KindAll || kind == KindProducts {
		r, err := e.syncProducts(ctx)
		res.Products = r
		if err != nil {
			errs = append(errs, err)
		}
	}
	if kind == KindAll || kind == KindCustomers {
		r, err := e.syncCustomers(ctx)
		res.Customers = r
		if err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)

	e.publish(ctx, kind, res, err)
	return res, err
}

// SyncProducts replaces local medications with the platform catalog.
func (e *SyncEngine) SyncProducts(ctx context.Context) (EntityResult, error) {
	res, err := e.Sync(ctx, KindProducts)
	return res.Products, err
}

// SyncCustomers replaces local patients with the platform customers.
func (e *SyncEngine) SyncCustomers(ctx context.Context) (EntityResult, error) {
	res, err := e.Sync(ctx, KindCustomers)
	return res.Customers, err
}

func (e *SyncEngine) syncProducts(ctx context.Context) (EntityResult, error) {
	return runPaged(ctx, e, string(KindProducts),
		e.medications.DeleteAll,
		func(ctx context.Context, page int) (domain.Page[domain.ExternalProduct], error) {
			return e.catalog.ListProducts(ctx, page, e.pageSize)
		},
		func(ctx context.Context, p domain.ExternalProduct, now time.Time) error {
			m, err := MapMedication(p, now)
			if err != nil {
				return err
			}
			return e.medications.Insert(ctx, &m)
		},
		func(p domain.ExternalProduct) string { return p.ID },
	)
}

func (e *SyncEngine) syncCustomers(ctx context.Context) (EntityResult, error) {
	return runPaged(ctx, e, string(KindCustomers),
		e.patients.DeleteAll,
		func(ctx context.Context, page int) (domain.Page[domain.ExternalCustomer], error) {
			return e.catalog.ListCustomers(ctx, page, e.pageSize)
		},
		func(ctx context.Context, c domain.ExternalCustomer, now time.Time) error {
			p, err := MapPatient(c, now)
			if err != nil {
				return err
			}
			return e.patients.Insert(ctx, &p)
		},
		func(c domain.ExternalCustomer) string { return c.ID },
	)
}

// runPaged pages through one entity type. Page 1 is fetched before the local
// table is cleared so an unreachable platform leaves existing records alone;
// from then on the table holds exactly what was fetched. An insert failure
// skips the record, a page failure aborts with the count so far.
func runPaged[T any](
	ctx context.Context,
	e *SyncEngine,
	entity string,
	clear func(context.Context) (int64, error),
	fetch func(context.Context, int) (domain.Page[T], error),
	store func(context.Context, T, time.Time) error,
	externalID func(T) string,
) (res EntityResult, err error) {
	log := logger.WithContext(ctx, e.logger).With(slog.String("entity", entity))
	e.setState(entity, StatePaging)
	res.State = StatePaging

	defer func() {
		res.State = StateDone
		if err != nil {
			res.State = StateFailed
			res.Error = err.Error()
		}
		e.setState(entity, res.State)
		syncRuns.WithLabelValues(entity, string(res.State)).Inc()
	}()

	now := e.now()
	for page := 1; ; page++ {
		batch, err := fetch(ctx, page)
		if err != nil {
			log.ErrorContext(ctx, "sync page fetch failed",
				slog.Int("page", page),
				slog.Int("synced", res.Synced),
				slog.String("error", err.Error()),
			)
			return res, fmt.Errorf("sync %s page %d: %w", entity, page, err)
		}
		res.Pages++

		if page == 1 {
			removed, err := clear(ctx)
			if err != nil {
				return res, fmt.Errorf("clear local %s: %w", entity, err)
			}
			log.InfoContext(ctx, "cleared local records before sync", slog.Int64("removed", removed))
		}

		for _, item := range batch.Data {
			if err := store(ctx, item, now); err != nil {
				res.Skipped++
				syncRecords.WithLabelValues(entity, "skipped").Inc()
				log.WarnContext(ctx, "skipping record",
					slog.String("external_id", externalID(item)),
					slog.String("error", err.Error()),
				)
				continue
			}
			res.Synced++
			syncRecords.WithLabelValues(entity, "synced").Inc()
		}

		// Our own page counter bounds the loop even if the platform echoes a
		// stale page number.
		if page >= batch.Pagination.Pages {
			break
		}
	}

	log.InfoContext(ctx, "sync completed",
		slog.Int("synced", res.Synced),
		slog.Int("skipped", res.Skipped),
		slog.Int("pages", res.Pages),
	)
	return res, nil
}

func (e *SyncEngine) publish(ctx context.Context, kind Kind, res Result, syncErr error) {
	if e.events == nil {
		return
	}
	k := string(kind)
	if kind == KindAll {
		k = "all"
	}
	data := event.SyncCompletedData{
		TenantPrefix:     logger.TenantFromContext(ctx),
		Kind:             k,
		ProductsSynced:   res.Products.Synced,
		ProductsSkipped:  res.Products.Skipped,
		CustomersSynced:  res.Customers.Synced,
		CustomersSkipped: res.Customers.Skipped,
	}
	if syncErr != nil {
		data.Error = syncErr.Error()
	}
	if err := e.events.PublishSyncCompleted(ctx, data); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish sync.completed event", slog.String("error", err.Error()))
	}
}
