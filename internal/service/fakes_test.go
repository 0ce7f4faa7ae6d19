package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/event"
	apperrors "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- In-memory repositories ---

type memMedications struct {
	mu        sync.Mutex
	rows      map[string]domain.Medication
	failNames map[string]bool
}

func newMemMedications() *memMedications {
	return &memMedications{rows: map[string]domain.Medication{}, failNames: map[string]bool{}}
}

func (r *memMedications) DeleteAll(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.rows))
	r.rows = map[string]domain.Medication{}
	return n, nil
}

func (r *memMedications) Insert(_ context.Context, m *domain.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNames[m.Name] {
		return errors.New("constraint violation")
	}
	if _, ok := r.rows[m.ID]; ok {
		return errors.New("duplicate id")
	}
	r.rows[m.ID] = *m
	return nil
}

func (r *memMedications) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows), nil
}

func (r *memMedications) GetByIDs(_ context.Context, ids []string) ([]domain.Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Medication
	for _, id := range ids {
		if m, ok := r.rows[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMedications) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rows))
	for _, m := range r.rows {
		out = append(out, m.Name)
	}
	sort.Strings(out)
	return out
}

type memPatients struct {
	mu   sync.Mutex
	rows map[string]domain.Patient
}

func newMemPatients() *memPatients {
	return &memPatients{rows: map[string]domain.Patient{}}
}

func (r *memPatients) DeleteAll(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.rows))
	r.rows = map[string]domain.Patient{}
	return n, nil
}

func (r *memPatients) Insert(_ context.Context, p *domain.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = *p
	return nil
}

func (r *memPatients) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows), nil
}

func (r *memPatients) GetByID(_ context.Context, id string) (*domain.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, apperrors.NotFound("patient", id)
	}
	return &p, nil
}

type memParkedSales struct {
	mu   sync.Mutex
	recs []domain.ParkedSaleRecord
}

func (r *memParkedSales) Create(_ context.Context, rec *domain.ParkedSaleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, *rec)
	return nil
}

func (r *memParkedSales) List(_ context.Context, offset, limit int) ([]domain.ParkedSaleRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset >= len(r.recs) {
		return nil, len(r.recs), nil
	}
	end := min(offset+limit, len(r.recs))
	return append([]domain.ParkedSaleRecord(nil), r.recs[offset:end]...), len(r.recs), nil
}

func (r *memParkedSales) ListByPrescription(_ context.Context, id string) ([]domain.ParkedSaleRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ParkedSaleRecord
	for _, rec := range r.recs {
		if rec.PrescriptionID == id {
			out = append(out, rec)
		}
	}
	return out, nil
}

// --- Mock platform ---

type mockPlatform struct {
	mock.Mock
}

func (m *mockPlatform) ListProducts(ctx context.Context, page, pageSize int) (domain.Page[domain.ExternalProduct], error) {
	args := m.Called(ctx, page, pageSize)
	return args.Get(0).(domain.Page[domain.ExternalProduct]), args.Error(1)
}

func (m *mockPlatform) ListCustomers(ctx context.Context, page, pageSize int) (domain.Page[domain.ExternalCustomer], error) {
	args := m.Called(ctx, page, pageSize)
	return args.Get(0).(domain.Page[domain.ExternalCustomer]), args.Error(1)
}

func (m *mockPlatform) Registers(ctx context.Context) ([]domain.Register, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Register), args.Error(1)
}

func (m *mockPlatform) Users(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *mockPlatform) Taxes(ctx context.Context) ([]domain.Tax, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Tax), args.Error(1)
}

func (m *mockPlatform) RetailerSettings(ctx context.Context) (domain.RetailerSettings, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.RetailerSettings), args.Error(1)
}

func (m *mockPlatform) CreateParkedSale(ctx context.Context, sale domain.ParkedSale) (domain.ParkedSaleResult, error) {
	args := m.Called(ctx, sale)
	return args.Get(0).(domain.ParkedSaleResult), args.Error(1)
}

// --- Recording event publisher ---

type recordingEvents struct {
	mu     sync.Mutex
	syncs  []event.SyncCompletedData
	parked []event.SaleParkedData
}

func (e *recordingEvents) PublishSyncCompleted(_ context.Context, d event.SyncCompletedData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncs = append(e.syncs, d)
	return nil
}

func (e *recordingEvents) PublishSaleParked(_ context.Context, d event.SaleParkedData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parked = append(e.parked, d)
	return nil
}
