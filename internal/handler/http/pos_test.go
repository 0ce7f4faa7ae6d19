package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/oauth"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/service"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/health"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/httpclient"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/httputil"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeConnector struct {
	cred        domain.Credential
	exchangeErr error
	adopted     []domain.Credential
	exchanged   []string
}

func (f *fakeConnector) AuthorizationURL(state string) string {
	return "https://secure.example/connect?state=" + url.QueryEscape(state)
}

func (f *fakeConnector) Exchange(_ context.Context, code, tenant string) (domain.Credential, error) {
	f.exchanged = append(f.exchanged, code+"@"+tenant)
	if f.exchangeErr != nil {
		return domain.Credential{}, f.exchangeErr
	}
	f.cred = domain.Credential{AccessToken: "at-" + code, RefreshToken: "rt-" + code, TenantPrefix: tenant, ExpiresAt: time.Now().Add(time.Hour)}
	return f.cred, nil
}

func (f *fakeConnector) AdoptToken(_ context.Context, access, refresh, tenant string, _ time.Time) (domain.Credential, error) {
	f.cred = domain.Credential{AccessToken: access, RefreshToken: refresh, TenantPrefix: tenant, ExpiresAt: time.Now().Add(time.Hour)}
	f.adopted = append(f.adopted, f.cred)
	return f.cred, nil
}

func (f *fakeConnector) Current(context.Context) (domain.Credential, error) { return f.cred, nil }

func (f *fakeConnector) Disconnect(context.Context) error {
	f.cred = domain.Credential{}
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type mockSyncer struct{ mock.Mock }

func (m *mockSyncer) Sync(ctx context.Context, kind service.Kind) (service.Result, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(service.Result), args.Error(1)
}

type mockSaleConfigs struct {
	mock.Mock
	resets int
}

func (m *mockSaleConfigs) Resolve(ctx context.Context) (service.Resolution, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.Resolution), args.Error(1)
}

func (m *mockSaleConfigs) Reset() { m.resets++ }

type mockParker struct{ mock.Mock }

func (m *mockParker) ParkPrescription(ctx context.Context, req service.ParkRequest) (domain.ParkedSaleResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.ParkedSaleResult), args.Error(1)
}

func (m *mockParker) ListParkedSales(ctx context.Context, offset, limit int) ([]domain.ParkedSaleRecord, int, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).([]domain.ParkedSaleRecord), args.Int(1), args.Error(2)
}

type mockBuilder struct{ mock.Mock }

func (m *mockBuilder) Build(ctx context.Context, in service.ParkInput) (service.ParkRequest, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(service.ParkRequest), args.Error(1)
}

// ============================================================================
// Harness
// ============================================================================

type harness struct {
	connector *fakeConnector
	state     *oauth.StateSigner
	syncer    *mockSyncer
	configs   *mockSaleConfigs
	parker    *mockParker
	builder   *mockBuilder
	router    http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		connector: &fakeConnector{},
		state:     oauth.NewStateSigner("test-secret", time.Minute),
		syncer:    new(mockSyncer),
		configs:   new(mockSaleConfigs),
		parker:    new(mockParker),
		builder:   new(mockBuilder),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	posHandler := NewPOSHandler(POSHandlerConfig{
		Connector:       h.connector,
		State:           h.state,
		Pinger:          fakePinger{},
		Syncer:          h.syncer,
		SaleConfigs:     h.configs,
		Parker:          h.parker,
		Builder:         h.builder,
		SuccessRedirect: "/pharmacy",
	}, logger)
	h.router = NewRouter(posHandler, health.NewHandler(), logger, []string{"*"})
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func cookieMap(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

// ============================================================================
// Connection flow
// ============================================================================

func TestConnect_RedirectsWithSignedState(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/pos/connect", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.NoError(t, h.state.Verify(loc.Query().Get("state")))
}

func TestCallback_ExchangesAndSetsCookies(t *testing.T) {
	h := newHarness(t)
	state, err := h.state.Issue()
	require.NoError(t, err)

	rec := h.do(httptest.NewRequest(http.MethodGet,
		"/api/v1/pos/callback?code=abc&domain_prefix=acme&state="+url.QueryEscape(state), nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/pharmacy", rec.Header().Get("Location"))
	assert.Equal(t, []string{"abc@acme"}, h.connector.exchanged)
	assert.Equal(t, 1, h.configs.resets)

	cookies := cookieMap(rec)
	require.Contains(t, cookies, CookieAccessToken)
	assert.Equal(t, "at-abc", cookies[CookieAccessToken].Value)
	assert.True(t, cookies[CookieAccessToken].HttpOnly)
	assert.Equal(t, "rt-abc", cookies[CookieRefreshToken].Value)
	assert.Equal(t, "acme", cookies[CookieTenant].Value)
}

func TestCallback_RejectsForgedState(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/pos/callback?code=abc&domain_prefix=acme&state=forged", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, h.connector.exchanged)
}

func TestCallback_DeniedAuthorization(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/pos/callback?error=access_denied", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec).Error.Message, "access_denied")
}

func TestCallback_ExchangeRejectedRequiresReconnect(t *testing.T) {
	h := newHarness(t)
	h.connector.exchangeErr = &domain.AuthExchangeError{Status: http.StatusBadRequest, Body: `{"error":"invalid_grant"}`}
	state, _ := h.state.Issue()

	rec := h.do(httptest.NewRequest(http.MethodGet,
		"/api/v1/pos/callback?code=abc&domain_prefix=acme&state="+url.QueryEscape(state), nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, cookieMap(rec))
}

func TestDisconnect_ClearsSessionAndCookies(t *testing.T) {
	h := newHarness(t)
	h.connector.cred = domain.Credential{AccessToken: "at", TenantPrefix: "acme", ExpiresAt: time.Now().Add(time.Hour)}

	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/pos/disconnect", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.connector.cred.IsZero())
	assert.Equal(t, 1, h.configs.resets)
	for _, name := range []string{CookieAccessToken, CookieRefreshToken, CookieTenant} {
		assert.Equal(t, -1, cookieMap(rec)[name].MaxAge, name)
	}
}

func TestStatus_Disconnected(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/pos/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec).Data.(map[string]any)
	assert.Equal(t, false, data["connected"])
	assert.Equal(t, false, data["server_reachable"])
	assert.NotContains(t, data, "expires_at")
}

func TestStatus_ResumesSessionFromCookies(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pos/status", nil)
	req.AddCookie(&http.Cookie{Name: CookieAccessToken, Value: "at-cookie"})
	req.AddCookie(&http.Cookie{Name: CookieRefreshToken, Value: "rt-cookie"})
	req.AddCookie(&http.Cookie{Name: CookieTenant, Value: "acme"})

	rec := h.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.connector.adopted, 1)
	assert.Equal(t, "rt-cookie", h.connector.adopted[0].RefreshToken)

	data := decodeBody(t, rec).Data.(map[string]any)
	assert.Equal(t, true, data["connected"])
	assert.Equal(t, "acme", data["tenant_prefix"])
	assert.Equal(t, true, data["server_reachable"])
	assert.NotEmpty(t, data["expires_at"])
}

// ============================================================================
// Sync
// ============================================================================

func TestSync_AllByDefault(t *testing.T) {
	h := newHarness(t)
	h.syncer.On("Sync", mock.Anything, service.KindAll).Return(service.Result{
		Products:  service.EntityResult{Synced: 120, Skipped: 1},
		Customers: service.EntityResult{Synced: 40},
	}, nil)

	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/pos/sync", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec).Data.(map[string]any)
	assert.Equal(t, float64(120), data["products_synced"])
	assert.Equal(t, float64(1), data["products_skipped"])
	assert.Equal(t, float64(40), data["customers_synced"])
	h.syncer.AssertExpectations(t)
}

func TestSync_SingleKind(t *testing.T) {
	h := newHarness(t)
	h.syncer.On("Sync", mock.Anything, service.KindCustomers).Return(service.Result{
		Customers: service.EntityResult{Synced: 3},
	}, nil)

	rec := h.do(jsonRequest(http.MethodPost, "/api/v1/pos/sync", `{"type":"customers"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	h.syncer.AssertExpectations(t)
}

func TestSync_RejectsUnknownType(t *testing.T) {
	h := newHarness(t)

	rec := h.do(jsonRequest(http.MethodPost, "/api/v1/pos/sync", `{"type":"orders"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeBody(t, rec).Error.Code)
	h.syncer.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
}

func TestSync_PartialFailureReportsCounts(t *testing.T) {
	h := newHarness(t)
	upstream := &domain.APIError{Status: http.StatusInternalServerError, StatusText: "Internal Server Error", Method: "GET", Path: "/2.0/products"}
	h.syncer.On("Sync", mock.Anything, service.KindAll).Return(service.Result{
		Products:  service.EntityResult{State: service.StateFailed, Synced: 100, Error: upstream.Error()},
		Customers: service.EntityResult{State: service.StateDone, Synced: 40},
	}, fmt.Errorf("sync products page 2: %w", upstream))

	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/pos/sync", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec).Data.(map[string]any)
	assert.Equal(t, float64(100), data["products_synced"])
	assert.Equal(t, "failed", data["products_state"])
	assert.Contains(t, data["products_error"], "/2.0/products")
	assert.Equal(t, float64(40), data["customers_synced"])
	assert.Equal(t, "done", data["customers_state"])
	assert.NotContains(t, data, "customers_error")
}

func TestSync_ReconnectRequiredKeepsCounts(t *testing.T) {
	h := newHarness(t)
	h.syncer.On("Sync", mock.Anything, service.KindAll).Return(service.Result{
		Products:  service.EntityResult{State: service.StateDone, Synced: 12},
		Customers: service.EntityResult{State: service.StateFailed},
	}, &domain.RefreshError{Status: http.StatusBadRequest})

	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/pos/sync", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, "RECONNECT_REQUIRED", resp.Error.Code)
	assert.Equal(t, float64(12), resp.Error.Details["products_synced"])
}

func TestSync_AlreadyRunning(t *testing.T) {
	h := newHarness(t)
	h.syncer.On("Sync", mock.Anything, service.KindAll).Return(service.Result{}, service.ErrSyncInProgress)

	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/pos/sync", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSync_MissingRefreshTokenRequiresReconnect(t *testing.T) {
	h := newHarness(t)
	h.syncer.On("Sync", mock.Anything, service.KindAll).Return(service.Result{}, domain.ErrMissingRefreshToken)

	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/pos/sync", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================================================
// Sale config and parking
// ============================================================================

func TestSaleConfig_RegisterNotFound(t *testing.T) {
	h := newHarness(t)
	h.configs.On("Resolve", mock.Anything).Return(service.Resolution{},
		&domain.RegisterNotFoundError{Expected: "Main Register", Available: []string{"Front", "Back"}})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/pos/sale-config", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	details := decodeBody(t, rec).Error.Details
	assert.Equal(t, "register", details["lookup"])
	assert.Equal(t, []any{"Front", "Back"}, details["available"])
}

func TestSaleConfig_Resolved(t *testing.T) {
	h := newHarness(t)
	h.configs.On("Resolve", mock.Anything).Return(service.Resolution{
		Config:   domain.SaleConfig{RegisterID: "reg-1", UserID: "u-1", TaxID: "t-1", TaxRate: decimal.RequireFromString("0.125")},
		Degraded: []service.Degradation{},
	}, nil)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/pos/sale-config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec).Data.(map[string]any)
	assert.Equal(t, "reg-1", data["config"].(map[string]any)["register_id"])
}

const parkBody = `{
	"prescription": {"id": "rx-1", "reference": "RX-1"},
	"medications": [{"medication_id": "med-1", "name": "Amoxicillin 500mg", "quantity": 2}],
	"patient": {"id": "pat-1"},
	"doctor": {"name": "Dr. Osei"}
}`

func TestPark_Created(t *testing.T) {
	h := newHarness(t)
	req := service.ParkRequest{ExternalCustomerID: "cust-1"}
	h.builder.On("Build", mock.Anything, mock.MatchedBy(func(in service.ParkInput) bool {
		return in.Prescription.ID == "rx-1" && len(in.Medications) == 1 && in.Patient.ID == "pat-1"
	})).Return(req, nil)
	h.parker.On("ParkPrescription", mock.Anything, req).Return(domain.ParkedSaleResult{
		ID: "sale-1", ReferenceNumber: "1042", Status: domain.ParkedSaleStatus,
		TotalPrice: decimal.RequireFromString("100"), TotalTax: decimal.RequireFromString("12.5"),
	}, nil)

	rec := h.do(jsonRequest(http.MethodPost, "/api/v1/pos/prescriptions/rx-1/park", parkBody))

	require.Equal(t, http.StatusCreated, rec.Code)
	data := decodeBody(t, rec).Data.(map[string]any)
	assert.Equal(t, "sale-1", data["id"])
	assert.Equal(t, "1042", data["reference_number"])
}

func TestPark_IDMismatch(t *testing.T) {
	h := newHarness(t)

	rec := h.do(jsonRequest(http.MethodPost, "/api/v1/pos/prescriptions/rx-2/park", parkBody))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	h.builder.AssertNotCalled(t, "Build", mock.Anything, mock.Anything)
}

func TestPark_RequiresJSON(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/prescriptions/rx-1/park", bytes.NewBufferString(parkBody))
	req.Header.Set("Content-Type", "text/plain")

	rec := h.do(req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestPark_MissingMappings(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantKey string
	}{
		{"customer", &domain.MissingCustomerMappingError{PatientID: "pat-1", PatientName: "Ama"}, "patient_id"},
		{"product", &domain.MissingProductMappingError{MedicationID: "med-1", Name: "Amoxicillin"}, "medication_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.builder.On("Build", mock.Anything, mock.Anything).Return(service.ParkRequest{}, nil)
			h.parker.On("ParkPrescription", mock.Anything, mock.Anything).Return(domain.ParkedSaleResult{}, tt.err)

			rec := h.do(jsonRequest(http.MethodPost, "/api/v1/pos/prescriptions/rx-1/park", parkBody))

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			resp := decodeBody(t, rec)
			assert.Equal(t, "MAPPING_REQUIRED", resp.Error.Code)
			assert.Contains(t, resp.Error.Details, tt.wantKey)
		})
	}
}

func TestPark_CircuitOpen(t *testing.T) {
	h := newHarness(t)
	h.builder.On("Build", mock.Anything, mock.Anything).Return(service.ParkRequest{}, nil)
	h.parker.On("ParkPrescription", mock.Anything, mock.Anything).Return(domain.ParkedSaleResult{}, fmt.Errorf("pos api POST /register_sales: %w", httpclient.ErrCircuitOpen))

	rec := h.do(jsonRequest(http.MethodPost, "/api/v1/pos/prescriptions/rx-1/park", parkBody))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPark_AlreadyParked(t *testing.T) {
	h := newHarness(t)
	h.builder.On("Build", mock.Anything, mock.Anything).Return(service.ParkRequest{}, nil)
	h.parker.On("ParkPrescription", mock.Anything, mock.Anything).Return(domain.ParkedSaleResult{},
		&domain.AlreadyParkedError{PrescriptionID: "rx-1", ExternalSaleID: "sale-1", ReferenceNumber: "1042"})

	rec := h.do(jsonRequest(http.MethodPost, "/api/v1/pos/prescriptions/rx-1/park", parkBody))

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, "ALREADY_PARKED", resp.Error.Code)
	assert.Equal(t, "sale-1", resp.Error.Details["external_sale_id"])
	assert.Equal(t, "1042", resp.Error.Details["reference_number"])
}

func TestListParkedSales_Paginates(t *testing.T) {
	h := newHarness(t)
	h.parker.On("ListParkedSales", mock.Anything, 10, 10).Return([]domain.ParkedSaleRecord{
		{ID: "p-11", PrescriptionID: "rx-11", ExternalSaleID: "sale-11"},
	}, 11, nil)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/pos/parked-sales?page=2&per_page=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(11), body["total_count"])
	assert.Len(t, body["data"], 1)
	h.parker.AssertExpectations(t)
}
