package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/config"
	handler "github.com/riazm868/pharmacy-rx-manager-sub000/internal/handler/http"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/oauth"
)

func testConfig(t *testing.T) (*config.Config, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	return &config.Config{
		Environment:        "development",
		LogLevel:           "error",
		HTTPPort:           0,
		CORSAllowedOrigins: []string{"*"},
		ClientID:           "client-1",
		ClientSecret:       "secret-1",
		RedirectURI:        "http://localhost:8080/api/v1/pos/callback",
		PlatformDomain:     "retail.example.test",
		SuccessRedirect:    "/",
		StateSecret:        "state-secret-for-tests-only-0123456789",
		StateTTL:           time.Minute,
		RegisterName:       "Main Register",
		UserName:           "Pharmacist",
		SyncPageSize:       100,
		RequestTimeout:     time.Second,
		StoreBackend:       config.BackendSQLite,
		SQLitePath:         ":memory:",
		TokenStore:         config.TokenStoreRedis,
		RedisHost:          mr.Host(),
		RedisPort:          port,
		RedisKey:           "pos:credential:test",
	}, mr
}

func newTestApp(t *testing.T) (*App, *miniredis.Miniredis) {
	t.Helper()
	cfg, mr := testConfig(t)
	a, err := NewApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })
	return a, mr
}

func serve(a *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestNewApp_ReadyWithStoreAndRedis(t *testing.T) {
	a, _ := newTestApp(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string                       `json:"status"`
		Checks map[string]map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "up", body.Checks["sqlite"]["status"])
	assert.Equal(t, "up", body.Checks["redis"]["status"])
	// Not connected to the platform yet.
	assert.Equal(t, "degraded", body.Checks["pos"]["status"])
	assert.Equal(t, "degraded", body.Status)
}

func TestNewApp_ConnectRedirectsToPlatform(t *testing.T) {
	a, _ := newTestApp(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/api/v1/pos/connect", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "secure.retail.example.test", loc.Host)
	assert.Equal(t, "client-1", loc.Query().Get("client_id"))
	assert.NotEmpty(t, loc.Query().Get("state"))
}

func TestNewApp_StatusDisconnected(t *testing.T) {
	a, _ := newTestApp(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/api/v1/pos/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"connected":false,"server_reachable":false}}`, rec.Body.String())
}

func TestNewApp_SessionCookiesResumeIntoRedis(t *testing.T) {
	a, mr := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pos/parked-sales", nil)
	req.AddCookie(&http.Cookie{Name: handler.CookieAccessToken, Value: "at-cookie"})
	req.AddCookie(&http.Cookie{Name: handler.CookieRefreshToken, Value: "rt-cookie"})
	req.AddCookie(&http.Cookie{Name: handler.CookieTenant, Value: "acme"})

	rec := serve(a, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data       []any `json:"data"`
		TotalCount int   `json:"total_count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Empty(t, page.Data)
	assert.Zero(t, page.TotalCount)

	stored, err := mr.Get("pos:credential:test")
	require.NoError(t, err)
	assert.Contains(t, stored, `"tenant_prefix":"acme"`)
	assert.Contains(t, stored, `"refresh_token":"rt-cookie"`)
	assert.Equal(t, oauth.SessionLifetime, mr.TTL("pos:credential:test"))
}

func TestNewApp_UnknownBackend(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.StoreBackend = "mongo"

	_, err := NewApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, `unknown store backend "mongo"`)
}
