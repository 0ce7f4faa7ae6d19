package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/service"
	apperrors "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/errors"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/httputil"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/logger"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/pagination"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/validator"
)

const maxBodyBytes = 1 << 20

// Connector manages the OAuth session with the POS platform.
type Connector interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code, tenant string) (domain.Credential, error)
	AdoptToken(ctx context.Context, accessToken, refreshToken, tenant string, expiresAt time.Time) (domain.Credential, error)
	Current(ctx context.Context) (domain.Credential, error)
	Disconnect(ctx context.Context) error
}

// StateTokens issues and checks OAuth state values.
type StateTokens interface {
	Issue() (string, error)
	Verify(state string) error
}

// Pinger checks platform reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Syncer runs catalog and customer syncs.
type Syncer interface {
	Sync(ctx context.Context, kind service.Kind) (service.Result, error)
}

// SaleConfigs resolves and forgets the sale configuration.
type SaleConfigs interface {
	Resolve(ctx context.Context) (service.Resolution, error)
	Reset()
}

// Parker parks prescriptions and lists what was parked.
type Parker interface {
	ParkPrescription(ctx context.Context, req service.ParkRequest) (domain.ParkedSaleResult, error)
	ListParkedSales(ctx context.Context, offset, limit int) ([]domain.ParkedSaleRecord, int, error)
}

// RequestBuilder attaches platform mappings to a prescription.
type RequestBuilder interface {
	Build(ctx context.Context, in service.ParkInput) (service.ParkRequest, error)
}

// POSHandler serves the POS connection, sync and parking endpoints.
type POSHandler struct {
	connector       Connector
	state           StateTokens
	pinger          Pinger
	syncer          Syncer
	saleConfigs     SaleConfigs
	parker          Parker
	builder         RequestBuilder
	cookies         cookieJar
	successRedirect string
	logger          *slog.Logger
}

// POSHandlerConfig holds the POSHandler collaborators.
type POSHandlerConfig struct {
	Connector       Connector
	State           StateTokens
	Pinger          Pinger
	Syncer          Syncer
	SaleConfigs     SaleConfigs
	Parker          Parker
	Builder         RequestBuilder
	CookieSecure    bool
	SuccessRedirect string
}

// NewPOSHandler creates a POS HTTP handler.
func NewPOSHandler(cfg POSHandlerConfig, logger *slog.Logger) *POSHandler {
	redirect := cfg.SuccessRedirect
	if redirect == "" {
		redirect = "/"
	}
	return &POSHandler{
		connector:       cfg.Connector,
		state:           cfg.State,
		pinger:          cfg.Pinger,
		syncer:          cfg.Syncer,
		saleConfigs:     cfg.SaleConfigs,
		parker:          cfg.Parker,
		builder:         cfg.Builder,
		cookies:         cookieJar{secure: cfg.CookieSecure, now: time.Now},
		successRedirect: redirect,
		logger:          logger,
	}
}

func (h *POSHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, toAppError(err), h.logger)
}

// SyncRequest is the optional JSON body of POST /sync.
type SyncRequest struct {
	Type string `json:"type" validate:"omitempty,oneof=all products customers"`
}

// SyncResponse reports how many records each entity type synced.
type SyncResponse struct {
	ProductsSynced   int    `json:"products_synced"`
	ProductsSkipped  int    `json:"products_skipped"`
	ProductsState    string `json:"products_state,omitempty"`
	ProductsError    string `json:"products_error,omitempty"`
	CustomersSynced  int    `json:"customers_synced"`
	CustomersSkipped int    `json:"customers_skipped"`
	CustomersState   string `json:"customers_state,omitempty"`
	CustomersError   string `json:"customers_error,omitempty"`
}

// StatusResponse describes the POS connection.
type StatusResponse struct {
	Connected       bool       `json:"connected"`
	TenantPrefix    string     `json:"tenant_prefix,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ServerReachable bool       `json:"server_reachable"`
}

// ResumeSession adopts a credential from the session cookies when the token
// store holds none, so a restarted process keeps the operator connected.
func (h *POSHandler) ResumeSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cred, err := h.connector.Current(ctx)
		if err == nil && cred.IsZero() {
			if s, ok := readSession(r); ok {
				if _, err := h.connector.AdoptToken(ctx, s.accessToken, s.refreshToken, s.tenant, time.Time{}); err != nil {
					logger.FromContext(ctx).WarnContext(ctx, "ignoring unusable pos session cookies", slog.String("error", err.Error()))
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// syncCookies rewrites the session cookies when the stored credential has
// moved on, for example after a refresh.
func (h *POSHandler) syncCookies(w http.ResponseWriter, r *http.Request) {
	cred, err := h.connector.Current(r.Context())
	if err != nil || cred.IsZero() {
		return
	}
	if c, err := r.Cookie(CookieAccessToken); err == nil && c.Value == cred.AccessToken {
		return
	}
	h.cookies.set(w, cred)
}

// Connect handles GET /api/v1/pos/connect
func (h *POSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	state, err := h.state.Issue()
	if err != nil {
		h.writeError(w, r, apperrors.Internal(err))
		return
	}
	http.Redirect(w, r, h.connector.AuthorizationURL(state), http.StatusFound)
}

// Callback handles GET /api/v1/pos/callback
func (h *POSHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		h.writeError(w, r, apperrors.InvalidInput("authorization was not granted: "+denied))
		return
	}
	if err := h.state.Verify(q.Get("state")); err != nil {
		h.writeError(w, r, err)
		return
	}

	code, tenant := q.Get("code"), q.Get("domain_prefix")
	if code == "" || tenant == "" {
		h.writeError(w, r, apperrors.InvalidInput("code and domain_prefix are required"))
		return
	}

	cred, err := h.connector.Exchange(r.Context(), code, tenant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.saleConfigs.Reset()
	h.cookies.set(w, cred)

	http.Redirect(w, r, h.successRedirect, http.StatusFound)
}

// Disconnect handles POST /api/v1/pos/disconnect
func (h *POSHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.connector.Disconnect(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.saleConfigs.Reset()
	h.cookies.clear(w)

	logger.FromContext(r.Context()).InfoContext(r.Context(), "pos disconnected")
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]bool{"disconnected": true}})
}

// Status handles GET /api/v1/pos/status
func (h *POSHandler) Status(w http.ResponseWriter, r *http.Request) {
	cred, err := h.connector.Current(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := StatusResponse{Connected: !cred.IsZero()}
	if resp.Connected {
		resp.TenantPrefix = cred.TenantPrefix
		resp.ServerReachable = h.pinger.Ping(r.Context()) == nil

		// Ping may have refreshed the token.
		if latest, err := h.connector.Current(r.Context()); err == nil && !latest.IsZero() {
			cred = latest
		}
		expires := cred.ExpiresAt.UTC()
		resp.ExpiresAt = &expires
		h.syncCookies(w, r)
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

// Sync handles POST /api/v1/pos/sync
func (h *POSHandler) Sync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteValidationError(w, fmt.Errorf("decode request body: %w", err))
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	kind := service.Kind(req.Type)
	if req.Type == "all" {
		kind = service.KindAll
	}

	res, err := h.syncer.Sync(r.Context(), kind)
	counts := SyncResponse{
		ProductsSynced:   res.Products.Synced,
		ProductsSkipped:  res.Products.Skipped,
		ProductsState:    string(res.Products.State),
		ProductsError:    res.Products.Error,
		CustomersSynced:  res.Customers.Synced,
		CustomersSkipped: res.Customers.Skipped,
		CustomersState:   string(res.Customers.State),
		CustomersError:   res.Customers.Error,
	}
	if err != nil {
		mapped := toAppError(err)
		if rejectsSync(mapped) {
			var appErr *apperrors.AppError
			if errors.As(mapped, &appErr) {
				mapped = withPartialCounts(appErr, counts)
			}
			httputil.WriteError(w, r, mapped, h.logger)
			return
		}
		logger.FromContext(r.Context()).WarnContext(r.Context(), "pos sync ended early",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}

	h.syncCookies(w, r)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: counts})
}

// rejectsSync reports whether a sync error fails the whole request. Other
// failures end one entity type early and are reported in its result.
func rejectsSync(err error) bool {
	switch apperrors.HTTPStatus(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict:
		return true
	}
	return false
}

func withPartialCounts(appErr *apperrors.AppError, counts SyncResponse) *apperrors.AppError {
	details := map[string]any{}
	for k, v := range appErr.Details {
		details[k] = v
	}
	details["products_synced"] = counts.ProductsSynced
	details["customers_synced"] = counts.CustomersSynced

	out := *appErr
	out.Details = details
	return &out
}

// SaleConfig handles GET /api/v1/pos/sale-config
func (h *POSHandler) SaleConfig(w http.ResponseWriter, r *http.Request) {
	res, err := h.saleConfigs.Resolve(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// Park handles POST /api/v1/pos/prescriptions/{id}/park
func (h *POSHandler) Park(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var in service.ParkInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteValidationError(w, fmt.Errorf("decode request body: %w", err))
		return
	}

	id := chi.URLParam(r, "id")
	if in.Prescription.ID == "" {
		in.Prescription.ID = id
	}
	if in.Prescription.ID != id {
		h.writeError(w, r, apperrors.InvalidInput("prescription id does not match the URL"))
		return
	}
	if err := validator.Validate(in); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	req, err := h.builder.Build(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.parker.ParkPrescription(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.syncCookies(w, r)
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: result})
}

// ListParkedSales handles GET /api/v1/pos/parked-sales
func (h *POSHandler) ListParkedSales(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	recs, total, err := h.parker.ListParkedSales(r.Context(), params.Offset(), params.PerPage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(recs, total, params))
}
