package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/httpclient"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/logger"
)

const (
	tracerName = "github.com/riazm868/pharmacy-rx-manager-sub000/internal/oauth"

	// AssumedLifetime is used when a token's real expiry is unknown.
	AssumedLifetime = time.Hour

	maxTokenBody = 1 << 20
)

var tokenRefreshes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pos_token_refreshes_total",
		Help: "POS access token refresh attempts by result",
	},
	[]string{"result"},
)

// Config identifies this application to the platform.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Endpoints    Endpoints
}

// Manager runs the authorization-code flow and keeps the stored credential
// valid. It is safe for concurrent use; concurrent callers that find the
// token stale share one refresh.
type Manager struct {
	cfg    Config
	store  TokenStore
	http   httpclient.Doer
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group
}

// NewManager creates a Manager.
func NewManager(cfg Config, store TokenStore, doer httpclient.Doer, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		store:  store,
		http:   doer,
		logger: logger,
		now:    time.Now,
	}
}

// AuthorizationURL builds the URL the operator is redirected to.
func (m *Manager) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", m.cfg.ClientID)
	q.Set("redirect_uri", m.cfg.RedirectURI)
	q.Set("state", state)
	return m.cfg.Endpoints.AuthorizeURL + "?" + q.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Expires      int64  `json:"expires"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

func (t tokenResponse) expiresAt(now time.Time) time.Time {
	switch {
	case t.ExpiresIn > 0:
		return now.Add(time.Duration(t.ExpiresIn) * time.Second)
	case t.Expires > 0:
		return time.Unix(t.Expires, 0)
	default:
		return now.Add(AssumedLifetime)
	}
}

// Exchange trades an authorization code for a credential and stores it.
func (m *Manager) Exchange(ctx context.Context, code, tenant string) (domain.Credential, error) {
	if err := ValidateTenant(tenant); err != nil {
		return domain.Credential{}, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "oauth.Exchange")
	defer span.End()
	span.SetAttributes(attribute.String("pos.tenant", tenant))

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)
	form.Set("redirect_uri", m.cfg.RedirectURI)

	status, body, tok, err := m.postToken(ctx, tenant, form)
	if err != nil {
		span.SetStatus(codes.Error, "exchange failed")
		if status == 0 {
			return domain.Credential{}, fmt.Errorf("exchange authorization code: %w", err)
		}
		return domain.Credential{}, &domain.AuthExchangeError{Status: status, Body: body}
	}

	cred := domain.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TenantPrefix: tenant,
		ExpiresAt:    tok.expiresAt(m.now()),
	}
	if err := m.store.Save(ctx, cred); err != nil {
		return domain.Credential{}, err
	}

	logger.FromContext(ctx).InfoContext(ctx, "pos connected",
		slog.String("tenant_prefix", tenant),
		slog.Time("expires_at", cred.ExpiresAt),
	)
	return cred, nil
}

// Refresh renews the access token unconditionally. On failure the stale
// credential stays in the store.
func (m *Manager) Refresh(ctx context.Context) (domain.Credential, error) {
	return m.sharedRefresh(ctx, true)
}

// EnsureValid returns a credential whose access token is not past expiry,
// refreshing once if the stored one is missing or stale.
func (m *Manager) EnsureValid(ctx context.Context) (domain.Credential, error) {
	cred, err := m.store.Load(ctx)
	if err != nil {
		return domain.Credential{}, err
	}
	if !cred.Expired(m.now()) {
		return cred, nil
	}
	return m.sharedRefresh(ctx, false)
}

// sharedRefresh collapses concurrent refreshes into one. The refresh runs on
// a context detached from the first caller's cancellation so one abandoned
// request does not fail everyone waiting on it.
func (m *Manager) sharedRefresh(ctx context.Context, force bool) (domain.Credential, error) {
	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), force)
	})

	select {
	case <-ctx.Done():
		return domain.Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Credential{}, res.Err
		}
		return res.Val.(domain.Credential), nil
	}
}

func (m *Manager) refresh(ctx context.Context, force bool) (domain.Credential, error) {
	cred, err := m.store.Load(ctx)
	if err != nil {
		return domain.Credential{}, err
	}
	// Another caller may have refreshed between our staleness check and
	// joining the flight.
	if !force && !cred.Expired(m.now()) {
		return cred, nil
	}
	if cred.RefreshToken == "" || cred.TenantPrefix == "" {
		return domain.Credential{}, domain.ErrMissingRefreshToken
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "oauth.Refresh")
	defer span.End()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)

	status, body, tok, err := m.postToken(ctx, cred.TenantPrefix, form)
	if err != nil {
		tokenRefreshes.WithLabelValues("failure").Inc()
		span.SetStatus(codes.Error, "refresh failed")
		logger.FromContext(ctx).WarnContext(ctx, "pos token refresh failed",
			slog.String("tenant_prefix", cred.TenantPrefix),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		return domain.Credential{}, &domain.RefreshError{Status: status, Body: body, Err: err}
	}

	next := cred.Renewed(tok.AccessToken, tok.RefreshToken, tok.expiresAt(m.now()))
	if err := m.store.Save(ctx, next); err != nil {
		return domain.Credential{}, err
	}
	tokenRefreshes.WithLabelValues("success").Inc()

	logger.FromContext(ctx).InfoContext(ctx, "pos token refreshed",
		slog.String("tenant_prefix", next.TenantPrefix),
		slog.Time("expires_at", next.ExpiresAt),
	)
	return next, nil
}

// postToken sends one form POST to the token endpoint. A zero status means
// the request never got a response.
func (m *Manager) postToken(ctx context.Context, tenant string, form url.Values) (int, string, tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoints.TokenURL(tenant), strings.NewReader(form.Encode()))
	if err != nil {
		return 0, "", tokenResponse{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(ctx, req)
	if err != nil {
		return 0, "", tokenResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return resp.StatusCode, "", tokenResponse{}, fmt.Errorf("read token response: %w", err)
	}
	body := string(raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, body, tokenResponse{}, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return resp.StatusCode, body, tokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return resp.StatusCode, body, tokenResponse{}, errors.New("token response has no access_token")
	}
	return resp.StatusCode, body, tok, nil
}

// AdoptToken installs a credential resumed from durable storage such as
// cookies. A zero expiresAt is replaced by now plus AssumedLifetime.
func (m *Manager) AdoptToken(ctx context.Context, accessToken, refreshToken, tenant string, expiresAt time.Time) (domain.Credential, error) {
	if err := ValidateTenant(tenant); err != nil {
		return domain.Credential{}, err
	}
	if expiresAt.IsZero() {
		expiresAt = m.now().Add(AssumedLifetime)
	}
	cred := domain.Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TenantPrefix: tenant,
		ExpiresAt:    expiresAt,
	}
	if err := m.store.Save(ctx, cred); err != nil {
		return domain.Credential{}, err
	}
	return cred, nil
}

// Current returns the stored credential without refreshing it.
func (m *Manager) Current(ctx context.Context) (domain.Credential, error) {
	return m.store.Load(ctx)
}

// Disconnect forgets the session.
func (m *Manager) Disconnect(ctx context.Context) error {
	return m.store.Clear(ctx)
}
