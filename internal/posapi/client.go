// Package posapi is the authenticated client for the retail platform's REST
// API. Every call passes through the token manager first, so no request is
// sent with an expired access token.
package posapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/httpclient"
)

const (
	tracerName = "github.com/riazm868/pharmacy-rx-manager-sub000/internal/posapi"

	// PingTimeout bounds the reachability check used for status polling.
	PingTimeout = 3 * time.Second

	maxErrorBody = 4 << 10
)

// TokenSource yields a credential that is valid for the next request.
type TokenSource interface {
	EnsureValid(ctx context.Context) (domain.Credential, error)
}

// Client calls the platform API for the connected tenant.
type Client struct {
	tokens  TokenSource
	http    httpclient.Doer
	baseURL func(tenant string) string
}

// New creates a Client. baseURL maps a tenant prefix to its API root
// (https://{tenant}.<platform>/api).
func New(tokens TokenSource, doer httpclient.Doer, baseURL func(tenant string) string) *Client {
	return &Client{tokens: tokens, http: doer, baseURL: baseURL}
}

// do authenticates and sends one request, decoding a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "posapi "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("pos.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	cred, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("pos.tenant", cred.TenantPrefix))

	u := c.baseURL(cred.TenantPrefix) + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("pos api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.APIError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Method:     method,
			Path:       path,
			Body:       string(raw),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func pageQuery(page, pageSize int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))
	return q
}

// ListProducts fetches one page of products.
func (c *Client) ListProducts(ctx context.Context, page, pageSize int) (domain.Page[domain.ExternalProduct], error) {
	var out domain.Page[domain.ExternalProduct]
	err := c.do(ctx, http.MethodGet, "/2.0/products", pageQuery(page, pageSize), nil, &out)
	return out, err
}

// ListCustomers fetches one page of customers.
func (c *Client) ListCustomers(ctx context.Context, page, pageSize int) (domain.Page[domain.ExternalCustomer], error) {
	var out domain.Page[domain.ExternalCustomer]
	err := c.do(ctx, http.MethodGet, "/2.0/customers", pageQuery(page, pageSize), nil, &out)
	return out, err
}

type listEnvelope[T any] struct {
	Data []T `json:"data"`
}

// Registers lists the account's registers.
func (c *Client) Registers(ctx context.Context) ([]domain.Register, error) {
	var out listEnvelope[domain.Register]
	err := c.do(ctx, http.MethodGet, "/2.0/registers", nil, nil, &out)
	return out.Data, err
}

// Users lists the account's staff users.
func (c *Client) Users(ctx context.Context) ([]domain.User, error) {
	var out listEnvelope[domain.User]
	err := c.do(ctx, http.MethodGet, "/2.0/users", nil, nil, &out)
	return out.Data, err
}

// Taxes lists the account's sales taxes.
func (c *Client) Taxes(ctx context.Context) ([]domain.Tax, error) {
	var out listEnvelope[domain.Tax]
	err := c.do(ctx, http.MethodGet, "/2.0/taxes", nil, nil, &out)
	return out.Data, err
}

// RetailerSettings fetches the account-wide settings.
func (c *Client) RetailerSettings(ctx context.Context) (domain.RetailerSettings, error) {
	var out struct {
		Data domain.RetailerSettings `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/2.0/retailer", nil, nil, &out)
	return out.Data, err
}

// CreateParkedSale submits a sale document and returns what the platform
// created. ReferenceNumber is left for the caller to derive.
func (c *Client) CreateParkedSale(ctx context.Context, sale domain.ParkedSale) (domain.ParkedSaleResult, error) {
	var out struct {
		RegisterSale struct {
			ID            flexString `json:"id"`
			InvoiceNumber flexString `json:"invoice_number"`
			Status        string     `json:"status"`
			TotalPrice    flexString `json:"total_price"`
			TotalTax      flexString `json:"total_tax"`
		} `json:"register_sale"`
	}
	if err := c.do(ctx, http.MethodPost, "/register_sales", nil, newSaleBody(sale), &out); err != nil {
		return domain.ParkedSaleResult{}, err
	}

	rs := out.RegisterSale
	if rs.ID == "" {
		return domain.ParkedSaleResult{}, fmt.Errorf("create parked sale: response has no sale id")
	}
	return domain.ParkedSaleResult{
		ID:            string(rs.ID),
		InvoiceNumber: string(rs.InvoiceNumber),
		Status:        rs.Status,
		TotalPrice:    decimalOrZero(rs.TotalPrice),
		TotalTax:      decimalOrZero(rs.TotalTax),
	}, nil
}

// Ping checks platform reachability for the connected tenant with a short
// timeout. Any HTTP response counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	err := c.do(ctx, http.MethodGet, "/2.0/retailer", nil, nil, nil)
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return nil
	}
	return err
}
