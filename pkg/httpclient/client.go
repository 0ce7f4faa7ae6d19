package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	outboundRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_http_requests_total",
			Help: "Total number of outbound HTTP requests by target and status",
		},
		[]string{"target", "method", "status"},
	)

	outboundRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outbound_http_request_duration_seconds",
			Help:    "Outbound HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target", "method"},
	)
)

// Config holds HTTP client configuration.
type Config struct {
	// Name labels metrics for this client, e.g. "pos".
	Name            string
	Timeout         time.Duration
	MaxConnsPerHost int

	// RequestsPerSecond bounds the outbound request rate. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns sensible defaults for an outbound API client.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		Timeout:           60 * time.Second,
		MaxConnsPerHost:   16,
		RequestsPerSecond: 0,
		Burst:             1,
	}
}

// Client wraps http.Client with pooling, an optional rate limiter and request
// metrics. Every request is attempted exactly once; callers see the first
// failure as-is.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
}

// New creates a new HTTP client.
func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: limiter,
		config:  cfg,
	}
}

// Do executes the HTTP request once.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req = req.WithContext(ctx)
	start := time.Now()

	resp, err := c.httpClient.Do(req)

	outboundRequestDuration.WithLabelValues(c.config.Name, req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		outboundRequestsTotal.WithLabelValues(c.config.Name, req.Method, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	outboundRequestsTotal.WithLabelValues(c.config.Name, req.Method, strconv.Itoa(resp.StatusCode)).Inc()

	return resp, nil
}
