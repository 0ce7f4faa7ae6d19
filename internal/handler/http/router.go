package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/health"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/middleware"
)

// serviceName labels request metrics and spans.
const serviceName = "pos-integration"

// NewRouter creates a chi router with all POS integration routes registered.
func NewRouter(
	posHandler *POSHandler,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsOrigins []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(corsOrigins)))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger, CookieTenant))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Route("/api/v1/pos", func(r chi.Router) {
		// OAuth redirects
		r.Get("/connect", posHandler.Connect)
		r.Get("/callback", posHandler.Callback)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(posHandler.ResumeSession)

			r.Post("/disconnect", posHandler.Disconnect)
			r.Get("/status", posHandler.Status)
			r.Get("/sale-config", posHandler.SaleConfig)
			r.Get("/parked-sales", posHandler.ListParkedSales)
			r.Post("/prescriptions/{id}/park", posHandler.Park)

			// A full catalog sync can take minutes.
			r.With(chimw.Timeout(10*time.Minute)).Post("/sync", posHandler.Sync)
		})
	})

	return r
}
