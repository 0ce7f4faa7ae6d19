package middleware

import (
	"log/slog"
	"net/http"

	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/logger"
)

// RequestLogger returns middleware that builds a request-scoped logger
// enriched with correlation_id, tenant_prefix, trace_id and span_id, then
// stores it in context via logger.NewContext.
//
// tenantCookie names the cookie holding the POS tenant prefix; an empty name
// disables tenant tagging. Mount after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger, tenantCookie string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if tenantCookie != "" {
				if c, err := r.Cookie(tenantCookie); err == nil && c.Value != "" {
					ctx = logger.WithTenant(ctx, c.Value)
				}
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
