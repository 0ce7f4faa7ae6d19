package oauth

import (
	"errors"
	"fmt"
	"regexp"
)

// DefaultPlatformDomain is the retail platform's public domain.
const DefaultPlatformDomain = "retail.lightspeed.app"

// ErrInvalidTenant is returned for a tenant prefix that is not a DNS label.
var ErrInvalidTenant = errors.New("invalid tenant prefix")

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)

// ValidateTenant rejects prefixes that would not form a single host label.
func ValidateTenant(prefix string) error {
	if !tenantPattern.MatchString(prefix) {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, prefix)
	}
	return nil
}

// Endpoints locates the platform's OAuth and API hosts.
type Endpoints struct {
	AuthorizeURL  string
	TenantBaseURL func(tenant string) string
}

// PlatformEndpoints returns the production endpoints for domain.
func PlatformEndpoints(domain string) Endpoints {
	if domain == "" {
		domain = DefaultPlatformDomain
	}
	return Endpoints{
		AuthorizeURL: "https://secure." + domain + "/connect",
		TenantBaseURL: func(tenant string) string {
			return "https://" + tenant + "." + domain
		},
	}
}

// TokenURL is the tenant-scoped token endpoint.
func (e Endpoints) TokenURL(tenant string) string {
	return e.TenantBaseURL(tenant) + "/api/1.0/token"
}

// APIBaseURL is the tenant-scoped REST API root.
func (e Endpoints) APIBaseURL(tenant string) string {
	return e.TenantBaseURL(tenant) + "/api"
}
