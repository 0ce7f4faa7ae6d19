package domain

import "time"

// Credential is the OAuth session with the POS platform. It is a value: a
// refresh produces a new Credential rather than modifying the old one.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TenantPrefix string    `json:"tenant_prefix"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsZero reports whether no session is held.
func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && c.TenantPrefix == ""
}

// Expired reports whether the access token is missing or at or past expiry.
func (c Credential) Expired(now time.Time) bool {
	return c.AccessToken == "" || !now.Before(c.ExpiresAt)
}

// Renewed returns a copy carrying a new access token. An empty refresh token
// keeps the current one, since platforms do not always rotate it.
func (c Credential) Renewed(accessToken, refreshToken string, expiresAt time.Time) Credential {
	next := c
	next.AccessToken = accessToken
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	next.ExpiresAt = expiresAt
	return next
}
