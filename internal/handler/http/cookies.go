package http

import (
	"net/http"
	"time"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/oauth"
)

// Session cookies carrying the POS connection across restarts.
const (
	CookieAccessToken  = "pos_access_token"
	CookieRefreshToken = "pos_refresh_token"
	CookieTenant       = "pos_domain_prefix"

	refreshCookieLifetime = oauth.SessionLifetime
)

type cookieJar struct {
	secure bool
	now    func() time.Time
}

func (j cookieJar) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   j.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// set writes the session cookies for cred. The access cookie lives until
// the token expires.
func (j cookieJar) set(w http.ResponseWriter, cred domain.Credential) {
	accessAge := int(cred.ExpiresAt.Sub(j.now()).Seconds())
	if accessAge < 1 {
		accessAge = 1
	}
	http.SetCookie(w, j.cookie(CookieAccessToken, cred.AccessToken, accessAge))
	if cred.RefreshToken != "" {
		http.SetCookie(w, j.cookie(CookieRefreshToken, cred.RefreshToken, int(refreshCookieLifetime.Seconds())))
	}
	http.SetCookie(w, j.cookie(CookieTenant, cred.TenantPrefix, int(refreshCookieLifetime.Seconds())))
}

func (j cookieJar) clear(w http.ResponseWriter) {
	for _, name := range []string{CookieAccessToken, CookieRefreshToken, CookieTenant} {
		http.SetCookie(w, j.cookie(name, "", -1))
	}
}

// session is the credential material found in request cookies.
type session struct {
	accessToken  string
	refreshToken string
	tenant       string
}

func readSession(r *http.Request) (session, bool) {
	var s session
	if c, err := r.Cookie(CookieAccessToken); err == nil {
		s.accessToken = c.Value
	}
	if c, err := r.Cookie(CookieRefreshToken); err == nil {
		s.refreshToken = c.Value
	}
	if c, err := r.Cookie(CookieTenant); err == nil {
		s.tenant = c.Value
	}
	ok := s.tenant != "" && (s.accessToken != "" || s.refreshToken != "")
	return s, ok
}
