package helpers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "token"

// CookieManager writes the HTTP-only session cookie. Secure deployments run
// the API and frontend on different origins, so a secure cookie also switches
// to SameSite=None; everywhere else Lax is enough (SameSite=None is only
// honored on Secure cookies).
type CookieManager struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func NewCookie(domain string, secure bool) *CookieManager {
	m := &CookieManager{Domain: domain, Secure: secure, SameSite: http.SameSiteLaxMode}
	if secure {
		m.SameSite = http.SameSiteNoneMode
	}
	return m
}

// SetSession stores the token until its expiry.
func (m *CookieManager) SetSession(c *gin.Context, token string, exp time.Time) {
	c.SetSameSite(m.SameSite)
	c.SetCookie(SessionCookieName, token, maxAgeFrom(exp), "/", m.Domain, m.Secure, true)
}

// Clear removes the session cookie. Clearing an absent cookie is a no-op,
// which keeps logout idempotent.
func (m *CookieManager) Clear(c *gin.Context) {
	c.SetSameSite(m.SameSite)
	c.SetCookie(SessionCookieName, "", -1, "/", m.Domain, m.Secure, true)
}

func maxAgeFrom(exp time.Time) int {
	sec := int(time.Until(exp).Seconds())
	if sec < 0 {
		return 0
	}
	return sec
}
