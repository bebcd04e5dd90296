package delivery

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	SessionCookie = "session"
	CSRFCookie    = "csrf_token"
	StateCookie   = "oauth_state"
	CSRFHeader    = "X-CSRF-Token"

	stateTTL = 10 * time.Minute
)

// CookieOptions controls attributes shared by every cookie the API sets.
type CookieOptions struct {
	Secure bool
	Domain string
}

// RandomToken returns n random bytes, hex encoded.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (o CookieOptions) set(c *gin.Context, name, value string, maxAge int, httpOnly bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", o.Domain, o.Secure, httpOnly)
}

// SetSession stores the session JWT in an HttpOnly cookie.
func (o CookieOptions) SetSession(c *gin.Context, token string, expiresAt time.Time) {
	o.set(c, SessionCookie, token, int(time.Until(expiresAt).Seconds()), true)
}

func (o CookieOptions) ClearSession(c *gin.Context) {
	o.set(c, SessionCookie, "", -1, true)
}

// SetCSRF stores the double-submit token; scripts must be able to read it.
func (o CookieOptions) SetCSRF(c *gin.Context, token string) {
	o.set(c, CSRFCookie, token, 0, false)
}

// NewState stores a one-time OAuth state value and returns it.
func (o CookieOptions) NewState(c *gin.Context) (string, error) {
	state, err := RandomToken(16)
	if err != nil {
		return "", err
	}
	o.set(c, StateCookie, state, int(stateTTL.Seconds()), true)
	return state, nil
}

// CheckState compares the callback state with the cookie and clears it.
func (o CookieOptions) CheckState(c *gin.Context) bool {
	want, err := c.Cookie(StateCookie)
	o.set(c, StateCookie, "", -1, true)
	if err != nil || want == "" {
		return false
	}
	return tokensEqual(want, c.Query("state"))
}
