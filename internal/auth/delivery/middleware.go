package delivery

import (
	"crypto/subtle"
	"net/http"
	"strings"

	authdomain "decisionlog-backend/internal/auth/domain"
	"decisionlog-backend/internal/auth/usecase"

	"github.com/gin-gonic/gin"
)

const (
	userKey       = "user"
	bearerAuthKey = "bearer_auth"
)

// sessionToken reads the Bearer header first, then the session cookie.
func sessionToken(c *gin.Context) (token string, bearer bool, ok bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", true, false
		}
		return parts[1], true, true
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, false, true
	}
	return "", false, false
}

func AuthMiddleware(authUsecase usecase.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, bearer, ok := sessionToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		user, err := authUsecase.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Set("userID", user.ID)
		c.Set(bearerAuthKey, bearer)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid session exists and never aborts.
func OptionalAuth(authUsecase usecase.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, bearer, ok := sessionToken(c); ok {
			if user, err := authUsecase.ValidateToken(c.Request.Context(), token); err == nil {
				c.Set(userKey, user)
				c.Set(bearerAuthKey, bearer)
			}
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *authdomain.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*authdomain.User)
	return user
}

// CSRFMiddleware enforces the double-submit check on cookie-authenticated
// unsafe requests. Bearer clients are exempt because browsers never attach
// that header cross-site.
func CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if c.GetBool(bearerAuthKey) {
			c.Next()
			return
		}

		cookie, err := c.Cookie(CSRFCookie)
		if err != nil || cookie == "" || !tokensEqual(cookie, c.GetHeader(CSRFHeader)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid CSRF token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// EnsureCSRFCookie issues a CSRF cookie to clients that lack one.
func EnsureCSRFCookie(opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v, err := c.Cookie(CSRFCookie); err != nil || v == "" {
			if token, err := RandomToken(32); err == nil {
				opts.SetCSRF(c, token)
			}
		}
		c.Next()
	}
}

func tokensEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
