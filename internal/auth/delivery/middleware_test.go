package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	authdomain "decisionlog-backend/internal/auth/domain"
	authdto "decisionlog-backend/internal/auth/dto"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeAuth struct{}

func (fakeAuth) AuthCodeURL(string, string) (string, error) { return "", nil }
func (fakeAuth) HandleCallback(context.Context, string, string) (*authdto.SessionResponse, error) {
	return nil, nil
}
func (fakeAuth) ValidateToken(_ context.Context, token string) (*authdomain.User, error) {
	if token == "good" {
		return &authdomain.User{ID: "u1", Email: "alice@example.com"}, nil
	}
	return nil, errors.New("invalid")
}
func (fakeAuth) IssueToken(*authdomain.User) (*authdto.SessionResponse, error) { return nil, nil }
func (fakeAuth) RegisterFCMToken(context.Context, string, *authdto.RegisterFCMRequest) error {
	return nil
}
func (fakeAuth) UnregisterFCMToken(context.Context, string, string) error { return nil }

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", AuthMiddleware(fakeAuth{}), CSRFMiddleware())
	api.GET("/thing", func(c *gin.Context) { c.String(http.StatusOK, CurrentUser(c).ID) })
	api.POST("/thing", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"bad bearer format", func(r *http.Request) { r.Header.Set("Authorization", "Token good") }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good"}) }, http.StatusOK},
		{"bad cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "bad"}) }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestCSRFMiddleware(t *testing.T) {
	r := newRouter()

	tests := []struct {
		name   string
		cookie string
		header string
		bearer bool
		status int
	}{
		{"missing header", "tok", "", false, http.StatusForbidden},
		{"mismatch", "tok", "other", false, http.StatusForbidden},
		{"match", "tok", "tok", false, http.StatusNoContent},
		{"no cookie", "", "tok", false, http.StatusForbidden},
		{"bearer exempt", "", "", true, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/thing", nil)
			if tt.bearer {
				req.Header.Set("Authorization", "Bearer good")
			} else {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good"})
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeader, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestCheckState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	opts := CookieOptions{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/cb?state=abc", nil)
	c.Request.AddCookie(&http.Cookie{Name: StateCookie, Value: "abc"})
	assert.True(t, opts.CheckState(c))

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/cb?state=evil", nil)
	c.Request.AddCookie(&http.Cookie{Name: StateCookie, Value: "abc"})
	assert.False(t, opts.CheckState(c))
}
