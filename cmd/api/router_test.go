package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authdelivery "decisionlog-backend/internal/auth/delivery"
	authdomain "decisionlog-backend/internal/auth/domain"
	authUsecase "decisionlog-backend/internal/auth/usecase"
	decisionDelivery "decisionlog-backend/internal/decision/delivery"
	decisiondomain "decisionlog-backend/internal/decision/domain"
	decisionUsecase "decisionlog-backend/internal/decision/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAuth struct {
	authUsecase.AuthUsecase
}

func (stubAuth) ValidateToken(_ context.Context, token string) (*authdomain.User, error) {
	if token != "good" {
		return nil, authUsecase.ErrInvalidToken
	}
	return &authdomain.User{ID: "u1", Email: "alice@example.com"}, nil
}

type stubPinger struct {
	status int
	err    error
	got    string
}

func (p *stubPinger) Ping(_ context.Context, baseURL string) (int, error) {
	p.got = baseURL
	return p.status, p.err
}

type stubDecisions struct {
	decisionUsecase.DecisionUsecase
}

func (stubDecisions) Reject(_ context.Context, token string) (decisiondomain.ConfirmOutcome, error) {
	if token == "pending" {
		return decisiondomain.OutcomeRejected, nil
	}
	return "", decisiondomain.ErrNotFound
}

func newTestRouter(t *testing.T, pinger OllamaPinger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r, err := NewEngine(zap.NewNop(), authdelivery.CookieOptions{}, "https://decisions.example.com/app")
	require.NoError(t, err)
	SetupRoutes(r, Handlers{
		Ollama:    pinger,
		Decisions: decisionDelivery.NewDecisionHandler(stubDecisions{}, zap.NewNop()),
	}, stubAuth{})
	return r
}

func TestRejectLinkRendersHTML(t *testing.T) {
	r := newTestRouter(t, &stubPinger{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/decisions/reject?token=pending", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Decision rejected")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/decisions/reject?token=gone", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Link expired")
}

func TestHealthAndCSRFCookie(t *testing.T) {
	r := newTestRouter(t, &stubPinger{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), authdelivery.CSRFCookie+"=")
}

func TestUnsafeCookieRequestNeedsCSRFHeader(t *testing.T) {
	pinger := &stubPinger{status: http.StatusOK}
	r := newTestRouter(t, pinger)

	send := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/settings/ollama/test", nil)
		req.AddCookie(&http.Cookie{Name: authdelivery.SessionCookie, Value: "good"})
		req.AddCookie(&http.Cookie{Name: authdelivery.CSRFCookie, Value: "tok"})
		if header != "" {
			req.Header.Set(authdelivery.CSRFHeader, header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusForbidden, send("").Code)
	assert.Equal(t, http.StatusForbidden, send("other").Code)
	assert.Equal(t, http.StatusOK, send("tok").Code)
}

func TestBearerRequestSkipsCSRF(t *testing.T) {
	r := newTestRouter(t, &stubPinger{status: http.StatusOK})

	req := httptest.NewRequest(http.MethodPost, "/api/settings/ollama/test", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRouteRequiresSession(t *testing.T) {
	r := newTestRouter(t, &stubPinger{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/settings/ollama", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOllamaSettingsRoundTrip(t *testing.T) {
	InitRuntimeConfig("http://localhost:11434/", "llama3")
	pinger := &stubPinger{err: errors.New("connection refused")}
	r := newTestRouter(t, pinger)

	do := func(method, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/settings/ollama", strings.NewReader(body))
		if method == http.MethodPost {
			req.URL.Path = "/api/settings/ollama/test"
		}
		req.Header.Set("Authorization", "Bearer good")
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodGet, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ollama_base_url":"http://localhost:11434","ollama_model":"llama3"}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(http.MethodPut, `{"ollama_base_url":"not a url"}`).Code)

	w = do(http.MethodPut, `{"ollama_base_url":"http://gpu-box:11434"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://gpu-box:11434", GetRuntimeOllamaBaseURL())
	assert.Equal(t, "llama3", GetRuntimeOllamaModel())

	w = do(http.MethodPost, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "http://gpu-box:11434", pinger.got)
}

func TestCORSAllowsOnlyBaseOrigin(t *testing.T) {
	r := newTestRouter(t, &stubPinger{})

	req := httptest.NewRequest(http.MethodOptions, "/api/decisions/reject", nil)
	req.Header.Set("Origin", "https://decisions.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://decisions.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/api/decisions/reject", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", originOf("http://localhost:8080/dashboard?x=1"))
	assert.Empty(t, originOf(""))
	assert.Empty(t, originOf("not a url"))
}
