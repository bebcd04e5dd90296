package dashboard

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authdomain "decisionlog-backend/internal/auth/domain"
	"decisionlog-backend/internal/decision/domain"
	decisionusecase "decisionlog-backend/internal/decision/usecase"
	searchdomain "decisionlog-backend/internal/search/domain"
	searchusecase "decisionlog-backend/internal/search/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDecisions struct {
	decisionusecase.DecisionUsecase
	decisions []*domain.Decision
	total     int64
	filter    domain.ListFilter
}

func (s *stubDecisions) List(_ context.Context, _ domain.Viewer, f domain.ListFilter) ([]*domain.Decision, int64, error) {
	s.filter = f
	return s.decisions, s.total, nil
}

func (s *stubDecisions) ListTags(context.Context, domain.Viewer) ([]domain.TagCount, error) {
	return []domain.TagCount{{Name: "infra", Count: 2}}, nil
}

func (s *stubDecisions) Get(_ context.Context, _ domain.Viewer, id string) (*domain.Decision, error) {
	for _, d := range s.decisions {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, domain.ErrNotFound
}

type stubSearch struct {
	searchusecase.SearchUsecase
}

func (stubSearch) Search(_ context.Context, _ domain.Viewer, q searchdomain.Query) (*searchdomain.Page, error) {
	if q.Cursor == "bad" {
		return nil, searchdomain.ErrInvalidCursor
	}
	return &searchdomain.Page{
		Query:      q.Text,
		Total:      1,
		Decisions:  []searchdomain.DecisionHit{{Rank: 0.5, Decision: sampleDecision()}},
		Messages:   []searchdomain.MessageHit{{ID: "m1", Subject: "Re: database", InternalDate: time.Now(), Live: true}},
		NextCursor: "abc",
	}, nil
}

func sampleDecision() *domain.Decision {
	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	return &domain.Decision{
		ID:            "d1",
		Summary:       "Move the API to Postgres 16",
		DecisionMaker: "alice@example.com",
		Witnesses:     []string{"bob@example.com"},
		DecisionDate:  &day,
		Priority:      domain.PriorityHigh,
		Type:          domain.TypeTechnical,
		Status:        domain.StatusPending,
		Source:        domain.SourceEmail,
		Tags:          []domain.Tag{{Name: "infra"}},
		ParsedContext: domain.ParsedContext{KeyPoints: []string{"pg16 by Q2"}},
		CreatedAt:     day,
	}
}

func newRouter(t *testing.T, h *PageHandler, user *authdomain.User) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tmpl, err := LoadTemplates()
	require.NoError(t, err)

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set("user", user)
		}
		c.Next()
	})
	r.GET("/", h.Dashboard)
	r.GET("/login", h.Login)
	r.GET("/decisions/:id", h.Decision)
	r.GET("/search", h.Search)
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestTemplatesExecute(t *testing.T) {
	tmpl, err := LoadTemplates()
	require.NoError(t, err)

	for _, name := range []string{"login.html", "search.html", "decision.html"} {
		var buf bytes.Buffer
		require.NoError(t, tmpl.ExecuteTemplate(&buf, name, map[string]any{}), name)
		assert.Contains(t, buf.String(), "Decision Log", name)
	}

	var buf bytes.Buffer
	require.NoError(t, tmpl.ExecuteTemplate(&buf, "confirm.html", map[string]any{
		"Outcome": "confirmed", "Decision": sampleDecision(),
	}))
	assert.Contains(t, buf.String(), "Decision confirmed")
	assert.Contains(t, buf.String(), "/decisions/d1")

	buf.Reset()
	require.NoError(t, tmpl.ExecuteTemplate(&buf, "confirm.html", map[string]any{
		"Outcome": "", "NotFound": true,
	}))
	assert.Contains(t, buf.String(), "Link expired")
}

func TestDashboardRedirectsAnonymous(t *testing.T) {
	r := newRouter(t, NewPageHandler(&stubDecisions{}, stubSearch{}, zap.NewNop()), nil)

	w := get(r, "/")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = get(r, "/login")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/auth/google/login")
}

func TestDashboardListsDecisions(t *testing.T) {
	decisions := &stubDecisions{decisions: []*domain.Decision{sampleDecision()}, total: 30}
	user := &authdomain.User{ID: "u1", Email: "alice@example.com"}
	r := newRouter(t, NewPageHandler(decisions, stubSearch{}, zap.NewNop()), user)

	w := get(r, "/?priority=high")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Move the API to Postgres 16")
	assert.Contains(t, body, "#infra (2)")
	assert.Contains(t, body, "Mar 4, 2025")
	assert.Contains(t, body, "awaiting confirmation")
	assert.Contains(t, body, "Connect Gmail")
	assert.Contains(t, body, "offset=1")
	assert.Equal(t, pageSize, decisions.filter.Limit)
	assert.Equal(t, domain.PriorityHigh, decisions.filter.Priority)
}

func TestLoginRedirectsSignedIn(t *testing.T) {
	r := newRouter(t, NewPageHandler(&stubDecisions{}, stubSearch{}, zap.NewNop()), &authdomain.User{ID: "u1"})
	w := get(r, "/login")
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestDecisionPage(t *testing.T) {
	decisions := &stubDecisions{decisions: []*domain.Decision{sampleDecision()}}
	r := newRouter(t, NewPageHandler(decisions, stubSearch{}, zap.NewNop()), &authdomain.User{ID: "u1", Email: "alice@example.com"})

	w := get(r, "/decisions/d1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bob@example.com")

	w = get(r, "/decisions/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Decision not found.")
}

func TestSearchPage(t *testing.T) {
	r := newRouter(t, NewPageHandler(&stubDecisions{}, stubSearch{}, zap.NewNop()), &authdomain.User{ID: "u1", Email: "alice@example.com"})

	w := get(r, "/search")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(r, "/search?q=postgres")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Move the API to Postgres 16")
	assert.Contains(t, body, "Re: database")
	assert.Contains(t, body, "cursor=abc")

	w = get(r, "/search?q=postgres&cursor=bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
