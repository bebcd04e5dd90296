package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	decisiondomain "decisionlog-backend/internal/decision/domain"
	"decisionlog-backend/internal/search/domain"
	"decisionlog-backend/internal/search/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubSearch struct {
	usecase.SearchUsecase
	got domain.Query
}

func (s *stubSearch) Search(_ context.Context, _ decisiondomain.Viewer, q domain.Query) (*domain.Page, error) {
	s.got = q
	if _, err := domain.DecodeCursor(q.Cursor); q.Cursor != "" && err != nil {
		return nil, err
	}
	return &domain.Page{Query: q.Text}, nil
}

func serve(h *SearchHandler, target string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/search", h.Search)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestSearchParsesParameters(t *testing.T) {
	stub := &stubSearch{}
	w := serve(NewSearchHandler(stub, zap.NewNop()), "/api/search?q=vendor+budget&limit=5&paginate=keyset&fallback=1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "vendor budget", stub.got.Text)
	assert.Equal(t, 5, stub.got.Limit)
	assert.Equal(t, domain.PaginateKeyset, stub.got.Pagination)
	assert.True(t, stub.got.Fallback)
}

func TestSearchInvalidCursorIs400(t *testing.T) {
	w := serve(NewSearchHandler(&stubSearch{}, zap.NewNop()), "/api/search?q=x&cursor=bm90LWpzb24")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrInvalidCursor.Error())
}
