package delivery

import (
	"errors"
	"net/http"
	"strconv"

	decisiondelivery "decisionlog-backend/internal/decision/delivery"
	"decisionlog-backend/internal/search/domain"
	"decisionlog-backend/internal/search/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SearchHandler handles search HTTP requests
type SearchHandler struct {
	searchUsecase usecase.SearchUsecase
	log           *zap.Logger
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(searchUsecase usecase.SearchUsecase, log *zap.Logger) *SearchHandler {
	return &SearchHandler{searchUsecase: searchUsecase, log: log.Named("search_handler")}
}

// QueryFromRequest reads search parameters shared by the API and the search page.
func QueryFromRequest(c *gin.Context) domain.Query {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	q := domain.Query{
		Text:       c.Query("q"),
		Limit:      limit,
		Offset:     offset,
		Cursor:     c.Query("cursor"),
		Pagination: domain.PaginateOffset,
	}
	if c.Query("paginate") == string(domain.PaginateKeyset) {
		q.Pagination = domain.PaginateKeyset
	}
	switch c.Query("fallback") {
	case "1", "true", "yes":
		q.Fallback = true
	}
	return q
}

func (h *SearchHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCursor), errors.Is(err, domain.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrSemanticUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.log.Error("search failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Search runs full-text search over decisions and mirrored Gmail
// GET /api/search?q=budget&limit=20&offset=0&paginate=keyset&cursor=...&fallback=1
func (h *SearchHandler) Search(c *gin.Context) {
	page, err := h.searchUsecase.Search(c.Request.Context(), decisiondelivery.Viewer(c), QueryFromRequest(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Semantic searches confirmed decisions by meaning
// GET /api/search/semantic?q=...&limit=10
func (h *SearchHandler) Semantic(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	hits, err := h.searchUsecase.Semantic(c.Request.Context(), decisiondelivery.Viewer(c), c.Query("q"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

// Suggestions returns tag names matching a prefix
// GET /api/search/suggestions?q=bud
func (h *SearchHandler) Suggestions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "8"))
	names, err := h.searchUsecase.Suggestions(c.Request.Context(), decisiondelivery.Viewer(c), c.Query("q"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": names})
}
