package dashboard

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"

	authdelivery "decisionlog-backend/internal/auth/delivery"
	decisiondelivery "decisionlog-backend/internal/decision/delivery"
	"decisionlog-backend/internal/decision/domain"
	decisionusecase "decisionlog-backend/internal/decision/usecase"
	searchdelivery "decisionlog-backend/internal/search/delivery"
	searchdomain "decisionlog-backend/internal/search/domain"
	searchusecase "decisionlog-backend/internal/search/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const pageSize = 25

// PageHandler serves the server-rendered dashboard.
type PageHandler struct {
	decisions decisionusecase.DecisionUsecase
	search    searchusecase.SearchUsecase
	log       *zap.Logger
}

func NewPageHandler(decisions decisionusecase.DecisionUsecase, search searchusecase.SearchUsecase, log *zap.Logger) *PageHandler {
	return &PageHandler{decisions: decisions, search: search, log: log.Named("dashboard")}
}

func (h *PageHandler) page(c *gin.Context, title string, data gin.H) gin.H {
	data["Title"] = title
	if user := authdelivery.CurrentUser(c); user != nil {
		data["User"] = user
	}
	return data
}

func (h *PageHandler) requireUser(c *gin.Context) bool {
	if authdelivery.CurrentUser(c) == nil {
		c.Redirect(http.StatusFound, "/login")
		return false
	}
	return true
}

// Dashboard lists the viewer's decisions with filters and tag counts
// GET /
func (h *PageHandler) Dashboard(c *gin.Context) {
	if !h.requireUser(c) {
		return
	}
	ctx := c.Request.Context()
	viewer := decisiondelivery.Viewer(c)

	filter := decisiondelivery.FilterFromQuery(c)
	if c.Query("limit") == "" {
		filter.Limit = pageSize
	}
	decisions, total, err := h.decisions.List(ctx, viewer, filter)
	if err != nil {
		h.log.Error("list decisions", zap.Error(err))
		c.HTML(http.StatusInternalServerError, "dashboard.html", h.page(c, "Decisions", gin.H{
			"Filter": filter, "Total": int64(0), "Error": "Could not load decisions.",
		}))
		return
	}
	tags, err := h.decisions.ListTags(ctx, viewer)
	if err != nil {
		h.log.Warn("list tags", zap.Error(err))
	}

	data := gin.H{
		"Filter":         filter,
		"Decisions":      decisions,
		"Total":          total,
		"Tags":           tags,
		"Statuses":       []domain.Status{domain.StatusPending, domain.StatusConfirmed},
		"Priorities":     []domain.Priority{domain.PriorityCritical, domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow},
		"Types":          []domain.Type{domain.TypeTechnical, domain.TypeBudget, domain.TypeTimeline, domain.TypePersonnel, domain.TypeStrategic, domain.TypeOperational},
		"GmailConnected": authdelivery.CurrentUser(c).GmailConnected(),
	}
	if next := filter.Offset + len(decisions); len(decisions) > 0 && int64(next) < total {
		q := c.Request.URL.Query()
		q.Set("offset", strconv.Itoa(next))
		data["NextURL"] = template.URL("/?" + q.Encode())
	}
	c.HTML(http.StatusOK, "dashboard.html", h.page(c, "Decisions", data))
}

// Decision renders one decision
// GET /decisions/:id
func (h *PageHandler) Decision(c *gin.Context) {
	if !h.requireUser(c) {
		return
	}
	d, err := h.decisions.Get(c.Request.Context(), decisiondelivery.Viewer(c), c.Param("id"))
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrForbidden):
		c.HTML(http.StatusNotFound, "decision.html", h.page(c, "Not found", gin.H{"NotFound": true}))
		return
	case err != nil:
		h.log.Error("get decision", zap.String("id", c.Param("id")), zap.Error(err))
		c.HTML(http.StatusInternalServerError, "decision.html", h.page(c, "Error", gin.H{"NotFound": true}))
		return
	}
	c.HTML(http.StatusOK, "decision.html", h.page(c, d.Summary, gin.H{"Decision": d}))
}

// Search renders full-text results with keyset paging
// GET /search?q=...
func (h *PageHandler) Search(c *gin.Context) {
	if !h.requireUser(c) {
		return
	}
	q := searchdelivery.QueryFromRequest(c)
	data := gin.H{"Query": q.Text, "Fallback": q.Fallback}
	if q.Text == "" {
		c.HTML(http.StatusOK, "search.html", h.page(c, "Search", data))
		return
	}

	result, err := h.search.Search(c.Request.Context(), decisiondelivery.Viewer(c), q)
	status := http.StatusOK
	switch {
	case errors.Is(err, searchdomain.ErrInvalidCursor):
		status = http.StatusBadRequest
		data["Error"] = "That page link is no longer valid. Start a new search."
	case err != nil:
		status = http.StatusInternalServerError
		h.log.Error("search page", zap.Error(err))
		data["Error"] = "Search failed. Please try again."
	default:
		data["Page"] = result
	}
	c.HTML(status, "search.html", h.page(c, "Search", data))
}

// Login renders the provider choice
// GET /login
func (h *PageHandler) Login(c *gin.Context) {
	if authdelivery.CurrentUser(c) != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	data := gin.H{}
	if msg := c.Query("error"); msg != "" {
		data["Error"] = "Sign-in failed: " + msg
	}
	c.HTML(http.StatusOK, "login.html", h.page(c, "Sign in", data))
}
