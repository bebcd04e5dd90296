package delivery

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	authdelivery "decisionlog-backend/internal/auth/delivery"
	"decisionlog-backend/internal/decision/domain"
	"decisionlog-backend/internal/decision/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DecisionHandler handles decision-related HTTP requests
type DecisionHandler struct {
	decisionUsecase usecase.DecisionUsecase
	log             *zap.Logger
}

// NewDecisionHandler creates a new DecisionHandler
func NewDecisionHandler(decisionUsecase usecase.DecisionUsecase, log *zap.Logger) *DecisionHandler {
	return &DecisionHandler{
		decisionUsecase: decisionUsecase,
		log:             log.Named("decision_handler"),
	}
}

type addTagsRequest struct {
	Tags []string `json:"tags" binding:"required,min=1"`
}

// Viewer builds the access identity of the signed-in user.
func Viewer(c *gin.Context) domain.Viewer {
	user := authdelivery.CurrentUser(c)
	if user == nil {
		return domain.Viewer{}
	}
	return domain.Viewer{UserID: user.ID, Email: user.Email}
}

// FilterFromQuery reads list filters shared by the API, export and dashboard.
func FilterFromQuery(c *gin.Context) domain.ListFilter {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	f := domain.ListFilter{
		Tag:    strings.ToLower(strings.TrimSpace(c.Query("tag"))),
		Status: domain.Status(c.Query("status")),
		Source: domain.Source(c.Query("source")),
		Limit:  limit,
		Offset: offset,
	}
	if p := c.Query("priority"); p != "" {
		f.Priority = domain.ParsePriority(p)
	}
	if t := c.Query("type"); t != "" {
		f.Type = domain.ParseType(t)
	}
	return f
}

func (h *DecisionHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetDecisions returns decisions visible to the user
// GET /api/decisions?tag=budget&status=confirmed&priority=high&type=technical&limit=50&offset=0
func (h *DecisionHandler) GetDecisions(c *gin.Context) {
	filter := FilterFromQuery(c)
	decisions, total, err := h.decisionUsecase.List(c.Request.Context(), Viewer(c), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"decisions": decisions,
		"total":     total,
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

// GetDecision returns a single decision
// GET /api/decisions/:id
func (h *DecisionHandler) GetDecision(c *gin.Context) {
	d, err := h.decisionUsecase.Get(c.Request.Context(), Viewer(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// DeleteDecision removes a decision
// DELETE /api/decisions/:id
func (h *DecisionHandler) DeleteDecision(c *gin.Context) {
	if err := h.decisionUsecase.Delete(c.Request.Context(), Viewer(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "decision deleted"})
}

// ExportDecisions streams decisions as CSV or JSON
// GET /api/decisions/export?format=csv&tag=budget
func (h *DecisionHandler) ExportDecisions(c *gin.Context) {
	format, err := usecase.ParseExportFormat(c.Query("format"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == usecase.FormatJSON {
		contentType = "application/json; charset=utf-8"
	}
	filename := "decisions-" + time.Now().UTC().Format("20060102") + "." + string(format)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	if err := h.decisionUsecase.Export(c.Request.Context(), Viewer(c), FilterFromQuery(c), format, c.Writer); err != nil {
		// Headers are already sent; the body is truncated.
		h.log.Error("export failed", zap.Error(err))
	}
}

func wantsJSON(c *gin.Context) bool {
	return c.Query("format") == "json" || strings.Contains(c.GetHeader("Accept"), "application/json")
}

// ConfirmDecision confirms via the emailed link
// GET /api/decisions/confirm?token=...
func (h *DecisionHandler) ConfirmDecision(c *gin.Context) {
	d, outcome, err := h.decisionUsecase.Confirm(c.Request.Context(), c.Query("token"))
	h.renderOutcome(c, d, outcome, err)
}

// RejectDecision discards a pending decision via the emailed link
// GET /api/decisions/reject?token=...
func (h *DecisionHandler) RejectDecision(c *gin.Context) {
	outcome, err := h.decisionUsecase.Reject(c.Request.Context(), c.Query("token"))
	h.renderOutcome(c, nil, outcome, err)
}

func (h *DecisionHandler) renderOutcome(c *gin.Context, d *domain.Decision, outcome domain.ConfirmOutcome, err error) {
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		} else {
			h.log.Error("confirmation failed", zap.Error(err))
		}
	}

	if wantsJSON(c) {
		if err != nil {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(status, gin.H{"result": outcome, "decision": d})
		return
	}

	c.HTML(status, "confirm.html", gin.H{
		"Outcome":  string(outcome),
		"Decision": d,
		"NotFound": status == http.StatusNotFound,
		"Failed":   status == http.StatusInternalServerError,
	})
}

// AddTags attaches tags to a decision
// POST /api/decisions/:id/tags
func (h *DecisionHandler) AddTags(c *gin.Context) {
	var req addTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.decisionUsecase.AddTags(c.Request.Context(), Viewer(c), c.Param("id"), req.Tags)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// RemoveTag detaches one tag
// DELETE /api/decisions/:id/tags/:tag
func (h *DecisionHandler) RemoveTag(c *gin.Context) {
	if err := h.decisionUsecase.RemoveTag(c.Request.Context(), Viewer(c), c.Param("id"), c.Param("tag")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListTags returns tags with counts of visible decisions
// GET /api/tags
func (h *DecisionHandler) ListTags(c *gin.Context) {
	tags, err := h.decisionUsecase.ListTags(c.Request.Context(), Viewer(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}
