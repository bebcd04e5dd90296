package delivery

import (
	"errors"
	"net/http"
	"net/url"

	authdelivery "decisionlog-backend/internal/auth/delivery"
	"decisionlog-backend/internal/gmailsync/domain"
	"decisionlog-backend/internal/gmailsync/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GmailHandler exposes Gmail connection and sync endpoints
type GmailHandler struct {
	syncUsecase usecase.Usecase
	cookies     authdelivery.CookieOptions
	log         *zap.Logger
}

// NewGmailHandler creates a new GmailHandler
func NewGmailHandler(syncUsecase usecase.Usecase, cookies authdelivery.CookieOptions, log *zap.Logger) *GmailHandler {
	return &GmailHandler{
		syncUsecase: syncUsecase,
		cookies:     cookies,
		log:         log.Named("gmail_handler"),
	}
}

func (h *GmailHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotConnected):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
	default:
		h.log.Error("gmail request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Connect redirects to the Gmail consent screen
// GET /api/gmail/connect
func (h *GmailHandler) Connect(c *gin.Context) {
	state, err := h.cookies.NewState(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Redirect(http.StatusFound, h.syncUsecase.ConnectURL(state))
}

// Callback stores the granted refresh token
// GET /api/gmail/callback?code=...&state=...
func (h *GmailHandler) Callback(c *gin.Context) {
	if !h.cookies.CheckState(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
		return
	}
	if reason := c.Query("error"); reason != "" {
		c.Redirect(http.StatusFound, "/?gmail_error="+url.QueryEscape(reason))
		return
	}

	user := authdelivery.CurrentUser(c)
	if _, err := h.syncUsecase.CompleteConnect(c.Request.Context(), user.ID, c.Query("code")); err != nil {
		h.log.Warn("gmail connect failed", zap.String("user_id", user.ID), zap.Error(err))
		c.Redirect(http.StatusFound, "/?gmail_error="+url.QueryEscape(err.Error()))
		return
	}
	c.Redirect(http.StatusFound, "/?gmail=connected")
}

// Status returns the connection and sync state
// GET /api/gmail/status
func (h *GmailHandler) Status(c *gin.Context) {
	status, err := h.syncUsecase.Status(c.Request.Context(), authdelivery.CurrentUser(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Sync runs a sync pass for the current user
// POST /api/gmail/sync?mode=auto|full|incremental
func (h *GmailHandler) Sync(c *gin.Context) {
	mode, err := domain.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.syncUsecase.Sync(c.Request.Context(), authdelivery.CurrentUser(c).ID, mode)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UpdateSettings changes the filter query, labels and extraction flag
// PUT /api/gmail/settings
func (h *GmailHandler) UpdateSettings(c *gin.Context) {
	var req domain.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.syncUsecase.UpdateSettings(c.Request.Context(), authdelivery.CurrentUser(c).ID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Disconnect forgets the Gmail token and mirrored mail
// DELETE /api/gmail/disconnect
func (h *GmailHandler) Disconnect(c *gin.Context) {
	if err := h.syncUsecase.Disconnect(c.Request.Context(), authdelivery.CurrentUser(c).ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Gmail disconnected"})
}
