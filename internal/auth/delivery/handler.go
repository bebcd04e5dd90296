package delivery

import (
	"errors"
	"net/http"

	authdto "decisionlog-backend/internal/auth/dto"
	"decisionlog-backend/internal/auth/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	authUsecase usecase.AuthUsecase
	cookies     CookieOptions
	log         *zap.Logger
}

func NewHandler(authUsecase usecase.AuthUsecase, cookies CookieOptions, log *zap.Logger) *Handler {
	return &Handler{authUsecase: authUsecase, cookies: cookies, log: log.Named("auth")}
}

// Login redirects to the provider consent screen
// GET /api/auth/:provider/login
func (h *Handler) Login(c *gin.Context) {
	state, err := h.cookies.NewState(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	url, err := h.authUsecase.AuthCodeURL(c.Param("provider"), state)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Callback completes the OAuth flow and sets the session cookie
// GET /api/auth/:provider/callback?code=...&state=...
func (h *Handler) Callback(c *gin.Context) {
	if !h.cookies.CheckState(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OAuth state"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	session, err := h.authUsecase.HandleCallback(c.Request.Context(), c.Param("provider"), code)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, usecase.ErrUnknownProvider) {
			status = http.StatusNotFound
		}
		h.log.Warn("oauth callback failed", zap.String("provider", c.Param("provider")), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	csrf, err := RandomToken(32)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.cookies.SetSession(c, session.Token, session.ExpiresAt)
	h.cookies.SetCSRF(c, csrf)
	h.log.Info("user signed in", zap.String("user_id", session.User.ID), zap.String("provider", session.User.Provider))
	c.Redirect(http.StatusFound, "/")
}

// Me returns the signed-in user
// GET /api/auth/me
func (h *Handler) Me(c *gin.Context) {
	user := CurrentUser(c)
	c.JSON(http.StatusOK, authdto.MeResponse{User: user, GmailConnected: user.GmailConnected()})
}

// Logout clears the session cookie
// POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	h.cookies.ClearSession(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// CSRF returns the current double-submit token, minting one if needed
// GET /api/auth/csrf
func (h *Handler) CSRF(c *gin.Context) {
	token, err := c.Cookie(CSRFCookie)
	if err != nil || token == "" {
		if token, err = RandomToken(32); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.cookies.SetCSRF(c, token)
	}
	c.JSON(http.StatusOK, gin.H{"csrf_token": token})
}

// RegisterFCMToken stores a push token for the current user
// POST /api/fcm/register
func (h *Handler) RegisterFCMToken(c *gin.Context) {
	var req authdto.RegisterFCMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := CurrentUser(c)
	if err := h.authUsecase.RegisterFCMToken(c.Request.Context(), user.ID, &req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "token registered"})
}

// UnregisterFCMToken removes a push token
// DELETE /api/fcm/:token
func (h *Handler) UnregisterFCMToken(c *gin.Context) {
	user := CurrentUser(c)
	if err := h.authUsecase.UnregisterFCMToken(c.Request.Context(), user.ID, c.Param("token")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
