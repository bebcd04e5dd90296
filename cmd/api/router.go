package api

import (
	"net/http"
	"net/url"

	authdelivery "decisionlog-backend/internal/auth/delivery"
	authUsecase "decisionlog-backend/internal/auth/usecase"
	"decisionlog-backend/internal/dashboard"
	decisionDelivery "decisionlog-backend/internal/decision/delivery"
	gmailDelivery "decisionlog-backend/internal/gmailsync/delivery"
	inboundDelivery "decisionlog-backend/internal/inbound/delivery"
	searchDelivery "decisionlog-backend/internal/search/delivery"
	slackDelivery "decisionlog-backend/internal/slackapp/delivery"
	"decisionlog-backend/pkg/logger"
	"decisionlog-backend/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers groups every HTTP handler mounted by SetupRoutes
type Handlers struct {
	Auth      *authdelivery.Handler
	Decisions *decisionDelivery.DecisionHandler
	Search    *searchDelivery.SearchHandler
	Gmail     *gmailDelivery.GmailHandler
	Slack     *slackDelivery.SlackHandler
	Webhooks  *inboundDelivery.WebhookHandler
	Pages     *dashboard.PageHandler
	Ollama    OllamaPinger
}

// NewEngine builds the gin engine with the shared middleware and templates.
// Cross-origin requests are allowed only from the origin of baseURL.
func NewEngine(log *zap.Logger, cookies authdelivery.CookieOptions, baseURL string) (*gin.Engine, error) {
	tmpl, err := dashboard.LoadTemplates()
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.Use(gin.Recovery(), metrics.Middleware(), logger.GinMiddleware(log.Named("http")), corsMiddleware(originOf(baseURL)))
	r.Use(authdelivery.EnsureCSRFCookie(cookies))
	return r, nil
}

// originOf returns scheme://host of a URL, or "" when it has neither.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); origin != "" && origin == allowedOrigin {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SetupRoutes(r *gin.Engine, h Handlers, authUc authUsecase.AuthUsecase) {
	requireAuth := authdelivery.AuthMiddleware(authUc)
	optionalAuth := authdelivery.OptionalAuth(authUc)
	csrf := authdelivery.CSRFMiddleware()

	r.GET("/metrics", metrics.Handler())

	// Pages
	pages := r.Group("/", optionalAuth)
	{
		pages.GET("/", h.Pages.Dashboard)
		pages.GET("/login", h.Pages.Login)
		pages.GET("/decisions/:id", h.Pages.Decision)
		pages.GET("/search", h.Pages.Search)
	}

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.GET("/:provider/login", h.Auth.Login)
			auth.GET("/:provider/callback", h.Auth.Callback)
			auth.GET("/csrf", h.Auth.CSRF)
			auth.GET("/me", requireAuth, h.Auth.Me)
			auth.POST("/logout", optionalAuth, csrf, h.Auth.Logout)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm", requireAuth, csrf)
		{
			fcm.POST("/register", h.Auth.RegisterFCMToken)
			fcm.DELETE("/:token", h.Auth.UnregisterFCMToken)
		}

		// Confirmation links arrive from mail clients without a session
		api.GET("/decisions/confirm", h.Decisions.ConfirmDecision)
		api.GET("/decisions/reject", h.Decisions.RejectDecision)

		decisions := api.Group("/decisions", requireAuth, csrf)
		{
			decisions.GET("", h.Decisions.GetDecisions)
			decisions.GET("/export", h.Decisions.ExportDecisions)
			decisions.GET("/:id", h.Decisions.GetDecision)
			decisions.DELETE("/:id", h.Decisions.DeleteDecision)
			decisions.POST("/:id/tags", h.Decisions.AddTags)
			decisions.DELETE("/:id/tags/:tag", h.Decisions.RemoveTag)
		}
		api.GET("/tags", requireAuth, h.Decisions.ListTags)

		search := api.Group("/search", requireAuth)
		{
			search.GET("", h.Search.Search)
			search.GET("/semantic", h.Search.Semantic)
			search.GET("/suggestions", h.Search.Suggestions)
		}

		gmail := api.Group("/gmail", requireAuth, csrf)
		{
			gmail.GET("/connect", h.Gmail.Connect)
			gmail.GET("/callback", h.Gmail.Callback)
			gmail.GET("/status", h.Gmail.Status)
			gmail.POST("/sync", h.Gmail.Sync)
			gmail.PUT("/settings", h.Gmail.UpdateSettings)
			gmail.DELETE("/disconnect", h.Gmail.Disconnect)
		}

		// Slack calls these directly; requests are checked by signature
		slack := api.Group("/slack")
		{
			slack.GET("/install", requireAuth, h.Slack.Install)
			slack.GET("/oauth/callback", requireAuth, h.Slack.OAuthCallback)
			slack.POST("/events", h.Slack.Events)
			slack.POST("/commands", h.Slack.Commands)
			slack.POST("/interactions", h.Slack.Interactions)
		}

		api.POST("/webhooks/email", h.Webhooks.InboundEmail)

		settings := api.Group("/settings", requireAuth, csrf)
		{
			settings.GET("/ollama", GetOllamaSettings)
			settings.PUT("/ollama", UpdateOllamaSettings)
			settings.POST("/ollama/test", TestOllamaConnection(h.Ollama))
		}
	}
}
