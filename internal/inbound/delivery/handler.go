package delivery

import (
	"crypto/subtle"
	"net/http"
	"time"

	decisiondomain "decisionlog-backend/internal/decision/domain"
	"decisionlog-backend/internal/inbound/domain"
	"decisionlog-backend/internal/inbound/usecase"
	"decisionlog-backend/pkg/mailer"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler receives inbound email
type WebhookHandler struct {
	pipeline usecase.Usecase
	secret   string
	log      *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler. An empty secret accepts
// every request.
func NewWebhookHandler(pipeline usecase.Usecase, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline: pipeline,
		secret:   secret,
		log:      log.Named("email_webhook"),
	}
}

// InboundEmail handles a SendGrid Inbound Parse post
// POST /api/webhooks/email?key=...
func (h *WebhookHandler) InboundEmail(c *gin.Context) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.Query("key")), []byte(h.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook key"})
		return
	}

	in, err := mailer.ParseInbound(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := &domain.Message{
		Source:     decisiondomain.SourceEmail,
		MessageID:  in.MessageID,
		ThreadID:   threadID(in),
		From:       in.From,
		To:         in.To,
		Cc:         in.Cc,
		Subject:    in.Subject,
		Text:       in.Text,
		InReplyTo:  in.InReplyTo,
		References: in.References,
		ReceivedAt: time.Now(),
	}

	result, err := h.pipeline.Ingest(c.Request.Context(), msg)
	if err != nil {
		// SendGrid retries non-2xx responses; extraction is never retried.
		h.log.Error("inbound email failed", zap.String("message_id", msg.MessageID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"outcome": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// threadID is the root of the References chain, else the message itself.
func threadID(in *mailer.InboundEmail) string {
	if len(in.References) > 0 {
		return in.References[0]
	}
	if in.InReplyTo != "" {
		return in.InReplyTo
	}
	return in.MessageID
}
