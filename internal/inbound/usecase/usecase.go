package usecase

import (
	"context"

	decisiondomain "decisionlog-backend/internal/decision/domain"
	decisionusecase "decisionlog-backend/internal/decision/usecase"
	"decisionlog-backend/internal/inbound/domain"
	"decisionlog-backend/pkg/ai"
	"decisionlog-backend/pkg/fcm"
	"decisionlog-backend/pkg/mailer"
)

// Usecase runs inbound messages through intent detection and extraction
type Usecase interface {
	// Ingest never retries; a message id already stored is a duplicate
	Ingest(ctx context.Context, msg *domain.Message) (*domain.Result, error)
}

// Extractor asks the model for a structured decision
type Extractor interface {
	ExtractDecision(ctx context.Context, thread string) (*ai.DecisionExtraction, error)
}

// Searcher answers query-intent messages
type Searcher interface {
	TopDecisions(ctx context.Context, viewer decisiondomain.Viewer, query string, limit int) ([]*decisiondomain.Decision, error)
}

// MailSender delivers email replies
type MailSender interface {
	Send(ctx context.Context, r mailer.Reply) error
}

// SlackResponder posts ephemeral messages into the workspace a message came from
type SlackResponder interface {
	PostConfirmation(ctx context.Context, teamID, channelID, userID, summary, token string) error
	PostText(ctx context.Context, teamID, channelID, userID, text string) error
}

// PushSender delivers device notifications, returning rejected tokens
type PushSender interface {
	SendToDevices(ctx context.Context, tokens []string, n fcm.NotificationData) ([]string, error)
}

// TagQueue schedules background tagging
type TagQueue interface {
	QueueJob(job decisionusecase.TagJob) bool
}
