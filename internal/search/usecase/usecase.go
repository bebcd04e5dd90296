package usecase

import (
	"context"
	"errors"

	decisiondomain "decisionlog-backend/internal/decision/domain"
	gmailusecase "decisionlog-backend/internal/gmailsync/usecase"
	"decisionlog-backend/internal/search/domain"
	"decisionlog-backend/pkg/gmail"
)

// ErrSemanticUnavailable is returned when no embedding index is configured
var ErrSemanticUnavailable = errors.New("semantic search is not configured")

// SearchUsecase defines search operations
type SearchUsecase interface {
	Search(ctx context.Context, viewer decisiondomain.Viewer, q domain.Query) (*domain.Page, error)
	// TopDecisions returns the best matching visible decisions
	TopDecisions(ctx context.Context, viewer decisiondomain.Viewer, query string, limit int) ([]*decisiondomain.Decision, error)
	Semantic(ctx context.Context, viewer decisiondomain.Viewer, query string, limit int) ([]domain.SemanticHit, error)
	// Suggestions returns tag names close to a typed prefix
	Suggestions(ctx context.Context, viewer decisiondomain.Viewer, prefix string, limit int) ([]string, error)
}

// DecisionLoader loads visible decisions by id
type DecisionLoader interface {
	FindVisibleByIDs(ctx context.Context, viewer decisiondomain.Viewer, ids []string) ([]*decisiondomain.Decision, error)
}

// TagLister lists tags of visible decisions
type TagLister interface {
	ListVisible(ctx context.Context, viewer decisiondomain.Viewer) ([]decisiondomain.TagCount, error)
}

// Mirror opens a user's mailbox and stores fetched messages
type Mirror interface {
	OpenMailbox(ctx context.Context, userID string) (gmailusecase.Mailbox, error)
	StoreMessages(ctx context.Context, userID string, msgs []*gmail.Message) (int, error)
}

// MessageLookup reports which Gmail ids are already mirrored
type MessageLookup interface {
	ExistingIDs(ctx context.Context, userID string, ids []string) (map[string]bool, error)
}

// SemanticIndex finds decision ids by embedding similarity
type SemanticIndex interface {
	Search(ctx context.Context, ownerEmail, query string, limit int) ([]string, []float64, error)
}
