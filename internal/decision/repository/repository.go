package repository

import (
	"context"
	"time"

	"decisionlog-backend/internal/decision/domain"
)

// DecisionRepository defines persistence for decisions
type DecisionRepository interface {
	// Create inserts the decision unless its message id is already stored.
	// It reports whether a row was written.
	Create(ctx context.Context, d *domain.Decision) (bool, error)
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)

	FindByID(ctx context.Context, id string) (*domain.Decision, error)
	FindVisible(ctx context.Context, viewer domain.Viewer, id string) (*domain.Decision, error)
	FindVisibleByIDs(ctx context.Context, viewer domain.Viewer, ids []string) ([]*domain.Decision, error)
	FindByToken(ctx context.Context, token string) (*domain.Decision, error)
	List(ctx context.Context, viewer domain.Viewer, filter domain.ListFilter) ([]*domain.Decision, int64, error)
	Delete(ctx context.Context, viewer domain.Viewer, id string) (bool, error)

	// MarkConfirmed flips a pending decision to confirmed, returning rows affected
	MarkConfirmed(ctx context.Context, token string, at time.Time) (int64, error)
	// DeletePending removes a pending decision by token, returning rows affected
	DeletePending(ctx context.Context, token string) (int64, error)
}

// TagRepository defines persistence for tags and their attachments
type TagRepository interface {
	ListNames(ctx context.Context) ([]string, error)
	ListVisible(ctx context.Context, viewer domain.Viewer) ([]domain.TagCount, error)
	// Ensure creates missing tags and returns all of them
	Ensure(ctx context.Context, names []string) ([]domain.Tag, error)
	// Attach links tags to a decision; existing links are left alone
	Attach(ctx context.Context, decisionID string, tagIDs []uint) error
	Detach(ctx context.Context, decisionID, name string) error
}
