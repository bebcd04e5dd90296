package repository

import (
	"context"
	"time"

	"decisionlog-backend/internal/gmailsync/domain"
)

// SyncStateRepository stores sync cursors and arbitrates the per-user lock
type SyncStateRepository interface {
	Get(ctx context.Context, userID string) (*domain.SyncState, error)
	// Ensure creates the default state row if missing and returns it
	Ensure(ctx context.Context, userID string) (*domain.SyncState, error)
	// TryAcquire marks the state as syncing unless another run holds it.
	// A lock older than staleAfter is taken over.
	TryAcquire(ctx context.Context, userID string, now time.Time, staleAfter time.Duration) (bool, error)
	// Complete releases the lock after a successful run
	Complete(ctx context.Context, userID string, historyID uint64, stored int, at time.Time) error
	// Fail releases the lock and records the error
	Fail(ctx context.Context, userID string, message string) error
	UpdateSettings(ctx context.Context, userID string, filter string, labels []string, extract bool) error
	Delete(ctx context.Context, userID string) error
}

// MessageRepository stores the Gmail metadata and body mirror
type MessageRepository interface {
	// ExistingIDs returns the subset of ids already stored for the user
	ExistingIDs(ctx context.Context, userID string, ids []string) (map[string]bool, error)
	// Save upserts messages and bodies in one transaction
	Save(ctx context.Context, msgs []*domain.GmailMessage, bodies []*domain.GmailBody) error
	DeleteForUser(ctx context.Context, userID string) error
}
