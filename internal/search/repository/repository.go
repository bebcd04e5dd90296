package repository

import (
	"context"

	decisiondomain "decisionlog-backend/internal/decision/domain"
	"decisionlog-backend/internal/search/domain"
)

// SearchRepository runs full-text queries over decisions and the Gmail mirror
type SearchRepository interface {
	// SearchDecisions returns one page ordered by (rank DESC, id DESC).
	// A non-nil after switches from offset to keyset paging.
	SearchDecisions(ctx context.Context, viewer decisiondomain.Viewer, query string, limit, offset int, after *domain.Cursor) ([]domain.RankedID, error)
	CountDecisions(ctx context.Context, viewer decisiondomain.Viewer, query string) (int64, error)
	SearchMessages(ctx context.Context, userID, query string, limit int) ([]domain.MessageHit, error)
}
