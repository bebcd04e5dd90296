package usecase

import (
	"context"
	"errors"
	"io"

	"decisionlog-backend/internal/decision/domain"
	"decisionlog-backend/pkg/chroma"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// DecisionUsecase defines the business logic for stored decisions
type DecisionUsecase interface {
	// List returns decisions visible to the viewer with the total match count
	List(ctx context.Context, viewer domain.Viewer, filter domain.ListFilter) ([]*domain.Decision, int64, error)
	Get(ctx context.Context, viewer domain.Viewer, id string) (*domain.Decision, error)
	Delete(ctx context.Context, viewer domain.Viewer, id string) error

	// Confirm moves a pending decision to confirmed; a repeated call is a no-op
	Confirm(ctx context.Context, token string) (*domain.Decision, domain.ConfirmOutcome, error)
	// Reject deletes a pending decision; confirmed decisions are left untouched
	Reject(ctx context.Context, token string) (domain.ConfirmOutcome, error)

	// Export streams every matching decision in the given format
	Export(ctx context.Context, viewer domain.Viewer, filter domain.ListFilter, format ExportFormat, w io.Writer) error

	AddTags(ctx context.Context, viewer domain.Viewer, id string, names []string) (*domain.Decision, error)
	RemoveTag(ctx context.Context, viewer domain.Viewer, id, name string) error
	ListTags(ctx context.Context, viewer domain.Viewer) ([]domain.TagCount, error)
}

// SemanticIndex mirrors confirmed decisions for similarity search
type SemanticIndex interface {
	Upsert(ctx context.Context, doc chroma.Document) error
	Delete(ctx context.Context, decisionID string) error
}
