package repository

import (
	"context"

	"decisionlog-backend/internal/slackapp/domain"
)

// InstallationRepository stores Slack workspace installations
type InstallationRepository interface {
	// Upsert replaces the installation of the same team
	Upsert(ctx context.Context, inst *domain.Installation) error
	FindByTeam(ctx context.Context, teamID string) (*domain.Installation, error)
	Delete(ctx context.Context, teamID string) error
}
