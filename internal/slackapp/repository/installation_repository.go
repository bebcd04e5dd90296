package repository

import (
	"context"
	"errors"
	"fmt"

	"decisionlog-backend/internal/slackapp/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type installationRepository struct {
	db *gorm.DB
}

// NewInstallationRepository creates a new installation repository
func NewInstallationRepository(db *gorm.DB) InstallationRepository {
	return &installationRepository{db: db}
}

func (r *installationRepository) Upsert(ctx context.Context, inst *domain.Installation) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"team_name", "bot_user_id", "bot_token", "installed_by_user_id", "scope", "updated_at"}),
	}).Create(inst).Error
	if err != nil {
		return fmt.Errorf("upsert slack installation: %w", err)
	}
	return nil
}

func (r *installationRepository) FindByTeam(ctx context.Context, teamID string) (*domain.Installation, error) {
	var inst domain.Installation
	err := r.db.WithContext(ctx).Where("team_id = ?", teamID).First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *installationRepository) Delete(ctx context.Context, teamID string) error {
	return r.db.WithContext(ctx).Where("team_id = ?", teamID).Delete(&domain.Installation{}).Error
}
