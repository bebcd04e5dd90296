package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"decisionlog-backend/internal/gmailsync/domain"
	"decisionlog-backend/pkg/dbtypes"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type syncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) SyncStateRepository {
	return &syncStateRepository{db: db}
}

func (r *syncStateRepository) Get(ctx context.Context, userID string) (*domain.SyncState, error) {
	var state domain.SyncState
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *syncStateRepository) Ensure(ctx context.Context, userID string) (*domain.SyncState, error) {
	state := &domain.SyncState{
		UserID:           userID,
		LabelIDs:         dbtypes.StringArray{"INBOX"},
		ExtractDecisions: true,
		Status:           domain.StatusIdle,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(state).Error
	if err != nil {
		return nil, fmt.Errorf("ensure sync state: %w", err)
	}
	return r.Get(ctx, userID)
}

func (r *syncStateRepository) TryAcquire(ctx context.Context, userID string, now time.Time, staleAfter time.Duration) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.SyncState{}).
		Where("user_id = ? AND (status <> ? OR sync_started_at IS NULL OR sync_started_at < ?)",
			userID, domain.StatusSyncing, now.Add(-staleAfter)).
		Updates(map[string]interface{}{
			"status":          domain.StatusSyncing,
			"sync_started_at": now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("acquire sync lock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *syncStateRepository) Complete(ctx context.Context, userID string, historyID uint64, stored int, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.SyncState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"status":          domain.StatusIdle,
			"last_error":      "",
			"last_history_id": historyID,
			"last_synced_at":  at,
			"sync_started_at": nil,
			"messages_synced": gorm.Expr("messages_synced + ?", stored),
			"updated_at":      at,
		}).Error
}

func (r *syncStateRepository) Fail(ctx context.Context, userID string, message string) error {
	return r.db.WithContext(ctx).Model(&domain.SyncState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"status":          domain.StatusError,
			"last_error":      message,
			"sync_started_at": nil,
			"updated_at":      time.Now(),
		}).Error
}

func (r *syncStateRepository) UpdateSettings(ctx context.Context, userID string, filter string, labels []string, extract bool) error {
	return r.db.WithContext(ctx).Model(&domain.SyncState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"filter_query":      filter,
			"label_ids":         dbtypes.StringArray(labels),
			"extract_decisions": extract,
			"updated_at":        time.Now(),
		}).Error
}

func (r *syncStateRepository) Delete(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.SyncState{}).Error
}
