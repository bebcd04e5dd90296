package repository

import (
	"context"
	"fmt"

	"decisionlog-backend/internal/gmailsync/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 200

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) ExistingIDs(ctx context.Context, userID string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []string
	err := r.db.WithContext(ctx).Model(&domain.GmailMessage{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Pluck("id", &found).Error
	if err != nil {
		return nil, fmt.Errorf("lookup stored messages: %w", err)
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

func (r *messageRepository) Save(ctx context.Context, msgs []*domain.GmailMessage, bodies []*domain.GmailBody) error {
	if len(msgs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"label_ids", "history_id", "snippet"}),
		}).CreateInBatches(msgs, insertBatchSize).Error
		if err != nil {
			return fmt.Errorf("store messages: %w", err)
		}
		if len(bodies) == 0 {
			return nil
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).CreateInBatches(bodies, insertBatchSize).Error
		if err != nil {
			return fmt.Errorf("store bodies: %w", err)
		}
		return nil
	})
}

func (r *messageRepository) DeleteForUser(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&domain.GmailBody{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&domain.GmailMessage{}).Error
	})
}
