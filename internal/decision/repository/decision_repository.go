package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"decisionlog-backend/internal/decision/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type decisionRepository struct {
	db *gorm.DB
}

// NewDecisionRepository creates a new GORM-backed decision repository
func NewDecisionRepository(db *gorm.DB) DecisionRepository {
	return &decisionRepository{db: db}
}

func (r *decisionRepository) Create(ctx context.Context, d *domain.Decision) (bool, error) {
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(d)
	if res.Error != nil {
		return false, fmt.Errorf("insert decision: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *decisionRepository) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Decision{}).
		Where("message_id = ?", messageID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check message id: %w", err)
	}
	return count > 0, nil
}

func (r *decisionRepository) first(db *gorm.DB) (*domain.Decision, error) {
	var d domain.Decision
	err := db.Preload("Tags").First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *decisionRepository) FindByID(ctx context.Context, id string) (*domain.Decision, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *decisionRepository) FindVisible(ctx context.Context, viewer domain.Viewer, id string) (*domain.Decision, error) {
	return r.first(r.db.WithContext(ctx).Scopes(VisibleTo(viewer)).Where("id = ?", id))
}

func (r *decisionRepository) FindVisibleByIDs(ctx context.Context, viewer domain.Viewer, ids []string) ([]*domain.Decision, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*domain.Decision
	err := r.db.WithContext(ctx).
		Scopes(VisibleTo(viewer)).
		Preload("Tags").
		Where("id IN ?", ids).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *decisionRepository) FindByToken(ctx context.Context, token string) (*domain.Decision, error) {
	return r.first(r.db.WithContext(ctx).Where("confirmation_token = ?", token))
}

func applyFilter(db *gorm.DB, f domain.ListFilter) *gorm.DB {
	if f.Status != "" {
		db = db.Where("decisions.status = ?", f.Status)
	}
	if f.Priority != "" {
		db = db.Where("decisions.priority = ?", f.Priority)
	}
	if f.Type != "" {
		db = db.Where("decisions.decision_type = ?", f.Type)
	}
	if f.Source != "" {
		db = db.Where("decisions.source = ?", f.Source)
	}
	if f.Tag != "" {
		db = db.Where(`EXISTS (SELECT 1 FROM decision_tags dt JOIN tags t ON t.id = dt.tag_id
			WHERE dt.decision_id = decisions.id AND t.name = ?)`, f.Tag)
	}
	return db
}

func (r *decisionRepository) List(ctx context.Context, viewer domain.Viewer, f domain.ListFilter) ([]*domain.Decision, int64, error) {
	query := applyFilter(r.db.WithContext(ctx).Model(&domain.Decision{}).Scopes(VisibleTo(viewer)), f)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count decisions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var decisions []*domain.Decision
	err := query.Preload("Tags").
		Order("decisions.created_at DESC, decisions.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&decisions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list decisions: %w", err)
	}
	return decisions, total, nil
}

func (r *decisionRepository) Delete(ctx context.Context, viewer domain.Viewer, id string) (bool, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := r.first(tx.Scopes(VisibleTo(viewer)).Where("id = ?", id))
		if err != nil || d == nil {
			return err
		}
		if err := tx.Where("decision_id = ?", id).Delete(&domain.DecisionTag{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Decision{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete decision: %w", err)
	}
	return affected == 1, nil
}

func (r *decisionRepository) MarkConfirmed(ctx context.Context, token string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Decision{}).
		Where("confirmation_token = ? AND status = ?", token, domain.StatusPending).
		Updates(map[string]interface{}{
			"status":       domain.StatusConfirmed,
			"confirmed_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("confirm decision: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *decisionRepository) DeletePending(ctx context.Context, token string) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending := tx.Model(&domain.Decision{}).Select("id").
			Where("confirmation_token = ? AND status = ?", token, domain.StatusPending)
		if err := tx.Where("decision_id IN (?)", pending).Delete(&domain.DecisionTag{}).Error; err != nil {
			return err
		}
		res := tx.Where("confirmation_token = ? AND status = ?", token, domain.StatusPending).Delete(&domain.Decision{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("reject decision: %w", err)
	}
	return affected, nil
}
