package repository

import (
	"context"
	"fmt"

	"decisionlog-backend/internal/decision/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository creates a new GORM-backed tag repository
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.WithContext(ctx).Model(&domain.Tag{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

func (r *tagRepository) ListVisible(ctx context.Context, viewer domain.Viewer) ([]domain.TagCount, error) {
	visible, args := VisibilityClause("d", viewer)
	var out []domain.TagCount
	err := r.db.WithContext(ctx).Raw(`
		SELECT t.name, COUNT(*) AS count
		FROM tags t
		JOIN decision_tags dt ON dt.tag_id = t.id
		JOIN decisions d ON d.id = dt.decision_id
		WHERE `+visible+`
		GROUP BY t.name
		ORDER BY count DESC, t.name ASC`, args...).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return out, nil
}

func (r *tagRepository) Ensure(ctx context.Context, names []string) ([]domain.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows := make([]domain.Tag, 0, len(names))
	for _, n := range names {
		rows = append(rows, domain.Tag{Name: n})
	}

	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ensure tags: %w", err)
	}

	var tags []domain.Tag
	if err := db.Where("name IN ?", names).Order("name").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

func (r *tagRepository) Attach(ctx context.Context, decisionID string, tagIDs []uint) error {
	if len(tagIDs) == 0 {
		return nil
	}
	links := make([]domain.DecisionTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		links = append(links, domain.DecisionTag{DecisionID: decisionID, TagID: id})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&links).Error
}

func (r *tagRepository) Detach(ctx context.Context, decisionID, name string) error {
	tagIDs := r.db.Model(&domain.Tag{}).Select("id").Where("name = ?", name)
	return r.db.WithContext(ctx).
		Where("decision_id = ? AND tag_id IN (?)", decisionID, tagIDs).
		Delete(&domain.DecisionTag{}).Error
}
