package repository

import (
	"context"
	"fmt"
	"strings"

	decisiondomain "decisionlog-backend/internal/decision/domain"
	decisionrepo "decisionlog-backend/internal/decision/repository"
	"decisionlog-backend/internal/search/domain"

	"gorm.io/gorm"
)

type searchRepository struct {
	db *gorm.DB
}

// NewSearchRepository creates a new search repository
func NewSearchRepository(db *gorm.DB) SearchRepository {
	return &searchRepository{db: db}
}

// decisionMatches filters visible decisions to those matching q.query.
func decisionMatches(viewer decisiondomain.Viewer) (string, []interface{}) {
	vis, args := decisionrepo.VisibilityClause("d", viewer)
	return "d.search_vector @@ q.query AND " + vis, args
}

func (r *searchRepository) SearchDecisions(ctx context.Context, viewer decisiondomain.Viewer, query string, limit, offset int, after *domain.Cursor) ([]domain.RankedID, error) {
	where, visArgs := decisionMatches(viewer)

	var sb strings.Builder
	args := []interface{}{query}
	sb.WriteString(`SELECT s.id, s.rank FROM (
	SELECT d.id, ts_rank(d.search_vector, q.query)::float8 AS rank
	FROM decisions d CROSS JOIN websearch_to_tsquery('english', ?) AS q(query)
	WHERE `)
	sb.WriteString(where)
	args = append(args, visArgs...)
	sb.WriteString("\n) s")

	if after != nil {
		sb.WriteString("\nWHERE s.rank < ? OR (s.rank = ? AND s.id < ?)")
		args = append(args, after.Rank, after.Rank, after.ID)
	}
	sb.WriteString("\nORDER BY s.rank DESC, s.id DESC\nLIMIT ?")
	args = append(args, limit)
	if after == nil && offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, offset)
	}

	var rows []domain.RankedID
	if err := r.db.WithContext(ctx).Raw(sb.String(), args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("search decisions: %w", err)
	}
	return rows, nil
}

func (r *searchRepository) CountDecisions(ctx context.Context, viewer decisiondomain.Viewer, query string) (int64, error) {
	where, visArgs := decisionMatches(viewer)
	sql := `SELECT count(*) FROM decisions d CROSS JOIN websearch_to_tsquery('english', ?) AS q(query) WHERE ` + where

	var total int64
	if err := r.db.WithContext(ctx).Raw(sql, append([]interface{}{query}, visArgs...)...).Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}
	return total, nil
}

const messageSearchSQL = `SELECT m.id, m.thread_id, m.subject, m.from_address AS "from", m.snippet, m.internal_date,
	ts_rank(m.search_vector || coalesce(b.search_vector, ''::tsvector), q.query)::float8 AS rank
FROM gmail_messages m
LEFT JOIN gmail_bodies b ON b.user_id = m.user_id AND b.message_id = m.id
CROSS JOIN websearch_to_tsquery('english', ?) AS q(query)
WHERE m.user_id = ? AND (m.search_vector || coalesce(b.search_vector, ''::tsvector)) @@ q.query
ORDER BY rank DESC, m.id DESC
LIMIT ?`

func (r *searchRepository) SearchMessages(ctx context.Context, userID, query string, limit int) ([]domain.MessageHit, error) {
	if userID == "" {
		return nil, nil
	}
	var rows []domain.MessageHit
	if err := r.db.WithContext(ctx).Raw(messageSearchSQL, query, userID, limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("search gmail messages: %w", err)
	}
	return rows, nil
}
