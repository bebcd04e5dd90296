package repository

import (
	"testing"

	"decisionlog-backend/internal/decision/domain"

	"github.com/stretchr/testify/assert"
)

func TestVisibilityClause(t *testing.T) {
	sql, args := VisibilityClause("d", domain.Viewer{UserID: "u1", Email: " Alice@Example.com "})
	assert.Equal(t, "(d.user_id = ? OR lower(d.created_by_email) = ? OR lower(d.decision_maker) = ?)", sql)
	assert.Equal(t, []interface{}{"u1", "alice@example.com", "alice@example.com"}, args)

	sql, args = VisibilityClause("d", domain.Viewer{Email: "bob@example.com"})
	assert.Equal(t, "(lower(d.created_by_email) = ? OR lower(d.decision_maker) = ?)", sql)
	assert.Len(t, args, 2)

	sql, args = VisibilityClause("d", domain.Viewer{})
	assert.Equal(t, "1 = 0", sql)
	assert.Empty(t, args)
}
