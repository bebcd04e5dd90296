package repository

import (
	"strings"

	"decisionlog-backend/internal/decision/domain"

	"gorm.io/gorm"
)

// VisibilityClause renders the access rule for a decisions table alias.
// Empty viewer fields never match, so an anonymous viewer sees nothing.
func VisibilityClause(alias string, v domain.Viewer) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if v.UserID != "" {
		conds = append(conds, alias+".user_id = ?")
		args = append(args, v.UserID)
	}
	if email := strings.ToLower(strings.TrimSpace(v.Email)); email != "" {
		conds = append(conds, "lower("+alias+".created_by_email) = ?", "lower("+alias+".decision_maker) = ?")
		args = append(args, email, email)
	}
	if len(conds) == 0 {
		return "1 = 0", nil
	}
	return "(" + strings.Join(conds, " OR ") + ")", args
}

// VisibleTo restricts a decisions query to rows the viewer may see.
func VisibleTo(v domain.Viewer) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		sql, args := VisibilityClause("decisions", v)
		return db.Where(sql, args...)
	}
}
