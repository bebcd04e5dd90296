// Package schema owns the database layout shared by every feature package.
package schema

import (
	"fmt"

	authdomain "decisionlog-backend/internal/auth/domain"
	decisiondomain "decisionlog-backend/internal/decision/domain"
	gmaildomain "decisionlog-backend/internal/gmailsync/domain"
	slackdomain "decisionlog-backend/internal/slackapp/domain"

	"gorm.io/gorm"
)

// Models lists every table managed by AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&authdomain.User{},
		&authdomain.FCMToken{},
		&decisiondomain.Tag{},
		&decisiondomain.Decision{},
		&decisiondomain.DecisionTag{},
		&gmaildomain.SyncState{},
		&gmaildomain.GmailMessage{},
		&gmaildomain.GmailBody{},
		&slackdomain.Installation{},
	}
}

// searchDDL adds the generated tsvector columns and their GIN indexes.
// Weights: summary A, topic B, decision maker C, thread text D.
var searchDDL = []string{
	`ALTER TABLE decisions ADD COLUMN IF NOT EXISTS search_vector tsvector
	GENERATED ALWAYS AS (
		setweight(to_tsvector('english', coalesce(decision_summary, '')), 'A') ||
		setweight(to_tsvector('english', coalesce(topic, '')), 'B') ||
		setweight(to_tsvector('english', coalesce(decision_maker, '')), 'C') ||
		setweight(to_tsvector('english', coalesce(raw_thread, '')), 'D')
	) STORED`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_search_vector ON decisions USING GIN (search_vector)`,

	`ALTER TABLE gmail_messages ADD COLUMN IF NOT EXISTS search_vector tsvector
	GENERATED ALWAYS AS (
		setweight(to_tsvector('english', coalesce(subject, '')), 'A') ||
		setweight(to_tsvector('english', coalesce(from_address, '')), 'B') ||
		setweight(to_tsvector('english', coalesce(snippet, '')), 'C')
	) STORED`,
	`CREATE INDEX IF NOT EXISTS idx_gmail_messages_search_vector ON gmail_messages USING GIN (search_vector)`,

	`ALTER TABLE gmail_bodies ADD COLUMN IF NOT EXISTS search_vector tsvector
	GENERATED ALWAYS AS (
		setweight(to_tsvector('english', coalesce(body_text, '')), 'D')
	) STORED`,
	`CREATE INDEX IF NOT EXISTS idx_gmail_bodies_search_vector ON gmail_bodies USING GIN (search_vector)`,
}

// Migrate creates or updates all tables, then the full-text columns.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&decisiondomain.Decision{}, "Tags", &decisiondomain.DecisionTag{}); err != nil {
		return fmt.Errorf("setup decision_tags: %w", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range searchDDL {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("search index: %w", err)
		}
	}
	return nil
}
