package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	decisiondomain "decisionlog-backend/internal/decision/domain"
	"decisionlog-backend/internal/schema"
	"decisionlog-backend/internal/search/domain"
	"decisionlog-backend/pkg/config"
	"decisionlog-backend/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openTestDB connects to TEST_DATABASE_URL; the tests are skipped without it.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.NewPostgresConnection(&config.Config{DatabaseURL: url, LogLevel: "warn"})
	require.NoError(t, err)
	require.NoError(t, schema.Migrate(db))
	return db
}

func seedDecisions(t *testing.T, db *gorm.DB, owner string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		d := &decisiondomain.Decision{
			ID:                uuid.NewString(),
			CreatedByEmail:    owner,
			DecisionMaker:     owner,
			Summary:           fmt.Sprintf("Adopt postgres replica %d", i),
			Topic:             "database",
			RawThread:         "we will use postgres" + fmt.Sprint(" replica", i%3),
			ConfirmationToken: uuid.NewString(),
			MessageID:         uuid.NewString(),
			Status:            decisiondomain.StatusPending,
			CreatedAt:         time.Now(),
		}
		require.NoError(t, db.Create(d).Error)
	}
	t.Cleanup(func() {
		db.Where("created_by_email = ?", owner).Delete(&decisiondomain.Decision{})
	})
}

func TestSearchDecisionsKeysetWalk(t *testing.T) {
	db := openTestDB(t)
	owner := uuid.NewString() + "@example.com"
	seedDecisions(t, db, owner, 12)
	seedDecisions(t, db, uuid.NewString()+"@example.com", 3)

	repo := NewSearchRepository(db)
	ctx := context.Background()
	viewer := decisiondomain.Viewer{Email: owner}

	total, err := repo.CountDecisions(ctx, viewer, "postgres")
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)

	seen := map[string]bool{}
	var after *domain.Cursor
	for page := 0; page < 5; page++ {
		rows, err := repo.SearchDecisions(ctx, viewer, "postgres", 5, 0, after)
		require.NoError(t, err)
		if len(rows) == 0 {
			break
		}
		for _, r := range rows {
			assert.False(t, seen[r.ID], "duplicate %s", r.ID)
			seen[r.ID] = true
		}
		last := rows[len(rows)-1]
		after = &domain.Cursor{Rank: last.Rank, ID: last.ID}
	}
	assert.Len(t, seen, 12)
}

func TestSearchDecisionsBindsHostileInput(t *testing.T) {
	db := openTestDB(t)
	owner := uuid.NewString() + "@example.com"
	seedDecisions(t, db, owner, 1)

	repo := NewSearchRepository(db)
	rows, err := repo.SearchDecisions(context.Background(), decisiondomain.Viewer{Email: owner},
		`postgres'); DROP TABLE decisions; --`, 10, 0, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rows), 1)
	assert.True(t, db.Migrator().HasTable("decisions"))
}
