package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func lookupFrom(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func TestSelectDatabaseURL(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":            "postgres://default",
		"DATABASE_URL_PRODUCTION": "postgres://prod",
		"DATABASE_URL_PREVIEW":    "postgres://preview",
	}

	tests := []struct {
		branch string
		want   string
	}{
		{"", "postgres://default"},
		{"main", "postgres://prod"},
		{"Production", "postgres://prod"},
		{"feature/search", "postgres://preview"},
	}
	for _, tt := range tests {
		t.Run(tt.branch, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectDatabaseURL(tt.branch, lookupFrom(env)))
		})
	}
}

func TestSelectDatabaseURLFallsBack(t *testing.T) {
	env := map[string]string{"DATABASE_URL": "postgres://default"}
	assert.Equal(t, "postgres://default", SelectDatabaseURL("main", lookupFrom(env)))
	assert.Equal(t, "postgres://default", SelectDatabaseURL("preview-123", lookupFrom(env)))
	assert.Contains(t, SelectDatabaseURL("", lookupFrom(nil)), "localhost")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DECISION_CONFIDENCE_THRESHOLD", "")
	t.Setenv("GMAIL_SYNC_INTERVAL", "5m")
	t.Setenv("BOT_EMAIL", "Decisions@Example.COM")

	cfg := Load()
	assert.Equal(t, 70, cfg.ConfidenceThreshold)
	assert.Equal(t, 5*time.Minute, cfg.GmailSyncInterval)
	assert.Equal(t, "decisions@example.com", cfg.BotEmail)
	assert.Equal(t, 30*24*time.Hour, cfg.GmailSyncWindow)
}
