package domain

import (
	"errors"
	"time"

	"decisionlog-backend/pkg/dbtypes"
)

var (
	ErrSyncInProgress = errors.New("gmail sync already in progress")
	ErrNotConnected   = errors.New("gmail is not connected")
)

type SyncStatus string

const (
	StatusIdle    SyncStatus = "idle"
	StatusSyncing SyncStatus = "syncing"
	StatusError   SyncStatus = "error"
)

type SyncMode string

const (
	ModeAuto        SyncMode = "auto"
	ModeFull        SyncMode = "full"
	ModeIncremental SyncMode = "incremental"
)

// ParseMode accepts "", auto, full and incremental.
func ParseMode(s string) (SyncMode, error) {
	switch m := SyncMode(s); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeFull, ModeIncremental:
		return m, nil
	}
	return "", errors.New("mode must be auto, full or incremental")
}

// SyncState is the per-user Gmail sync cursor and lock.
type SyncState struct {
	UserID           string              `json:"user_id" gorm:"primaryKey"`
	LastHistoryID    uint64              `json:"last_history_id"`
	FilterQuery      string              `json:"filter_query"`
	LabelIDs         dbtypes.StringArray `json:"label_ids" gorm:"type:jsonb"`
	ExtractDecisions bool                `json:"extract_decisions" gorm:"default:true"`
	Status           SyncStatus          `json:"status" gorm:"type:varchar(16);default:'idle'"`
	LastError        string              `json:"last_error,omitempty" gorm:"type:text"`
	LastSyncedAt     *time.Time          `json:"last_synced_at,omitempty"`
	SyncStartedAt    *time.Time          `json:"sync_started_at,omitempty"`
	MessagesSynced   int64               `json:"messages_synced"`
	CreatedAt        time.Time           `json:"-"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func (SyncState) TableName() string {
	return "gmail_sync_states"
}

// SyncResult summarizes one run.
type SyncResult struct {
	Mode      SyncMode `json:"mode"`
	FellBack  bool     `json:"fell_back,omitempty"`
	Listed    int      `json:"listed"`
	Stored    int      `json:"stored"`
	Skipped   int      `json:"skipped"`
	Extracted int      `json:"extracted"`
	HistoryID uint64   `json:"history_id"`
}

// Settings are the user-editable sync options.
type Settings struct {
	FilterQuery      string   `json:"filter_query"`
	LabelIDs         []string `json:"label_ids"`
	ExtractDecisions *bool    `json:"extract_decisions"`
}
