package domain

import (
	"time"

	"decisionlog-backend/pkg/dbtypes"
)

// GmailMessage is the searchable metadata mirror of a Gmail message.
type GmailMessage struct {
	UserID       string              `json:"-" gorm:"primaryKey"`
	ID           string              `json:"id" gorm:"primaryKey"`
	ThreadID     string              `json:"thread_id" gorm:"index"`
	Subject      string              `json:"subject" gorm:"type:text"`
	FromAddress  string              `json:"from"`
	ToAddresses  dbtypes.StringArray `json:"to" gorm:"type:jsonb"`
	Snippet      string              `json:"snippet" gorm:"type:text"`
	LabelIDs     dbtypes.StringArray `json:"label_ids" gorm:"type:jsonb"`
	InternalDate time.Time           `json:"internal_date" gorm:"index"`
	HistoryID    uint64              `json:"history_id"`
	CreatedAt    time.Time           `json:"-"`
}

func (GmailMessage) TableName() string {
	return "gmail_messages"
}

// GmailBody holds the plain text body, kept apart so listings stay light.
type GmailBody struct {
	UserID    string    `gorm:"primaryKey"`
	MessageID string    `gorm:"primaryKey"`
	BodyText  string    `gorm:"type:text"`
	CreatedAt time.Time `json:"-"`
}

func (GmailBody) TableName() string {
	return "gmail_bodies"
}
