package domain

import (
	"errors"
	"time"
)

var ErrNotInstalled = errors.New("slack app is not installed for this workspace")

// Installation is one workspace that added the bot.
type Installation struct {
	TeamID            string    `json:"team_id" gorm:"primaryKey"`
	TeamName          string    `json:"team_name"`
	BotUserID         string    `json:"bot_user_id"`
	BotToken          string    `json:"-" gorm:"type:text;not null"` // encrypted
	InstalledByUserID string    `json:"installed_by_user_id" gorm:"index"`
	Scope             string    `json:"scope"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Installation) TableName() string {
	return "slack_installations"
}
