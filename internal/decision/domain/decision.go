package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"decisionlog-backend/pkg/dbtypes"
)

var (
	ErrNotFound  = errors.New("decision not found")
	ErrForbidden = errors.New("forbidden")
)

type Status string

const (
	StatusPending   Status = "pending_confirmation"
	StatusConfirmed Status = "confirmed"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// ParsePriority maps free-form model output onto a known priority.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return p
	case "urgent":
		return PriorityCritical
	}
	return PriorityMedium
}

type Type string

const (
	TypeTechnical   Type = "technical"
	TypeBudget      Type = "budget"
	TypeTimeline    Type = "timeline"
	TypePersonnel   Type = "personnel"
	TypeStrategic   Type = "strategic"
	TypeOperational Type = "operational"
)

// ParseType maps free-form model output onto a known decision type.
func ParseType(s string) Type {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeTechnical, TypeBudget, TypeTimeline, TypePersonnel, TypeStrategic, TypeOperational:
		return t
	case "financial":
		return TypeBudget
	case "schedule":
		return TypeTimeline
	case "hiring", "staffing":
		return TypePersonnel
	}
	return TypeOperational
}

type Source string

const (
	SourceEmail Source = "email"
	SourceSlack Source = "slack"
	SourceGmail Source = "gmail"
)

// ParsedContext keeps extraction metadata next to the row.
type ParsedContext struct {
	Confidence int      `json:"confidence"`
	KeyPoints  []string `json:"key_points,omitempty"`
	Model      string   `json:"model,omitempty"`
	Subject    string   `json:"subject,omitempty"`
}

func (p ParsedContext) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

func (p *ParsedContext) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*p = ParsedContext{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("unsupported parsed_context type")
	}
	return json.Unmarshal(b, p)
}

type Decision struct {
	ID                string              `json:"id" gorm:"primaryKey"`
	UserID            string              `json:"user_id,omitempty" gorm:"index"`
	CreatedByEmail    string              `json:"created_by_email" gorm:"index;not null"`
	Summary           string              `json:"decision_summary" gorm:"column:decision_summary;type:text;not null"`
	DecisionMaker     string              `json:"decision_maker" gorm:"index"`
	Witnesses         dbtypes.StringArray `json:"witnesses" gorm:"type:jsonb"`
	DecisionDate      *time.Time          `json:"decision_date,omitempty" gorm:"type:date"`
	Topic             string              `json:"topic"`
	Parameters        dbtypes.JSONMap     `json:"parameters" gorm:"type:jsonb"`
	Priority          Priority            `json:"priority" gorm:"type:varchar(16);default:'medium';index"`
	Type              Type                `json:"decision_type" gorm:"column:decision_type;type:varchar(16);default:'operational';index"`
	Status            Status              `json:"status" gorm:"type:varchar(32);default:'pending_confirmation';index"`
	ConfirmationToken string              `json:"-" gorm:"uniqueIndex;not null"`
	RawThread         string              `json:"raw_thread,omitempty" gorm:"type:text"`
	ParsedContext     ParsedContext       `json:"parsed_context" gorm:"type:jsonb"`
	Confidence        int                 `json:"confidence"`
	Source            Source              `json:"source" gorm:"type:varchar(16)"`
	MessageID         string              `json:"message_id" gorm:"uniqueIndex;not null"`
	ThreadID          string              `json:"thread_id,omitempty" gorm:"index"`
	SlackTeamID       string              `json:"slack_team_id,omitempty"`
	SlackChannelID    string              `json:"slack_channel_id,omitempty"`
	Tags              []Tag               `json:"tags" gorm:"many2many:decision_tags;"`
	CreatedAt         time.Time           `json:"created_at" gorm:"index"`
	UpdatedAt         time.Time           `json:"updated_at"`
	ConfirmedAt       *time.Time          `json:"confirmed_at,omitempty"`
}

// TagNames returns attached tag names in stored order.
func (d *Decision) TagNames() []string {
	names := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Viewer identifies who is reading decisions.
type Viewer struct {
	UserID string
	Email  string
}

// ListFilter narrows decision listings and exports.
type ListFilter struct {
	Tag      string
	Status   Status
	Priority Priority
	Type     Type
	Source   Source
	Limit    int
	Offset   int
}

// ConfirmOutcome is the result of a token confirmation.
type ConfirmOutcome string

const (
	OutcomeConfirmed        ConfirmOutcome = "confirmed"
	OutcomeAlreadyConfirmed ConfirmOutcome = "already_confirmed"
	OutcomeRejected         ConfirmOutcome = "rejected"
)
