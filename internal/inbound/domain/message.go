package domain

import (
	"strings"
	"time"

	decisiondomain "decisionlog-backend/internal/decision/domain"
)

type Intent string

const (
	IntentDecision Intent = "decision"
	IntentQuery    Intent = "query"
	IntentIgnore   Intent = "ignore"
)

// Message is one inbound email, Slack event or synced Gmail message.
type Message struct {
	Source     decisiondomain.Source
	MessageID  string
	ThreadID   string
	From       string
	To         []string
	Cc         []string
	Subject    string
	Text       string
	InReplyTo  string
	References []string
	ReceivedAt time.Time

	SlackTeamID    string
	SlackChannelID string
	SlackUserID    string

	// Intent is set by channels that know it up front (Slack commands).
	// Empty means it is derived from the recipients.
	Intent Intent
}

type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeAnswered  Outcome = "answered"
	OutcomeIgnored   Outcome = "ignored"
)

type Result struct {
	Outcome  Outcome                  `json:"outcome"`
	Intent   Intent                   `json:"intent"`
	Decision *decisiondomain.Decision `json:"decision,omitempty"`
	Matches  int                      `json:"matches,omitempty"`
	Reason   string                   `json:"reason,omitempty"`
}

// DetectIntent classifies an email by where the bot address appears:
// the bot as the only To recipient is a question, the bot copied on a
// conversation with others is a decision to record.
func DetectIntent(m *Message, botEmail string) Intent {
	if m.Intent != "" {
		return m.Intent
	}
	bot := strings.ToLower(strings.TrimSpace(botEmail))
	if bot == "" || strings.EqualFold(m.From, bot) {
		return IntentIgnore
	}

	to := without(m.To, m.From)
	cc := without(m.Cc, m.From)
	inTo, inCc := contains(to, bot), contains(cc, bot)

	switch {
	case inTo && len(to) == 1 && len(cc) == 0:
		return IntentQuery
	case inTo || inCc:
		return IntentDecision
	case m.Source == decisiondomain.SourceEmail:
		// Delivered to the bot without naming it (Bcc or alias)
		return IntentDecision
	}
	return IntentIgnore
}

// Participants returns every distinct address on the message.
func (m *Message) Participants() []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range [][]string{{m.From}, m.To, m.Cc} {
		for _, a := range list {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func contains(list []string, addr string) bool {
	for _, a := range list {
		if strings.EqualFold(strings.TrimSpace(a), addr) {
			return true
		}
	}
	return false
}

func without(list []string, addr string) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		if !strings.EqualFold(strings.TrimSpace(a), addr) {
			out = append(out, a)
		}
	}
	return out
}
