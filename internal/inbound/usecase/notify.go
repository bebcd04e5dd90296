package usecase

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	decisiondomain "decisionlog-backend/internal/decision/domain"
	"decisionlog-backend/internal/inbound/domain"
	"decisionlog-backend/pkg/fcm"
	"decisionlog-backend/pkg/mailer"

	"go.uber.org/zap"
)

// Notification failures are logged and never fail ingestion.
func (p *pipeline) notifyCreated(ctx context.Context, msg *domain.Message, d *decisiondomain.Decision) {
	switch msg.Source {
	case decisiondomain.SourceEmail:
		if p.deps.Mail != nil && msg.From != "" {
			if err := p.deps.Mail.Send(ctx, p.confirmationEmail(msg, d)); err != nil {
				p.log.Warn("confirmation email failed", zap.String("decision_id", d.ID), zap.Error(err))
			}
		}
	case decisiondomain.SourceSlack:
		if p.deps.Slack != nil && msg.SlackChannelID != "" {
			err := p.deps.Slack.PostConfirmation(ctx, msg.SlackTeamID, msg.SlackChannelID, msg.SlackUserID, d.Summary, d.ConfirmationToken)
			if err != nil {
				p.log.Warn("slack confirmation failed", zap.String("decision_id", d.ID), zap.Error(err))
			}
		}
	}
	p.push(ctx, d)
}

func (p *pipeline) confirmLink(action, token string) string {
	return fmt.Sprintf("%s/api/decisions/%s?token=%s", p.opts.BaseURL, action, url.QueryEscape(token))
}

func (p *pipeline) confirmationEmail(msg *domain.Message, d *decisiondomain.Decision) mailer.Reply {
	confirm, reject := p.confirmLink("confirm", d.ConfirmationToken), p.confirmLink("reject", d.ConfirmationToken)

	var text strings.Builder
	fmt.Fprintf(&text, "I recorded this decision:\n\n  %s\n\n", d.Summary)
	fmt.Fprintf(&text, "Decision maker: %s\nPriority: %s\nType: %s\n", d.DecisionMaker, d.Priority, d.Type)
	if d.Topic != "" {
		fmt.Fprintf(&text, "Topic: %s\n", d.Topic)
	}
	fmt.Fprintf(&text, "\nConfirm: %s\nReject: %s\n", confirm, reject)

	var body strings.Builder
	fmt.Fprintf(&body, "<p>I recorded this decision:</p><blockquote>%s</blockquote>", html.EscapeString(d.Summary))
	fmt.Fprintf(&body, "<p>Decision maker: %s<br>Priority: %s<br>Type: %s</p>",
		html.EscapeString(d.DecisionMaker), html.EscapeString(string(d.Priority)), html.EscapeString(string(d.Type)))
	fmt.Fprintf(&body, `<p><a href="%s">Confirm</a> &middot; <a href="%s">Reject</a></p>`,
		html.EscapeString(confirm), html.EscapeString(reject))

	return mailer.Reply{
		To:         msg.From,
		Subject:    msg.Subject,
		Text:       text.String(),
		HTML:       body.String(),
		InReplyTo:  originalMessageID(msg),
		References: msg.References,
	}
}

// originalMessageID is empty for ids the pipeline made up.
func originalMessageID(msg *domain.Message) string {
	if strings.HasPrefix(msg.MessageID, "sha256:") || strings.HasPrefix(msg.MessageID, "gmail:") || strings.HasPrefix(msg.MessageID, "slack:") {
		return ""
	}
	return msg.MessageID
}

func (p *pipeline) push(ctx context.Context, d *decisiondomain.Decision) {
	if p.deps.Push == nil || p.deps.Tokens == nil || d.UserID == "" {
		return
	}
	tokens, err := p.deps.Tokens.GetTokensByUserID(ctx, d.UserID)
	if err != nil {
		p.log.Warn("failed to load device tokens", zap.String("user_id", d.UserID), zap.Error(err))
		return
	}
	if len(tokens) == 0 {
		return
	}
	values := make([]string, 0, len(tokens))
	for _, t := range tokens {
		values = append(values, t.Token)
	}

	failed, err := p.deps.Push.SendToDevices(ctx, values, fcm.NotificationData{
		Title: "Decision awaiting confirmation",
		Body:  d.Summary,
		Data: map[string]string{
			"type":        "decision_pending",
			"decision_id": d.ID,
		},
		Link: p.opts.BaseURL + "/decisions/" + d.ID,
	})
	if err != nil {
		p.log.Warn("push notification failed", zap.String("decision_id", d.ID), zap.Error(err))
	}
	if len(failed) > 0 {
		if err := p.deps.Tokens.DeleteTokens(ctx, failed); err != nil {
			p.log.Warn("failed to prune device tokens", zap.Error(err))
		}
	}
}

func (p *pipeline) replyMatches(ctx context.Context, msg *domain.Message, query string, matches []*decisiondomain.Decision) {
	text := FormatMatches(query, matches, p.opts.BaseURL)

	switch msg.Source {
	case decisiondomain.SourceEmail:
		if p.deps.Mail == nil || msg.From == "" {
			return
		}
		err := p.deps.Mail.Send(ctx, mailer.Reply{
			To:         msg.From,
			Subject:    msg.Subject,
			Text:       text,
			InReplyTo:  originalMessageID(msg),
			References: msg.References,
		})
		if err != nil {
			p.log.Warn("query reply failed", zap.Error(err))
		}
	case decisiondomain.SourceSlack:
		if p.deps.Slack == nil || msg.SlackChannelID == "" {
			return
		}
		if err := p.deps.Slack.PostText(ctx, msg.SlackTeamID, msg.SlackChannelID, msg.SlackUserID, text); err != nil {
			p.log.Warn("slack query reply failed", zap.Error(err))
		}
	}
}

// FormatMatches renders search hits as a plain-text answer.
func FormatMatches(query string, matches []*decisiondomain.Decision, baseURL string) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No decisions found for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Decisions matching %q:\n\n", query)
	for i, d := range matches {
		date := d.CreatedAt.Format("2006-01-02")
		if d.DecisionDate != nil {
			date = d.DecisionDate.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "%d. %s (%s, %s, %s)\n   %s/decisions/%s\n", i+1, d.Summary, d.DecisionMaker, date, d.Status, baseURL, d.ID)
	}
	return b.String()
}
