package slack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/slack-go/slack"
)

const (
	ActionConfirm = "confirm_decision"
	ActionReject  = "reject_decision"
)

// BotScopes are requested on install.
var BotScopes = []string{"app_mentions:read", "chat:write", "commands", "users:read", "users:read.email", "channels:history"}

var ErrBadSignature = errors.New("slack signature verification failed")

// VerifyRequest checks the X-Slack-Signature HMAC for r and returns the body.
// r.Body is replaced so the request can still be parsed afterwards.
// An empty signing secret rejects every request.
func VerifyRequest(r *http.Request, signingSecret string) ([]byte, error) {
	if signingSecret == "" {
		return nil, fmt.Errorf("%w: signing secret not configured", ErrBadSignature)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	verifier, err := slack.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if _, err := verifier.Write(body); err != nil {
		return nil, err
	}
	if err := verifier.Ensure(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return body, nil
}

// InstallURL is the v2 OAuth authorize link for the bot scopes.
func InstallURL(clientID, redirectURI, state string) string {
	v := url.Values{}
	v.Set("client_id", clientID)
	v.Set("scope", strings.Join(BotScopes, ","))
	v.Set("redirect_uri", redirectURI)
	v.Set("state", state)
	return "https://slack.com/oauth/v2/authorize?" + v.Encode()
}

// Installation is what a successful OAuth exchange yields.
type Installation struct {
	TeamID    string
	TeamName  string
	BotUserID string
	BotToken  string
	Scope     string
	UserID    string
}

// ExchangeCode completes the install flow.
func ExchangeCode(ctx context.Context, clientID, clientSecret, code, redirectURI string) (*Installation, error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, http.DefaultClient, clientID, clientSecret, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("slack oauth exchange: %w", err)
	}
	return &Installation{
		TeamID:    resp.Team.ID,
		TeamName:  resp.Team.Name,
		BotUserID: resp.BotUserID,
		BotToken:  resp.AccessToken,
		Scope:     resp.Scope,
		UserID:    resp.AuthedUser.ID,
	}, nil
}

// Bot posts as an installed workspace bot.
type Bot struct {
	api *slack.Client
}

func NewBot(token string, opts ...slack.Option) *Bot {
	return &Bot{api: slack.New(token, opts...)}
}

// PostConfirmation shows the extracted decision with confirm and reject
// buttons only to userID. Both buttons carry the confirmation token.
func (b *Bot) PostConfirmation(ctx context.Context, channelID, userID, summary, token string) error {
	text := fmt.Sprintf("*Decision detected*\n>%s\nIs this right?", summary)
	section := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)

	confirm := slack.NewButtonBlockElement(ActionConfirm, token,
		slack.NewTextBlockObject(slack.PlainTextType, "Confirm", false, false)).WithStyle(slack.StylePrimary)
	reject := slack.NewButtonBlockElement(ActionReject, token,
		slack.NewTextBlockObject(slack.PlainTextType, "Reject", false, false)).WithStyle(slack.StyleDanger)
	actions := slack.NewActionBlock("decision_actions", confirm, reject)

	_, err := b.api.PostEphemeralContext(ctx, channelID, userID,
		slack.MsgOptionText("Decision detected: "+summary, false),
		slack.MsgOptionBlocks(section, actions),
	)
	if err != nil {
		return fmt.Errorf("slack post ephemeral: %w", err)
	}
	return nil
}

// PostEphemeral sends plain text visible only to userID.
func (b *Bot) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	_, err := b.api.PostEphemeralContext(ctx, channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack post ephemeral: %w", err)
	}
	return nil
}

// UserEmail looks up the profile email of a Slack user.
func (b *Bot) UserEmail(ctx context.Context, userID string) (string, error) {
	u, err := b.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("slack user info: %w", err)
	}
	return strings.ToLower(u.Profile.Email), nil
}
