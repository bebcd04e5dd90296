package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	authdelivery "decisionlog-backend/internal/auth/delivery"
	decisiondomain "decisionlog-backend/internal/decision/domain"
	inbounddomain "decisionlog-backend/internal/inbound/domain"
	"decisionlog-backend/internal/slackapp/usecase"
	slackclient "decisionlog-backend/pkg/slack"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"
)

const asyncTimeout = 2 * time.Minute

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

// Ingester runs Slack messages through decision extraction
type Ingester interface {
	Ingest(ctx context.Context, msg *inbounddomain.Message) (*inbounddomain.Result, error)
}

// Confirmer resolves confirmation tokens from button clicks
type Confirmer interface {
	Confirm(ctx context.Context, token string) (*decisiondomain.Decision, decisiondomain.ConfirmOutcome, error)
	Reject(ctx context.Context, token string) (decisiondomain.ConfirmOutcome, error)
}

// SlackHandler serves the Slack install flow and the Slack-signed endpoints
type SlackHandler struct {
	slackUsecase  usecase.SlackUsecase
	ingester      Ingester
	confirmer     Confirmer
	cookies       authdelivery.CookieOptions
	signingSecret string
	log           *zap.Logger
	wg            sync.WaitGroup
}

// NewSlackHandler creates a new SlackHandler
func NewSlackHandler(
	slackUsecase usecase.SlackUsecase,
	ingester Ingester,
	confirmer Confirmer,
	cookies authdelivery.CookieOptions,
	signingSecret string,
	log *zap.Logger,
) *SlackHandler {
	return &SlackHandler{
		slackUsecase:  slackUsecase,
		ingester:      ingester,
		confirmer:     confirmer,
		cookies:       cookies,
		signingSecret: signingSecret,
		log:           log.Named("slack_handler"),
	}
}

// Wait blocks until background message processing has finished
func (h *SlackHandler) Wait() {
	h.wg.Wait()
}

// Install redirects to the Slack authorize page
// GET /api/slack/install
func (h *SlackHandler) Install(c *gin.Context) {
	state, err := h.cookies.NewState(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Redirect(http.StatusFound, h.slackUsecase.InstallURL(state))
}

// OAuthCallback stores the workspace installation
// GET /api/slack/oauth/callback?code=...&state=...
func (h *SlackHandler) OAuthCallback(c *gin.Context) {
	if !h.cookies.CheckState(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
		return
	}
	if reason := c.Query("error"); reason != "" {
		c.Redirect(http.StatusFound, "/?slack_error="+url.QueryEscape(reason))
		return
	}

	user := authdelivery.CurrentUser(c)
	if _, err := h.slackUsecase.CompleteInstall(c.Request.Context(), user.ID, c.Query("code")); err != nil {
		h.log.Warn("slack install failed", zap.Error(err))
		c.Redirect(http.StatusFound, "/?slack_error="+url.QueryEscape(err.Error()))
		return
	}
	c.Redirect(http.StatusFound, "/?slack=installed")
}

func (h *SlackHandler) verify(c *gin.Context) ([]byte, bool) {
	body, err := slackclient.VerifyRequest(c.Request, h.signingSecret)
	if err != nil {
		if errors.Is(err, slackclient.ErrBadSignature) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid slack signature"})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	return body, true
}

// Events handles the Events API
// POST /api/slack/events
func (h *SlackHandler) Events(c *gin.Context) {
	body, ok := h.verify(c)
	if !ok {
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.String(http.StatusOK, challenge.Challenge)
		return
	case slackevents.CallbackEvent:
	default:
		c.Status(http.StatusOK)
		return
	}

	// Retry of an event that is already being processed.
	if c.GetHeader("X-Slack-Retry-Num") != "" {
		c.Status(http.StatusOK)
		return
	}

	if mention, ok := event.InnerEvent.Data.(*slackevents.AppMentionEvent); ok && mention.BotID == "" {
		msg := &inbounddomain.Message{
			Source:         decisiondomain.SourceSlack,
			MessageID:      slackMessageID(event.TeamID, mention.Channel, mention.TimeStamp),
			ThreadID:       firstNonEmpty(mention.ThreadTimeStamp, mention.TimeStamp),
			Text:           strings.TrimSpace(mentionPattern.ReplaceAllString(mention.Text, "")),
			ReceivedAt:     slackTime(mention.TimeStamp),
			SlackTeamID:    event.TeamID,
			SlackChannelID: mention.Channel,
			SlackUserID:    mention.User,
			Intent:         inbounddomain.IntentDecision,
		}
		h.processAsync(c.Request.Context(), msg, false)
	}
	c.Status(http.StatusOK)
}

// Commands handles the /decision slash command
// POST /api/slack/commands
func (h *SlackHandler) Commands(c *gin.Context) {
	if _, ok := h.verify(c); !ok {
		return
	}
	cmd, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	intent, text := ParseCommandText(cmd.Text)
	if text == "" {
		c.JSON(http.StatusOK, gin.H{
			"response_type": "ephemeral",
			"text":          "Usage: `/decision <what was decided>` or `/decision search <query>`",
		})
		return
	}

	msg := &inbounddomain.Message{
		Source:         decisiondomain.SourceSlack,
		MessageID:      slackMessageID(cmd.TeamID, cmd.ChannelID, cmd.TriggerID),
		Text:           text,
		ReceivedAt:     time.Now(),
		SlackTeamID:    cmd.TeamID,
		SlackChannelID: cmd.ChannelID,
		SlackUserID:    cmd.UserID,
		Intent:         intent,
	}
	h.processAsync(c.Request.Context(), msg, true)

	ack := "Looking for a decision in that..."
	if intent == inbounddomain.IntentQuery {
		ack = "Searching decisions for \"" + text + "\"..."
	}
	c.JSON(http.StatusOK, gin.H{"response_type": "ephemeral", "text": ack})
}

// ParseCommandText splits "/decision search q" and "/decision ? q" queries
// from decision text.
func ParseCommandText(text string) (inbounddomain.Intent, string) {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	for _, prefix := range []string{"search ", "? "} {
		if strings.HasPrefix(lower, prefix) {
			return inbounddomain.IntentQuery, strings.TrimSpace(text[len(prefix):])
		}
	}
	if lower == "search" || lower == "?" {
		return inbounddomain.IntentQuery, ""
	}
	return inbounddomain.IntentDecision, text
}

// processAsync answers Slack within its 3 second window and extracts in the
// background. report posts a note when nothing was recorded.
func (h *SlackHandler) processAsync(ctx context.Context, msg *inbounddomain.Message, report bool) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), asyncTimeout)
		defer cancel()

		if email, err := h.slackUsecase.UserEmail(ctx, msg.SlackTeamID, msg.SlackUserID); err == nil {
			msg.From = email
		} else {
			h.log.Warn("slack user lookup failed", zap.String("user", msg.SlackUserID), zap.Error(err))
		}

		res, err := h.ingester.Ingest(ctx, msg)
		if err != nil {
			h.log.Error("slack message failed", zap.String("message_id", msg.MessageID), zap.Error(err))
			if report {
				h.postText(ctx, msg, "Sorry, I could not process that: "+err.Error())
			}
			return
		}
		if report && res.Outcome == inbounddomain.OutcomeDiscarded {
			h.postText(ctx, msg, "I did not find a clear decision in that ("+res.Reason+").")
		}
	}()
}

func (h *SlackHandler) postText(ctx context.Context, msg *inbounddomain.Message, text string) {
	if err := h.slackUsecase.PostText(ctx, msg.SlackTeamID, msg.SlackChannelID, msg.SlackUserID, text); err != nil {
		h.log.Warn("slack reply failed", zap.Error(err))
	}
}

// Interactions handles confirm and reject button clicks
// POST /api/slack/interactions
func (h *SlackHandler) Interactions(c *gin.Context) {
	if _, ok := h.verify(c); !ok {
		return
	}

	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(c.PostForm("payload")), &cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interaction payload"})
		return
	}
	if cb.Type != slack.InteractionTypeBlockActions {
		c.Status(http.StatusOK)
		return
	}

	channelID := firstNonEmpty(cb.Channel.ID, cb.Container.ChannelID)
	for _, action := range cb.ActionCallback.BlockActions {
		var text string
		switch action.ActionID {
		case slackclient.ActionConfirm:
			text = h.confirm(c.Request.Context(), action.Value)
		case slackclient.ActionReject:
			text = h.reject(c.Request.Context(), action.Value)
		default:
			continue
		}
		if err := h.slackUsecase.PostText(c.Request.Context(), cb.Team.ID, channelID, cb.User.ID, text); err != nil {
			h.log.Warn("slack acknowledgement failed", zap.Error(err))
		}
	}
	c.Status(http.StatusOK)
}

func (h *SlackHandler) confirm(ctx context.Context, token string) string {
	d, outcome, err := h.confirmer.Confirm(ctx, token)
	switch {
	case errors.Is(err, decisiondomain.ErrNotFound):
		return "That decision no longer exists."
	case err != nil:
		h.log.Error("slack confirm failed", zap.Error(err))
		return "Something went wrong confirming that decision."
	case outcome == decisiondomain.OutcomeAlreadyConfirmed:
		return "Already confirmed: " + d.Summary
	}
	return "Confirmed: " + d.Summary
}

func (h *SlackHandler) reject(ctx context.Context, token string) string {
	outcome, err := h.confirmer.Reject(ctx, token)
	switch {
	case errors.Is(err, decisiondomain.ErrNotFound):
		return "That decision no longer exists."
	case err != nil:
		h.log.Error("slack reject failed", zap.Error(err))
		return "Something went wrong rejecting that decision."
	case outcome == decisiondomain.OutcomeAlreadyConfirmed:
		return "That decision was already confirmed and cannot be rejected."
	}
	return "Rejected. The decision was discarded."
}

func slackMessageID(teamID, channelID, ts string) string {
	return fmt.Sprintf("slack:%s:%s:%s", teamID, channelID, ts)
}

// slackTime parses "1700000000.000100" timestamps.
func slackTime(ts string) time.Time {
	secs, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(int64(secs), 0)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
