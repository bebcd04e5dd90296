package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	authrepo "decisionlog-backend/internal/auth/repository"
	decisiondomain "decisionlog-backend/internal/decision/domain"
	decisionrepo "decisionlog-backend/internal/decision/repository"
	decisionusecase "decisionlog-backend/internal/decision/usecase"
	"decisionlog-backend/internal/inbound/domain"
	"decisionlog-backend/pkg/ai"
	"decisionlog-backend/pkg/dbtypes"
	"decisionlog-backend/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultThreshold = 70
	queryResultLimit = 5
	maxThreadBytes   = 100_000
)

// Options configures the pipeline
type Options struct {
	BotEmail  string
	BaseURL   string
	Threshold int // minimum confidence, 0..100
}

// Dependencies are the collaborators of the pipeline. Mail, Slack, Push,
// Tokens, Tags and Search may be nil; the matching side effect is skipped.
type Dependencies struct {
	Decisions decisionrepo.DecisionRepository
	Users     authrepo.UserRepository
	Extractor Extractor
	Search    Searcher
	Mail      MailSender
	Slack     SlackResponder
	Push      PushSender
	Tokens    authrepo.FCMTokenRepository
	Tags      TagQueue
}

type pipeline struct {
	deps Dependencies
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

// NewPipeline creates the inbound decision pipeline
func NewPipeline(deps Dependencies, opts Options, log *zap.Logger) Usecase {
	if opts.Threshold <= 0 {
		opts.Threshold = defaultThreshold
	}
	opts.BotEmail = strings.ToLower(strings.TrimSpace(opts.BotEmail))
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if log == nil {
		log = zap.NewNop()
	}
	return &pipeline{deps: deps, opts: opts, log: log.Named("inbound"), now: time.Now}
}

func (p *pipeline) Ingest(ctx context.Context, msg *domain.Message) (*domain.Result, error) {
	if msg.MessageID == "" {
		msg.MessageID = SyntheticMessageID(msg)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = p.now()
	}

	intent := domain.DetectIntent(msg, p.opts.BotEmail)
	switch intent {
	case domain.IntentQuery:
		return p.answer(ctx, msg)
	case domain.IntentDecision:
		return p.extract(ctx, msg)
	}
	p.record(msg, domain.OutcomeIgnored)
	return &domain.Result{Outcome: domain.OutcomeIgnored, Intent: intent}, nil
}

func (p *pipeline) extract(ctx context.Context, msg *domain.Message) (*domain.Result, error) {
	exists, err := p.deps.Decisions.ExistsByMessageID(ctx, msg.MessageID)
	if err != nil {
		return nil, err
	}
	if exists {
		p.record(msg, domain.OutcomeDuplicate)
		return &domain.Result{Outcome: domain.OutcomeDuplicate, Intent: domain.IntentDecision}, nil
	}

	thread := ThreadText(msg)
	ext, err := p.deps.Extractor.ExtractDecision(ctx, thread)
	if err != nil {
		metrics.Get().DecisionsIngested.WithLabelValues(string(msg.Source), "error").Inc()
		return nil, fmt.Errorf("extract decision: %w", err)
	}
	if !ext.IsDecision || strings.TrimSpace(ext.Summary) == "" {
		p.record(msg, domain.OutcomeDiscarded)
		return &domain.Result{Outcome: domain.OutcomeDiscarded, Intent: domain.IntentDecision, Reason: "no decision found"}, nil
	}
	if ext.Confidence < p.opts.Threshold {
		p.record(msg, domain.OutcomeDiscarded)
		p.log.Info("decision below confidence threshold",
			zap.String("message_id", msg.MessageID), zap.Int("confidence", ext.Confidence))
		return &domain.Result{
			Outcome: domain.OutcomeDiscarded,
			Intent:  domain.IntentDecision,
			Reason:  fmt.Sprintf("confidence %d below %d", ext.Confidence, p.opts.Threshold),
		}, nil
	}

	d, err := p.buildDecision(ctx, msg, ext, thread)
	if err != nil {
		return nil, err
	}
	created, err := p.deps.Decisions.Create(ctx, d)
	if err != nil {
		return nil, err
	}
	if !created {
		p.record(msg, domain.OutcomeDuplicate)
		return &domain.Result{Outcome: domain.OutcomeDuplicate, Intent: domain.IntentDecision}, nil
	}
	p.record(msg, domain.OutcomeCreated)
	p.log.Info("decision created",
		zap.String("decision_id", d.ID),
		zap.String("source", string(d.Source)),
		zap.Int("confidence", d.Confidence))

	if p.deps.Tags != nil && !p.deps.Tags.QueueJob(decisionusecase.TagJob{DecisionID: d.ID, Summary: d.Summary, Topic: d.Topic}) {
		p.log.Warn("tag queue full, decision left untagged", zap.String("decision_id", d.ID))
	}
	p.notifyCreated(ctx, msg, d)

	return &domain.Result{Outcome: domain.OutcomeCreated, Intent: domain.IntentDecision, Decision: d}, nil
}

func (p *pipeline) buildDecision(ctx context.Context, msg *domain.Message, ext *ai.DecisionExtraction, thread string) (*decisiondomain.Decision, error) {
	token, err := newConfirmationToken()
	if err != nil {
		return nil, err
	}

	sender := strings.ToLower(strings.TrimSpace(msg.From))
	maker := strings.ToLower(strings.TrimSpace(ext.DecisionMaker))
	if !strings.Contains(maker, "@") {
		maker = sender
	}

	d := &decisiondomain.Decision{
		ID:                uuid.NewString(),
		CreatedByEmail:    sender,
		Summary:           strings.TrimSpace(ext.Summary),
		DecisionMaker:     maker,
		Witnesses:         dbtypes.StringArray(p.witnesses(msg, ext.Witnesses, maker)),
		DecisionDate:      parseDecisionDate(ext.DecisionDate, msg.ReceivedAt),
		Topic:             strings.TrimSpace(ext.Topic),
		Parameters:        dbtypes.JSONMap(ext.Parameters),
		Priority:          decisiondomain.ParsePriority(ext.Priority),
		Type:              decisiondomain.ParseType(ext.DecisionType),
		Status:            decisiondomain.StatusPending,
		ConfirmationToken: token,
		RawThread:         thread,
		ParsedContext: decisiondomain.ParsedContext{
			Confidence: ext.Confidence,
			KeyPoints:  ext.KeyPoints,
			Model:      ext.Model,
			Subject:    msg.Subject,
		},
		Confidence:     ext.Confidence,
		Source:         msg.Source,
		MessageID:      msg.MessageID,
		ThreadID:       msg.ThreadID,
		SlackTeamID:    msg.SlackTeamID,
		SlackChannelID: msg.SlackChannelID,
	}

	if sender != "" && p.deps.Users != nil {
		owner, err := p.deps.Users.FindByEmail(ctx, sender)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			d.UserID = owner.ID
		}
	}
	return d, nil
}

// witnesses keeps the model's addresses when it named any, otherwise every
// thread participant except the maker and the bot.
func (p *pipeline) witnesses(msg *domain.Message, named []string, maker string) []string {
	candidates := named
	if len(cleanAddresses(named)) == 0 {
		candidates = msg.Participants()
	}
	out := []string{}
	for _, a := range cleanAddresses(candidates) {
		if a == maker || a == p.opts.BotEmail {
			continue
		}
		out = append(out, a)
	}
	return out
}

func cleanAddresses(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if !strings.Contains(a, "@") || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func parseDecisionDate(s string, fallback time.Time) *time.Time {
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err == nil {
		return &t
	}
	if fallback.IsZero() {
		return nil
	}
	day := time.Date(fallback.Year(), fallback.Month(), fallback.Day(), 0, 0, 0, 0, time.UTC)
	return &day
}

func (p *pipeline) answer(ctx context.Context, msg *domain.Message) (*domain.Result, error) {
	query := QueryText(msg)
	if query == "" || p.deps.Search == nil {
		p.record(msg, domain.OutcomeIgnored)
		return &domain.Result{Outcome: domain.OutcomeIgnored, Intent: domain.IntentQuery, Reason: "empty query"}, nil
	}

	viewer := decisiondomain.Viewer{Email: strings.ToLower(strings.TrimSpace(msg.From))}
	if p.deps.Users != nil && viewer.Email != "" {
		if user, err := p.deps.Users.FindByEmail(ctx, viewer.Email); err == nil && user != nil {
			viewer.UserID = user.ID
		}
	}

	matches, err := p.deps.Search.TopDecisions(ctx, viewer, query, queryResultLimit)
	if err != nil {
		return nil, fmt.Errorf("search decisions: %w", err)
	}
	p.record(msg, domain.OutcomeAnswered)
	p.replyMatches(ctx, msg, query, matches)

	return &domain.Result{Outcome: domain.OutcomeAnswered, Intent: domain.IntentQuery, Matches: len(matches)}, nil
}

func (p *pipeline) record(msg *domain.Message, outcome domain.Outcome) {
	metrics.Get().DecisionsIngested.WithLabelValues(string(msg.Source), string(outcome)).Inc()
}

// ThreadText renders a message the way the extraction prompt expects it.
func ThreadText(msg *domain.Message) string {
	var b strings.Builder
	if msg.From != "" {
		fmt.Fprintf(&b, "From: %s\n", msg.From)
	}
	if len(msg.To) > 0 {
		fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))
	}
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}
	if msg.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	}
	if !msg.ReceivedAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", msg.ReceivedAt.UTC().Format(time.RFC1123Z))
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(msg.Text))

	s := b.String()
	if len(s) > maxThreadBytes {
		s = strings.ToValidUTF8(s[:maxThreadBytes], "")
	}
	return s
}

// QueryText is the subject of a query email, or the first non-empty line.
func QueryText(msg *domain.Message) string {
	subject := strings.TrimSpace(msg.Subject)
	for _, prefix := range []string{"re:", "fwd:", "fw:"} {
		if strings.HasPrefix(strings.ToLower(subject), prefix) {
			subject = strings.TrimSpace(subject[len(prefix):])
		}
	}
	if subject != "" {
		return subject
	}
	for _, line := range strings.Split(msg.Text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// SyntheticMessageID derives a stable dedup key for messages without one.
func SyntheticMessageID(msg *domain.Message) string {
	h := sha256.New()
	for _, part := range []string{string(msg.Source), msg.From, strings.Join(msg.To, ","), msg.Subject, msg.Text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

func newConfirmationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
