package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	authdomain "decisionlog-backend/internal/auth/domain"
	authrepo "decisionlog-backend/internal/auth/repository"
	decisiondomain "decisionlog-backend/internal/decision/domain"
	decisionrepo "decisionlog-backend/internal/decision/repository"
	decisionusecase "decisionlog-backend/internal/decision/usecase"
	"decisionlog-backend/internal/inbound/domain"
	"decisionlog-backend/pkg/ai"
	"decisionlog-backend/pkg/fcm"
	"decisionlog-backend/pkg/mailer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bot = "decisions@example.com"

type memDecisions struct {
	decisionrepo.DecisionRepository
	mu   sync.Mutex
	rows map[string]*decisiondomain.Decision
}

func (m *memDecisions) Create(_ context.Context, d *decisiondomain.Decision) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[d.MessageID]; ok {
		return false, nil
	}
	m.rows[d.MessageID] = d
	return true, nil
}

func (m *memDecisions) ExistsByMessageID(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	return ok, nil
}

type memUsers struct {
	authrepo.UserRepository
	byEmail map[string]*authdomain.User
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*authdomain.User, error) {
	return m.byEmail[email], nil
}

type stubExtractor struct {
	calls  int
	result *ai.DecisionExtraction
	err    error
	thread string
}

func (s *stubExtractor) ExtractDecision(_ context.Context, thread string) (*ai.DecisionExtraction, error) {
	s.calls++
	s.thread = thread
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.result
	return &cp, nil
}

type recordingMail struct {
	sent []mailer.Reply
}

func (r *recordingMail) Send(_ context.Context, reply mailer.Reply) error {
	r.sent = append(r.sent, reply)
	return nil
}

type recordingSlack struct {
	confirmations []string
	texts         []string
}

func (r *recordingSlack) PostConfirmation(_ context.Context, team, channel, user, summary, token string) error {
	r.confirmations = append(r.confirmations, team+"/"+channel+"/"+user+":"+token)
	return nil
}

func (r *recordingSlack) PostText(_ context.Context, _, _, _, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

type stubSearch struct {
	viewer decisiondomain.Viewer
	query  string
	hits   []*decisiondomain.Decision
}

func (s *stubSearch) TopDecisions(_ context.Context, v decisiondomain.Viewer, q string, _ int) ([]*decisiondomain.Decision, error) {
	s.viewer, s.query = v, q
	return s.hits, nil
}

type recordingQueue struct {
	jobs []decisionusecase.TagJob
}

func (q *recordingQueue) QueueJob(job decisionusecase.TagJob) bool {
	q.jobs = append(q.jobs, job)
	return true
}

type memTokens struct {
	authrepo.FCMTokenRepository
	tokens  []authdomain.FCMToken
	deleted []string
}

func (m *memTokens) GetTokensByUserID(context.Context, string) ([]authdomain.FCMToken, error) {
	return m.tokens, nil
}

func (m *memTokens) DeleteTokens(_ context.Context, tokens []string) error {
	m.deleted = append(m.deleted, tokens...)
	return nil
}

type stubPush struct {
	sent   []fcm.NotificationData
	reject []string
}

func (s *stubPush) SendToDevices(_ context.Context, _ []string, n fcm.NotificationData) ([]string, error) {
	s.sent = append(s.sent, n)
	return s.reject, nil
}

type harness struct {
	p         Usecase
	decisions *memDecisions
	extractor *stubExtractor
	mail      *recordingMail
	slack     *recordingSlack
	search    *stubSearch
	queue     *recordingQueue
	tokens    *memTokens
	push      *stubPush
}

func newHarness() *harness {
	h := &harness{
		decisions: &memDecisions{rows: map[string]*decisiondomain.Decision{}},
		extractor: &stubExtractor{result: &ai.DecisionExtraction{
			IsDecision:    true,
			Summary:       "Use Postgres for the event store",
			DecisionMaker: "Alice@Example.com",
			Priority:      "urgent",
			DecisionType:  "technical",
			Confidence:    85,
			DecisionDate:  "2025-03-14",
			KeyPoints:     []string{"managed backups"},
			Model:         "stub",
		}},
		mail:   &recordingMail{},
		slack:  &recordingSlack{},
		search: &stubSearch{},
		queue:  &recordingQueue{},
		tokens: &memTokens{tokens: []authdomain.FCMToken{{Token: "dev-1"}, {Token: "dev-2"}}},
		push:   &stubPush{reject: []string{"dev-2"}},
	}
	users := &memUsers{byEmail: map[string]*authdomain.User{
		"alice@example.com": {ID: "u-alice", Email: "alice@example.com"},
	}}
	h.p = NewPipeline(Dependencies{
		Decisions: h.decisions,
		Users:     users,
		Extractor: h.extractor,
		Search:    h.search,
		Mail:      h.mail,
		Slack:     h.slack,
		Push:      h.push,
		Tokens:    h.tokens,
		Tags:      h.queue,
	}, Options{BotEmail: bot, BaseURL: "https://app.example.com/"}, nil)
	return h
}

func decisionEmail() *domain.Message {
	return &domain.Message{
		Source:     decisiondomain.SourceEmail,
		MessageID:  "abc@mail.example.com",
		From:       "alice@example.com",
		To:         []string{"bob@example.com", bot},
		Cc:         []string{"carol@example.com"},
		Subject:    "Event store",
		Text:       "We will use Postgres.",
		ReceivedAt: time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestIngestCreatesPendingDecision(t *testing.T) {
	h := newHarness()
	res, err := h.p.Ingest(context.Background(), decisionEmail())
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCreated, res.Outcome)

	d := res.Decision
	assert.Equal(t, decisiondomain.StatusPending, d.Status)
	assert.Equal(t, "u-alice", d.UserID)
	assert.Equal(t, "alice@example.com", d.DecisionMaker)
	assert.Equal(t, decisiondomain.PriorityCritical, d.Priority)
	assert.Equal(t, decisiondomain.TypeTechnical, d.Type)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, []string(d.Witnesses))
	assert.Len(t, d.ConfirmationToken, 64)
	assert.Equal(t, "2025-03-14", d.DecisionDate.Format("2006-01-02"))
	assert.Contains(t, h.extractor.thread, "Subject: Event store")

	require.Len(t, h.mail.sent, 1)
	reply := h.mail.sent[0]
	assert.Equal(t, "alice@example.com", reply.To)
	assert.Equal(t, "abc@mail.example.com", reply.InReplyTo)
	assert.Contains(t, reply.Text, "https://app.example.com/api/decisions/confirm?token="+d.ConfirmationToken)
	assert.Contains(t, reply.Text, "https://app.example.com/api/decisions/reject?token="+d.ConfirmationToken)

	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, d.ID, h.queue.jobs[0].DecisionID)
	require.Len(t, h.push.sent, 1)
	assert.Equal(t, []string{"dev-2"}, h.tokens.deleted)
}

func TestIngestDuplicateIsNoop(t *testing.T) {
	h := newHarness()
	_, err := h.p.Ingest(context.Background(), decisionEmail())
	require.NoError(t, err)

	res, err := h.p.Ingest(context.Background(), decisionEmail())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, 1, h.extractor.calls)
	assert.Len(t, h.mail.sent, 1)
	assert.Len(t, h.decisions.rows, 1)
}

func TestIngestDiscardsLowConfidence(t *testing.T) {
	h := newHarness()
	h.extractor.result.Confidence = 69

	res, err := h.p.Ingest(context.Background(), decisionEmail())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDiscarded, res.Outcome)
	assert.Empty(t, h.decisions.rows)
	assert.Empty(t, h.mail.sent)
}

func TestIngestDiscardsNonDecision(t *testing.T) {
	h := newHarness()
	h.extractor.result.IsDecision = false

	res, err := h.p.Ingest(context.Background(), decisionEmail())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDiscarded, res.Outcome)
}

func TestIngestExtractorError(t *testing.T) {
	h := newHarness()
	h.extractor.err = errors.New("model down")

	_, err := h.p.Ingest(context.Background(), decisionEmail())
	assert.Error(t, err)
	assert.Empty(t, h.decisions.rows)
}

func TestIngestAnswersQuery(t *testing.T) {
	h := newHarness()
	h.search.hits = []*decisiondomain.Decision{{ID: "d1", Summary: "Use Postgres", DecisionMaker: "alice@example.com", Status: decisiondomain.StatusConfirmed}}

	msg := &domain.Message{
		Source:  decisiondomain.SourceEmail,
		From:    "alice@example.com",
		To:      []string{bot},
		Subject: "Re: postgres",
	}
	res, err := h.p.Ingest(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAnswered, res.Outcome)
	assert.Equal(t, 1, res.Matches)
	assert.Equal(t, "postgres", h.search.query)
	assert.Equal(t, "u-alice", h.search.viewer.UserID)
	assert.Zero(t, h.extractor.calls)

	require.Len(t, h.mail.sent, 1)
	assert.Contains(t, h.mail.sent[0].Text, "https://app.example.com/decisions/d1")
	assert.Empty(t, h.mail.sent[0].InReplyTo)
}

func TestIngestSlackPostsButtons(t *testing.T) {
	h := newHarness()
	msg := &domain.Message{
		Source:         decisiondomain.SourceSlack,
		MessageID:      "slack:T1:C1:1700000000.0001",
		From:           "alice@example.com",
		Text:           "we're going with Postgres",
		SlackTeamID:    "T1",
		SlackChannelID: "C1",
		SlackUserID:    "U1",
		Intent:         domain.IntentDecision,
	}
	res, err := h.p.Ingest(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCreated, res.Outcome)
	require.Len(t, h.slack.confirmations, 1)
	assert.Equal(t, "T1/C1/U1:"+res.Decision.ConfirmationToken, h.slack.confirmations[0])
	assert.Empty(t, h.mail.sent)
	assert.Equal(t, "T1", res.Decision.SlackTeamID)
}

func TestIngestIgnoresUnaddressedMail(t *testing.T) {
	h := newHarness()
	msg := decisionEmail()
	msg.Source = decisiondomain.SourceGmail
	msg.To = []string{"bob@example.com"}
	msg.Cc = nil

	res, err := h.p.Ingest(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, res.Outcome)
	assert.Zero(t, h.extractor.calls)
}

func TestSyntheticMessageIDIsStable(t *testing.T) {
	a := decisionEmail()
	a.MessageID = ""
	b := decisionEmail()
	b.MessageID = ""
	assert.Equal(t, SyntheticMessageID(a), SyntheticMessageID(b))

	b.Text = "different"
	assert.NotEqual(t, SyntheticMessageID(a), SyntheticMessageID(b))
}

func TestQueryText(t *testing.T) {
	assert.Equal(t, "budget", QueryText(&domain.Message{Subject: "Fwd: budget"}))
	assert.Equal(t, "hiring plan", QueryText(&domain.Message{Text: "\n  hiring plan\nthanks"}))
}
