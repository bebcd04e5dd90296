package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	authrepo "decisionlog-backend/internal/auth/repository"
	decisiondomain "decisionlog-backend/internal/decision/domain"
	"decisionlog-backend/internal/gmailsync/domain"
	"decisionlog-backend/internal/gmailsync/repository"
	inbounddomain "decisionlog-backend/internal/inbound/domain"
	"decisionlog-backend/pkg/dbtypes"
	"decisionlog-backend/pkg/gmail"
	"decisionlog-backend/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	staleLockAfter  = 30 * time.Minute
	maxFullSync     = 2000
	fetchWorkers    = 5
	maxBodyBytes    = 200_000
	maxFilterLength = 500
)

// Options configures the sync usecase
type Options struct {
	Window      time.Duration // full sync look-back
	BotEmail    string
	PubSubTopic string
}

type syncUsecase struct {
	users    authrepo.UserRepository
	states   repository.SyncStateRepository
	messages repository.MessageRepository
	provider MailboxProvider
	box      TokenBox
	ingester DecisionIngester
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

// NewSyncUsecase wires the sync usecase. ingester may be nil.
func NewSyncUsecase(
	users authrepo.UserRepository,
	states repository.SyncStateRepository,
	messages repository.MessageRepository,
	provider MailboxProvider,
	box TokenBox,
	ingester DecisionIngester,
	opts Options,
	log *zap.Logger,
) Usecase {
	if opts.Window <= 0 {
		opts.Window = 30 * 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &syncUsecase{
		users:    users,
		states:   states,
		messages: messages,
		provider: provider,
		box:      box,
		ingester: ingester,
		opts:     opts,
		log:      log.Named("gmailsync"),
		now:      time.Now,
	}
}

func (u *syncUsecase) ConnectURL(state string) string {
	return u.provider.AuthCodeURL(state)
}

func (u *syncUsecase) CompleteConnect(ctx context.Context, userID, code string) (*Status, error) {
	tok, err := u.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		return nil, errors.New("google did not return a refresh token; remove the app's access and connect again")
	}

	mb, err := u.provider.Open(ctx, tok.RefreshToken, nil)
	if err != nil {
		return nil, err
	}
	email, _, err := mb.Profile(ctx)
	if err != nil {
		return nil, err
	}

	encrypted, err := u.box.Encrypt(tok.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}
	if err := u.users.SetGmailToken(ctx, userID, email, encrypted); err != nil {
		return nil, err
	}
	state, err := u.states.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}

	if u.opts.PubSubTopic != "" {
		if _, exp, err := mb.Watch(ctx, u.opts.PubSubTopic, state.LabelIDs); err != nil {
			u.log.Warn("gmail watch failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			u.log.Info("gmail watch registered", zap.String("user_id", userID), zap.Time("expires", exp))
		}
	}

	u.log.Info("gmail connected", zap.String("user_id", userID), zap.String("gmail", email))
	return &Status{Connected: true, GmailEmail: email, State: state}, nil
}

func (u *syncUsecase) Status(ctx context.Context, userID string) (*Status, error) {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.GmailConnected() {
		return &Status{Connected: false}, nil
	}
	state, err := u.states.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Status{Connected: true, GmailEmail: user.GmailEmail, State: state}, nil
}

func (u *syncUsecase) UpdateSettings(ctx context.Context, userID string, s domain.Settings) (*domain.SyncState, error) {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.GmailConnected() {
		return nil, domain.ErrNotConnected
	}

	state, err := u.states.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}

	filter := strings.TrimSpace(s.FilterQuery)
	if len(filter) > maxFilterLength {
		return nil, fmt.Errorf("filter query longer than %d characters", maxFilterLength)
	}
	labels := []string(state.LabelIDs)
	if s.LabelIDs != nil {
		labels = cleanLabels(s.LabelIDs)
	}
	extract := state.ExtractDecisions
	if s.ExtractDecisions != nil {
		extract = *s.ExtractDecisions
	}

	if err := u.states.UpdateSettings(ctx, userID, filter, labels, extract); err != nil {
		return nil, err
	}
	return u.states.Get(ctx, userID)
}

func cleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := map[string]bool{}
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func (u *syncUsecase) Disconnect(ctx context.Context, userID string) error {
	if err := u.users.ClearGmailToken(ctx, userID); err != nil {
		return err
	}
	if err := u.states.Delete(ctx, userID); err != nil {
		return err
	}
	return u.messages.DeleteForUser(ctx, userID)
}

func (u *syncUsecase) OpenMailbox(ctx context.Context, userID string) (Mailbox, error) {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.GmailConnected() {
		return nil, domain.ErrNotConnected
	}

	refresh, err := u.box.Decrypt(user.GmailRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}

	onRefresh := func(tok *oauth2.Token) error {
		if tok.RefreshToken == "" || tok.RefreshToken == refresh {
			return nil
		}
		encrypted, err := u.box.Encrypt(tok.RefreshToken)
		if err != nil {
			return err
		}
		return u.users.SetGmailToken(context.WithoutCancel(ctx), userID, user.GmailEmail, encrypted)
	}
	return u.provider.Open(ctx, refresh, onRefresh)
}

func (u *syncUsecase) Sync(ctx context.Context, userID string, mode domain.SyncMode) (*domain.SyncResult, error) {
	mb, err := u.OpenMailbox(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := u.states.Ensure(ctx, userID); err != nil {
		return nil, err
	}
	acquired, err := u.states.TryAcquire(ctx, userID, u.now(), staleLockAfter)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, domain.ErrSyncInProgress
	}

	// The lock must be released even when the caller goes away.
	releaseCtx := context.WithoutCancel(ctx)

	state, err := u.states.Get(ctx, userID)
	if err == nil && state == nil {
		err = errors.New("sync state disappeared")
	}
	var result *domain.SyncResult
	if err == nil {
		result, err = u.run(ctx, userID, state, mb, mode)
	}
	if err != nil {
		metrics.Get().GmailSyncRuns.WithLabelValues(string(mode), "error").Inc()
		if ferr := u.states.Fail(releaseCtx, userID, err.Error()); ferr != nil {
			u.log.Error("failed to record sync error", zap.String("user_id", userID), zap.Error(ferr))
		}
		return nil, err
	}

	if err := u.states.Complete(releaseCtx, userID, result.HistoryID, result.Stored, u.now()); err != nil {
		return nil, err
	}
	metrics.Get().GmailSyncRuns.WithLabelValues(string(result.Mode), "ok").Inc()
	metrics.Get().GmailSyncMessages.Add(float64(result.Stored))
	u.log.Info("gmail sync finished",
		zap.String("user_id", userID),
		zap.String("mode", string(result.Mode)),
		zap.Bool("fell_back", result.FellBack),
		zap.Int("listed", result.Listed),
		zap.Int("stored", result.Stored),
		zap.Int("extracted", result.Extracted),
	)
	return result, nil
}

func (u *syncUsecase) run(ctx context.Context, userID string, state *domain.SyncState, mb Mailbox, mode domain.SyncMode) (*domain.SyncResult, error) {
	if mode == domain.ModeAuto {
		mode = domain.ModeIncremental
	}
	if mode == domain.ModeIncremental && state.LastHistoryID == 0 {
		return u.fullSync(ctx, userID, state, mb)
	}
	if mode == domain.ModeFull {
		return u.fullSync(ctx, userID, state, mb)
	}

	result, err := u.incrementalSync(ctx, userID, state, mb)
	if errors.Is(err, gmail.ErrHistoryExpired) {
		u.log.Info("history cursor expired, running full sync",
			zap.String("user_id", userID), zap.Uint64("history_id", state.LastHistoryID))
		result, err = u.fullSync(ctx, userID, state, mb)
		if result != nil {
			result.FellBack = true
		}
	}
	return result, err
}

// fullSync lists the rolling window and imports what is not stored yet.
// The cursor is the profile history id read before listing, so changes
// made during the run are replayed by the next incremental pass.
func (u *syncUsecase) fullSync(ctx context.Context, userID string, state *domain.SyncState, mb Mailbox) (*domain.SyncResult, error) {
	_, historyID, err := mb.Profile(ctx)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(state.FilterQuery + " after:" + u.now().Add(-u.opts.Window).Format("2006/01/02"))
	ids, err := mb.ListMessageIDs(ctx, query, state.LabelIDs, maxFullSync)
	if err != nil {
		return nil, err
	}

	if len(ids) >= maxFullSync {
		u.log.Warn("full sync hit the message cap, older messages in the window were not imported",
			zap.String("user_id", userID), zap.Int("cap", maxFullSync))
	}

	result := &domain.SyncResult{Mode: domain.ModeFull, Listed: len(ids), HistoryID: historyID}
	if err := u.importMessages(ctx, userID, state, mb, ids, result); err != nil {
		return nil, err
	}
	return result, nil
}

// incrementalSync replays history since the cursor. History can only be
// filtered by one label server side, so multiple labels are matched on the
// fetched messages. The filter query is not applied to history.
func (u *syncUsecase) incrementalSync(ctx context.Context, userID string, state *domain.SyncState, mb Mailbox) (*domain.SyncResult, error) {
	label := ""
	if len(state.LabelIDs) == 1 {
		label = state.LabelIDs[0]
	}
	ids, latest, err := mb.ListHistory(ctx, state.LastHistoryID, label)
	if err != nil {
		return nil, err
	}

	result := &domain.SyncResult{Mode: domain.ModeIncremental, Listed: len(ids), HistoryID: latest}
	if err := u.importMessages(ctx, userID, state, mb, ids, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (u *syncUsecase) importMessages(ctx context.Context, userID string, state *domain.SyncState, mb Mailbox, ids []string, result *domain.SyncResult) error {
	if len(ids) == 0 {
		return nil
	}
	stored, err := u.messages.ExistingIDs(ctx, userID, ids)
	if err != nil {
		return err
	}
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if !stored[id] {
			missing = append(missing, id)
		}
	}
	result.Skipped = len(ids) - len(missing)
	if len(missing) == 0 {
		return nil
	}

	fetched, err := mb.FetchMessages(ctx, missing, fetchWorkers)
	if err != nil {
		return err
	}
	if len(state.LabelIDs) > 1 {
		fetched = withAnyLabel(fetched, state.LabelIDs)
	}
	n, err := u.StoreMessages(ctx, userID, fetched)
	if err != nil {
		return err
	}
	result.Stored = n

	if state.ExtractDecisions && u.ingester != nil {
		result.Extracted = u.extract(ctx, fetched)
	}
	return nil
}

func withAnyLabel(msgs []*gmail.Message, labels []string) []*gmail.Message {
	want := make(map[string]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}
	out := msgs[:0]
	for _, m := range msgs {
		for _, l := range m.LabelIDs {
			if want[l] {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func (u *syncUsecase) extract(ctx context.Context, msgs []*gmail.Message) int {
	extracted := 0
	for _, m := range msgs {
		in := ToInbound(m)
		if inbounddomain.DetectIntent(in, u.opts.BotEmail) != inbounddomain.IntentDecision {
			continue
		}
		res, err := u.ingester.Ingest(ctx, in)
		if err != nil {
			u.log.Warn("decision extraction failed", zap.String("gmail_id", m.ID), zap.Error(err))
			continue
		}
		if res.Outcome == inbounddomain.OutcomeCreated {
			extracted++
		}
	}
	return extracted
}

// ToInbound converts a Gmail message for the decision pipeline.
func ToInbound(m *gmail.Message) *inbounddomain.Message {
	messageID := m.MessageID
	if messageID == "" {
		messageID = "gmail:" + m.ID
	}
	var refs []string
	if m.InReplyTo != "" {
		refs = []string{m.InReplyTo}
	}
	return &inbounddomain.Message{
		Source:     decisiondomain.SourceGmail,
		MessageID:  messageID,
		ThreadID:   m.ThreadID,
		From:       m.From,
		To:         m.To,
		Cc:         m.Cc,
		Subject:    m.Subject,
		Text:       m.Body,
		InReplyTo:  m.InReplyTo,
		References: refs,
		ReceivedAt: m.InternalDate,
	}
}

func (u *syncUsecase) StoreMessages(ctx context.Context, userID string, msgs []*gmail.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	rows := make([]*domain.GmailMessage, 0, len(msgs))
	bodies := make([]*domain.GmailBody, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, &domain.GmailMessage{
			UserID:       userID,
			ID:           m.ID,
			ThreadID:     m.ThreadID,
			Subject:      m.Subject,
			FromAddress:  m.From,
			ToAddresses:  dbtypes.StringArray(m.To),
			Snippet:      m.Snippet,
			LabelIDs:     dbtypes.StringArray(m.LabelIDs),
			InternalDate: m.InternalDate,
			HistoryID:    m.HistoryID,
		})
		if m.Body != "" {
			bodies = append(bodies, &domain.GmailBody{
				UserID:    userID,
				MessageID: m.ID,
				BodyText:  truncateUTF8(m.Body, maxBodyBytes),
			})
		}
	}
	if err := u.messages.Save(ctx, rows, bodies); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func (u *syncUsecase) SyncAll(ctx context.Context) int {
	users, err := u.users.ListGmailConnected(ctx)
	if err != nil {
		u.log.Error("failed to list connected mailboxes", zap.Error(err))
		return 0
	}

	ran := 0
	for _, user := range users {
		if ctx.Err() != nil {
			break
		}
		if _, err := u.Sync(ctx, user.ID, domain.ModeAuto); err != nil {
			if !errors.Is(err, domain.ErrSyncInProgress) {
				u.log.Warn("scheduled sync failed", zap.String("user_id", user.ID), zap.Error(err))
			}
			continue
		}
		ran++
	}
	return ran
}

func (u *syncUsecase) HandlePush(ctx context.Context, emailAddress string, historyID uint64) error {
	user, err := u.users.FindByGmailEmail(ctx, emailAddress)
	if err != nil {
		return err
	}
	if user == nil {
		u.log.Debug("push for unknown mailbox", zap.String("email", emailAddress))
		return nil
	}

	_, err = u.Sync(ctx, user.ID, domain.ModeIncremental)
	if errors.Is(err, domain.ErrSyncInProgress) || errors.Is(err, domain.ErrNotConnected) {
		return nil
	}
	return err
}
