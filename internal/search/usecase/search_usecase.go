package usecase

import (
	"context"
	"errors"
	"strings"

	decisiondomain "decisionlog-backend/internal/decision/domain"
	gmaildomain "decisionlog-backend/internal/gmailsync/domain"
	"decisionlog-backend/internal/search/domain"
	"decisionlog-backend/internal/search/repository"
	"decisionlog-backend/pkg/fuzzy"

	"go.uber.org/zap"
)

const (
	defaultLimit      = 20
	maxLimit          = 100
	fallbackThreshold = 3
	fallbackLimit     = 10
	fallbackWorkers   = 5
)

type searchUsecase struct {
	repo      repository.SearchRepository
	decisions DecisionLoader
	tags      TagLister
	mirror    Mirror
	mirrored  MessageLookup
	index     SemanticIndex
	log       *zap.Logger
}

// NewSearchUsecase creates a new search usecase. mirror, mirrored and index
// may be nil, which disables the Gmail fallback and semantic search.
func NewSearchUsecase(
	repo repository.SearchRepository,
	decisions DecisionLoader,
	tags TagLister,
	mirror Mirror,
	mirrored MessageLookup,
	index SemanticIndex,
	log *zap.Logger,
) SearchUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &searchUsecase{
		repo:      repo,
		decisions: decisions,
		tags:      tags,
		mirror:    mirror,
		mirrored:  mirrored,
		index:     index,
		log:       log.Named("search"),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func (u *searchUsecase) Search(ctx context.Context, viewer decisiondomain.Viewer, q domain.Query) (*domain.Page, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, domain.ErrEmptyQuery
	}
	limit := clampLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	keyset := q.Pagination == domain.PaginateKeyset || q.Cursor != ""
	var after *domain.Cursor
	if q.Cursor != "" {
		c, err := domain.DecodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		after = &c
	}
	if keyset {
		offset = 0
	}

	ranked, err := u.repo.SearchDecisions(ctx, viewer, text, limit, offset, after)
	if err != nil {
		return nil, err
	}
	total, err := u.repo.CountDecisions(ctx, viewer, text)
	if err != nil {
		return nil, err
	}
	hits, err := u.load(ctx, viewer, ranked)
	if err != nil {
		return nil, err
	}

	page := &domain.Page{
		Query:      text,
		Pagination: domain.PaginateOffset,
		Decisions:  hits,
		Messages:   []domain.MessageHit{},
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	}
	if keyset {
		page.Pagination = domain.PaginateKeyset
		if len(ranked) == limit {
			last := ranked[len(ranked)-1]
			page.NextCursor = domain.Cursor{Rank: last.Rank, ID: last.ID}.Encode()
		}
	} else if next := offset + len(ranked); len(ranked) == limit && int64(next) < total {
		page.NextOffset = &next
	}

	firstPage := after == nil && offset == 0
	if !firstPage || viewer.UserID == "" {
		return page, nil
	}

	msgs, err := u.repo.SearchMessages(ctx, viewer.UserID, text, limit)
	if err != nil {
		return nil, err
	}
	page.Messages = append(page.Messages, msgs...)

	if q.Fallback && total+int64(len(msgs)) < fallbackThreshold {
		live := u.fallback(ctx, viewer.UserID, text, msgs)
		if len(live) > 0 {
			page.GmailFallback = true
			page.Messages = append(page.Messages, live...)
		}
	}
	return page, nil
}

// load fetches decisions for ranked ids, keeping rank order.
func (u *searchUsecase) load(ctx context.Context, viewer decisiondomain.Viewer, ranked []domain.RankedID) ([]domain.DecisionHit, error) {
	hits := make([]domain.DecisionHit, 0, len(ranked))
	if len(ranked) == 0 {
		return hits, nil
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
	}
	rows, err := u.decisions.FindVisibleByIDs(ctx, viewer, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*decisiondomain.Decision, len(rows))
	for _, d := range rows {
		byID[d.ID] = d
	}
	for _, r := range ranked {
		if d, ok := byID[r.ID]; ok {
			hits = append(hits, domain.DecisionHit{Rank: r.Rank, Decision: d})
		}
	}
	return hits, nil
}

// fallback asks Gmail live and mirrors what it finds. Failures only cost
// the extra hits.
func (u *searchUsecase) fallback(ctx context.Context, userID, text string, local []domain.MessageHit) []domain.MessageHit {
	if u.mirror == nil || u.mirrored == nil {
		return nil
	}
	mb, err := u.mirror.OpenMailbox(ctx, userID)
	if errors.Is(err, gmaildomain.ErrNotConnected) {
		return nil
	}
	if err != nil {
		u.log.Warn("gmail fallback unavailable", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	ids, err := mb.ListMessageIDs(ctx, text, nil, fallbackLimit)
	if err != nil {
		u.log.Warn("gmail fallback list failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	stored, err := u.mirrored.ExistingIDs(ctx, userID, ids)
	if err != nil {
		u.log.Warn("gmail fallback lookup failed", zap.Error(err))
		return nil
	}
	seen := make(map[string]bool, len(local))
	for _, m := range local {
		seen[m.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !stored[id] && !seen[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	fetched, err := mb.FetchMessages(ctx, missing, fallbackWorkers)
	if err != nil {
		u.log.Warn("gmail fallback fetch failed", zap.Error(err))
		return nil
	}
	if _, err := u.mirror.StoreMessages(ctx, userID, fetched); err != nil {
		u.log.Warn("gmail fallback store failed", zap.Error(err))
	}

	out := make([]domain.MessageHit, 0, len(fetched))
	for _, m := range fetched {
		out = append(out, domain.MessageHit{
			ID:           m.ID,
			ThreadID:     m.ThreadID,
			Subject:      m.Subject,
			From:         m.From,
			Snippet:      m.Snippet,
			InternalDate: m.InternalDate,
			Rank:         0,
			Live:         true,
		})
	}
	u.log.Info("gmail fallback widened search", zap.String("user_id", userID), zap.Int("messages", len(out)))
	return out
}

func (u *searchUsecase) TopDecisions(ctx context.Context, viewer decisiondomain.Viewer, query string, limit int) ([]*decisiondomain.Decision, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	ranked, err := u.repo.SearchDecisions(ctx, viewer, query, clampLimit(limit), 0, nil)
	if err != nil {
		return nil, err
	}
	hits, err := u.load(ctx, viewer, ranked)
	if err != nil {
		return nil, err
	}
	out := make([]*decisiondomain.Decision, len(hits))
	for i, h := range hits {
		out[i] = h.Decision
	}
	return out, nil
}

func (u *searchUsecase) Semantic(ctx context.Context, viewer decisiondomain.Viewer, query string, limit int) ([]domain.SemanticHit, error) {
	if u.index == nil {
		return nil, ErrSemanticUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	ids, scores, err := u.index.Search(ctx, viewer.Email, query, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	rows, err := u.decisions.FindVisibleByIDs(ctx, viewer, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*decisiondomain.Decision, len(rows))
	for _, d := range rows {
		byID[d.ID] = d
	}

	hits := make([]domain.SemanticHit, 0, len(ids))
	for i, id := range ids {
		d, ok := byID[id]
		if !ok {
			continue
		}
		var score float64
		if i < len(scores) {
			score = scores[i]
		}
		hits = append(hits, domain.SemanticHit{Score: score, Decision: d})
	}
	return hits, nil
}

func (u *searchUsecase) Suggestions(ctx context.Context, viewer decisiondomain.Viewer, prefix string, limit int) ([]string, error) {
	if strings.TrimSpace(prefix) == "" {
		return []string{}, nil
	}
	if limit <= 0 || limit > 20 {
		limit = 8
	}
	counts, err := u.tags.ListVisible(ctx, viewer)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(counts))
	for i, c := range counts {
		names[i] = c.Name
	}
	out := fuzzy.Suggest(prefix, names, limit)
	if out == nil {
		out = []string{}
	}
	return out, nil
}
