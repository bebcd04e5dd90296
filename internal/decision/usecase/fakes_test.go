package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"decisionlog-backend/internal/decision/domain"
	"decisionlog-backend/pkg/chroma"
)

type memDecisions struct {
	mu   sync.Mutex
	rows map[string]*domain.Decision
	tags *memTags
}

func newMemDecisions(tags *memTags) *memDecisions {
	return &memDecisions{rows: map[string]*domain.Decision{}, tags: tags}
}

func visible(v domain.Viewer, d *domain.Decision) bool {
	if v.UserID != "" && d.UserID == v.UserID {
		return true
	}
	email := strings.ToLower(v.Email)
	return email != "" && (strings.ToLower(d.CreatedByEmail) == email || strings.ToLower(d.DecisionMaker) == email)
}

func (m *memDecisions) withTags(d *domain.Decision) *domain.Decision {
	cp := *d
	if m.tags != nil {
		cp.Tags = m.tags.tagsFor(d.ID)
	}
	return &cp
}

func (m *memDecisions) Create(_ context.Context, d *domain.Decision) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.MessageID == d.MessageID {
			return false, nil
		}
	}
	cp := *d
	m.rows[d.ID] = &cp
	return true, nil
}

func (m *memDecisions) ExistsByMessageID(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.MessageID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memDecisions) FindByID(_ context.Context, id string) (*domain.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.rows[id]; ok {
		return m.withTags(d), nil
	}
	return nil, nil
}

func (m *memDecisions) FindVisible(_ context.Context, v domain.Viewer, id string) (*domain.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.rows[id]; ok && visible(v, d) {
		return m.withTags(d), nil
	}
	return nil, nil
}

func (m *memDecisions) FindVisibleByIDs(_ context.Context, v domain.Viewer, ids []string) ([]*domain.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Decision
	for _, id := range ids {
		if d, ok := m.rows[id]; ok && visible(v, d) {
			out = append(out, m.withTags(d))
		}
	}
	return out, nil
}

func (m *memDecisions) FindByToken(_ context.Context, token string) (*domain.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.rows {
		if d.ConfirmationToken == token {
			return m.withTags(d), nil
		}
	}
	return nil, nil
}

func (m *memDecisions) List(_ context.Context, v domain.Viewer, f domain.ListFilter) ([]*domain.Decision, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*domain.Decision
	for _, d := range m.rows {
		if !visible(v, d) || (f.Status != "" && d.Status != f.Status) {
			continue
		}
		all = append(all, m.withTags(d))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	start := f.Offset
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if f.Limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (m *memDecisions) Delete(_ context.Context, v domain.Viewer, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.rows[id]; ok && visible(v, d) {
		delete(m.rows, id)
		return true, nil
	}
	return false, nil
}

func (m *memDecisions) MarkConfirmed(_ context.Context, token string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.rows {
		if d.ConfirmationToken == token && d.Status == domain.StatusPending {
			d.Status = domain.StatusConfirmed
			d.ConfirmedAt = &at
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memDecisions) DeletePending(_ context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.rows {
		if d.ConfirmationToken == token && d.Status == domain.StatusPending {
			delete(m.rows, id)
			return 1, nil
		}
	}
	return 0, nil
}

type memTags struct {
	mu    sync.Mutex
	names map[string]uint
	links map[string]map[uint]bool
}

func newMemTags(existing ...string) *memTags {
	t := &memTags{names: map[string]uint{}, links: map[string]map[uint]bool{}}
	for _, n := range existing {
		t.names[n] = uint(len(t.names) + 1)
	}
	return t
}

func (t *memTags) tagsFor(decisionID string) []domain.Tag {
	var out []domain.Tag
	for name, id := range t.names {
		if t.links[decisionID][id] {
			out = append(out, domain.Tag{ID: id, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *memTags) ListNames(context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for n := range t.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (t *memTags) ListVisible(context.Context, domain.Viewer) ([]domain.TagCount, error) {
	return nil, nil
}

func (t *memTags) Ensure(_ context.Context, names []string) ([]domain.Tag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.Tag
	for _, n := range names {
		id, ok := t.names[n]
		if !ok {
			id = uint(len(t.names) + 1)
			t.names[n] = id
		}
		out = append(out, domain.Tag{ID: id, Name: n})
	}
	return out, nil
}

func (t *memTags) Attach(_ context.Context, decisionID string, ids []uint) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.links[decisionID] == nil {
		t.links[decisionID] = map[uint]bool{}
	}
	for _, id := range ids {
		t.links[decisionID][id] = true
	}
	return nil
}

func (t *memTags) Detach(_ context.Context, decisionID, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.names[name]; ok {
		delete(t.links[decisionID], id)
	}
	return nil
}

func (t *memTags) linkCount(decisionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.links[decisionID])
}

func newMemIndex() *memIndex { return &memIndex{docs: map[string]chroma.Document{}} }

type memIndex struct {
	docs map[string]chroma.Document
}

func (i *memIndex) Upsert(_ context.Context, doc chroma.Document) error {
	i.docs[doc.DecisionID] = doc
	return nil
}

func (i *memIndex) Delete(_ context.Context, id string) error {
	delete(i.docs, id)
	return nil
}
