package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"

	"decisionlog-backend/internal/decision/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = domain.Viewer{UserID: "u1", Email: "alice@example.com"}

func seed(t *testing.T, repo *memDecisions, id, token string) {
	t.Helper()
	_, err := repo.Create(context.Background(), &domain.Decision{
		ID:                id,
		UserID:            "u1",
		CreatedByEmail:    "alice@example.com",
		Summary:           "Adopt Postgres for search",
		Topic:             "database",
		Status:            domain.StatusPending,
		ConfirmationToken: token,
		MessageID:         "msg-" + id,
	})
	require.NoError(t, err)
}

func newUsecase(repo *memDecisions, tags *memTags, index SemanticIndex) *decisionUsecase {
	return NewDecisionUsecase(repo, tags, index, nil).(*decisionUsecase)
}

func TestConfirmIsIdempotent(t *testing.T) {
	tags := newMemTags()
	repo := newMemDecisions(tags)
	index := newMemIndex()
	seed(t, repo, "d1", "tok")
	uc := newUsecase(repo, tags, index)

	d, outcome, err := uc.Confirm(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmed, outcome)
	assert.Equal(t, domain.StatusConfirmed, d.Status)
	require.NotNil(t, d.ConfirmedAt)
	firstConfirmedAt := *d.ConfirmedAt
	assert.Contains(t, index.docs, "d1")

	d, outcome, err = uc.Confirm(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyConfirmed, outcome)
	assert.Equal(t, firstConfirmedAt, *d.ConfirmedAt)
}

func TestConfirmUnknownToken(t *testing.T) {
	uc := newUsecase(newMemDecisions(nil), newMemTags(), nil)

	_, _, err := uc.Confirm(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = uc.Confirm(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRejectOnlyPending(t *testing.T) {
	repo := newMemDecisions(nil)
	seed(t, repo, "d1", "tok1")
	seed(t, repo, "d2", "tok2")
	uc := newUsecase(repo, newMemTags(), nil)

	outcome, err := uc.Reject(context.Background(), "tok1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, outcome)
	assert.NotContains(t, repo.rows, "d1")

	_, err = uc.Reject(context.Background(), "tok1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = uc.Confirm(context.Background(), "tok2")
	require.NoError(t, err)
	outcome, err = uc.Reject(context.Background(), "tok2")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyConfirmed, outcome)
	assert.Contains(t, repo.rows, "d2")
}

func TestGetRespectsVisibility(t *testing.T) {
	repo := newMemDecisions(nil)
	seed(t, repo, "d1", "tok")
	uc := newUsecase(repo, newMemTags(), nil)

	_, err := uc.Get(context.Background(), domain.Viewer{UserID: "u2", Email: "mallory@example.com"}, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	d, err := uc.Get(context.Background(), domain.Viewer{UserID: "other", Email: "ALICE@example.com"}, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", d.ID)

	assert.ErrorIs(t, uc.Delete(context.Background(), domain.Viewer{UserID: "u2"}, "d1"), domain.ErrNotFound)
	require.NoError(t, uc.Delete(context.Background(), owner, "d1"))
}

func TestAddTagsIsIdempotent(t *testing.T) {
	tags := newMemTags("budget")
	repo := newMemDecisions(tags)
	seed(t, repo, "d1", "tok")
	uc := newUsecase(repo, tags, nil)

	d, err := uc.AddTags(context.Background(), owner, "d1", []string{"Budget", "Q3 Planning"})
	require.NoError(t, err)
	assert.Equal(t, []string{"budget", "q3-planning"}, d.TagNames())

	d, err = uc.AddTags(context.Background(), owner, "d1", []string{"budgte", "q3-planning"})
	require.NoError(t, err)
	assert.Equal(t, []string{"budget", "q3-planning"}, d.TagNames())
	assert.Equal(t, 2, tags.linkCount("d1"))

	require.NoError(t, uc.RemoveTag(context.Background(), owner, "d1", "Budget"))
	assert.Equal(t, 1, tags.linkCount("d1"))
}

func TestResolveTags(t *testing.T) {
	got := ResolveTags([]string{"#Hiring", "hirng", "ux", "ui", ""}, []string{"hiring"})
	assert.Equal(t, []string{"hiring", "ux", "ui"}, got)
}

func TestExportCSV(t *testing.T) {
	repo := newMemDecisions(nil)
	for _, id := range []string{"d1", "d2", "d3"} {
		seed(t, repo, id, "tok-"+id)
	}
	uc := newUsecase(repo, newMemTags(), nil)

	var buf bytes.Buffer
	require.NoError(t, uc.Export(context.Background(), owner, domain.ListFilter{}, FormatCSV, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "Adopt Postgres for search", records[1][2])
}

func TestExportJSON(t *testing.T) {
	repo := newMemDecisions(nil)
	seed(t, repo, "d1", "tok1")
	seed(t, repo, "d2", "tok2")
	uc := newUsecase(repo, newMemTags(), nil)

	var buf bytes.Buffer
	require.NoError(t, uc.Export(context.Background(), owner, domain.ListFilter{}, FormatJSON, &buf))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Len(t, out, 2)
	assert.NotContains(t, out[0], "confirmation_token")

	buf.Reset()
	require.NoError(t, uc.Export(context.Background(), domain.Viewer{UserID: "nobody"}, domain.ListFilter{}, FormatJSON, &buf))
	assert.Equal(t, "[]\n", buf.String())
}

func TestParseExportFormat(t *testing.T) {
	f, err := ParseExportFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseExportFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseExportFormat("xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
