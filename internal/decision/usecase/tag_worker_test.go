package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedSuggester struct {
	tags []string
	err  error
}

func (s fixedSuggester) SuggestTags(context.Context, string, []string) ([]string, error) {
	return s.tags, s.err
}

func TestTagWorkerAttachesResolvedTags(t *testing.T) {
	tags := newMemTags("infrastructure")
	w := NewTagWorkerService(tags, fixedSuggester{tags: []string{"Infrastructur", "database"}}, 2, nil)
	w.Start()

	assert.True(t, w.QueueJob(TagJob{DecisionID: "d1", Summary: "Move to managed Postgres"}))
	assert.True(t, w.QueueJob(TagJob{DecisionID: "d1", Summary: "Move to managed Postgres"}))
	w.Stop()

	got := tags.tagsFor("d1")
	names := make([]string, 0, len(got))
	for _, tg := range got {
		names = append(names, tg.Name)
	}
	assert.Equal(t, []string{"database", "infrastructure"}, names)
	assert.False(t, w.QueueJob(TagJob{DecisionID: "d2"}), "queue is closed after Stop")
}

func TestTagWorkerIgnoresSuggesterErrors(t *testing.T) {
	tags := newMemTags()
	w := NewTagWorkerService(tags, fixedSuggester{err: errors.New("quota")}, 1, nil)
	w.Start()
	w.QueueJob(TagJob{DecisionID: "d1"})
	w.Stop()

	assert.Equal(t, 0, tags.linkCount("d1"))
}
