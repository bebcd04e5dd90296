package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingHandler struct {
	calls []uint64
	err   error
}

func (r *recordingHandler) HandlePush(_ context.Context, _ string, historyID uint64) error {
	r.calls = append(r.calls, historyID)
	return r.err
}

func TestHandleMessageDedupsByHistoryID(t *testing.T) {
	h := &recordingHandler{}
	s := newService(h, "gmail-push", nil)
	ctx := context.Background()

	assert.True(t, s.HandleMessage(ctx, []byte(`{"emailAddress":"Alice@Gmail.com","historyId":100}`)))
	assert.False(t, s.HandleMessage(ctx, []byte(`{"emailAddress":"alice@gmail.com","historyId":100}`)))
	assert.False(t, s.HandleMessage(ctx, []byte(`{"emailAddress":"alice@gmail.com","historyId":90}`)))
	assert.True(t, s.HandleMessage(ctx, []byte(`{"emailAddress":"alice@gmail.com","historyId":101}`)))
	assert.True(t, s.HandleMessage(ctx, []byte(`{"emailAddress":"bob@gmail.com","historyId":5}`)))
	assert.Equal(t, []uint64{100, 101, 5}, h.calls)
}

func TestHandleMessageIgnoresGarbage(t *testing.T) {
	h := &recordingHandler{}
	s := newService(h, "gmail-push", nil)
	assert.False(t, s.HandleMessage(context.Background(), []byte(`not json`)))
	assert.False(t, s.HandleMessage(context.Background(), []byte(`{"historyId":1}`)))
	assert.Empty(t, h.calls)
}

func TestHandleMessageSurvivesSyncError(t *testing.T) {
	h := &recordingHandler{err: errors.New("boom")}
	s := newService(h, "gmail-push", nil)
	assert.True(t, s.HandleMessage(context.Background(), []byte(`{"emailAddress":"a@gmail.com","historyId":1}`)))
}

func TestTopicID(t *testing.T) {
	assert.Equal(t, "gmail-push", TopicID("projects/acme/topics/gmail-push"))
	assert.Equal(t, "gmail-push", TopicID("gmail-push"))
	assert.Equal(t, "gmail-push-sub", newService(nil, TopicID("projects/acme/topics/gmail-push"), nil).subName)
}
