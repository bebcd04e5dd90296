package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func newTestMailbox(t *testing.T, handler http.Handler) *Mailbox {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	mb, err := NewMailbox(context.Background(), srv.Client(), 1000, nil, option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return mb
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestListHistoryExpired(t *testing.T) {
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
	}))

	_, _, err := mb.ListHistory(context.Background(), 42, "")
	assert.ErrorIs(t, err, ErrHistoryExpired)
}

func TestListHistoryPagesAndDedups(t *testing.T) {
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/history", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("startHistoryId"))

		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"history": []map[string]any{
					{"messagesAdded": []map[string]any{{"message": map[string]any{"id": "a"}}}},
					{"messagesAdded": []map[string]any{{"message": map[string]any{"id": "b"}}}},
				},
				"historyId":     "150",
				"nextPageToken": "p2",
			})
			return
		}
		writeJSON(w, map[string]any{
			"history": []map[string]any{
				{"messagesAdded": []map[string]any{{"message": map[string]any{"id": "a"}}, {"message": map[string]any{"id": "c"}}}},
			},
			"historyId": "175",
		})
	}))

	ids, latest, err := mb.ListHistory(context.Background(), 100, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, uint64(175), latest)
}

func TestListMessageIDsRespectsLimit(t *testing.T) {
	calls := 0
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "budget after:2025/01/01", r.URL.Query().Get("q"))
		writeJSON(w, map[string]any{
			"messages":      []map[string]any{{"id": "1"}, {"id": "2"}, {"id": "3"}},
			"nextPageToken": "more",
		})
	}))

	ids, err := mb.ListMessageIDs(context.Background(), "budget after:2025/01/01", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, 1, calls)
}

func TestFetchMessagesSkipsFailures(t *testing.T) {
	mb := newTestMailbox(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gmail/v1/users/me/messages/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"id": r.URL.Path[len("/gmail/v1/users/me/messages/"):], "threadId": "t"})
	}))

	msgs, err := mb.FetchMessages(context.Background(), []string{"ok1", "bad", "ok2"}, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "ok1", msgs[0].ID)
	assert.Equal(t, "ok2", msgs[1].ID)
}

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestConvertMessage(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m1",
		ThreadId:     "t1",
		Snippet:      "We&#39;re going with Postgres",
		InternalDate: 1700000000000,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "DB choice"},
				{Name: "From", Value: "Alice Smith <Alice@Example.com>"},
				{Name: "To", Value: "bob@example.com, \"Decisions\" <decisions@example.com>"},
				{Name: "Message-ID", Value: "<abc@mail.example.com>"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>html</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("We decided on Postgres.\n")}},
			},
		},
	}

	got := ConvertMessage(msg)
	assert.Equal(t, "DB choice", got.Subject)
	assert.Equal(t, "alice@example.com", got.From)
	assert.Equal(t, []string{"bob@example.com", "decisions@example.com"}, got.To)
	assert.Equal(t, "abc@mail.example.com", got.MessageID)
	assert.Equal(t, "We decided on Postgres.", got.Body)
	assert.Equal(t, "We're going with Postgres", got.Snippet)
	assert.Equal(t, int64(1700000000), got.InternalDate.Unix())
}

func TestStripHTML(t *testing.T) {
	in := `<html><style>p{color:red}</style><body><p>Ship&nbsp;it</p><script>alert(1)</script></body></html>`
	assert.Equal(t, "Ship it", StripHTML(in))
}

func TestParseAddressesFallback(t *testing.T) {
	assert.Nil(t, ParseAddresses(""))
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, ParseAddresses("a@x.com, Broken <b@y.com"))
}
