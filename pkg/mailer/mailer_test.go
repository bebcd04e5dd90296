package mailer

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type formValues url.Values

func (f formValues) PostForm(key string) string { return url.Values(f).Get(key) }

func TestParseInbound(t *testing.T) {
	form := formValues{
		"from":    {"Alice Smith <Alice@Example.com>"},
		"to":      {"bob@example.com, Decisions <decisions@example.com>"},
		"subject": {"Vendor choice"},
		"text":    {"  We will go with Acme.  "},
		"headers": {"Message-ID: <m1@example.com>\r\nIn-Reply-To: <m0@example.com>\r\nReferences: <r1@example.com> <m0@example.com>\r\nCc: Carol <carol@example.com>\r\n"},
	}

	in, err := ParseInbound(form)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", in.From)
	assert.Equal(t, []string{"bob@example.com", "decisions@example.com"}, in.To)
	assert.Equal(t, []string{"carol@example.com"}, in.Cc)
	assert.Equal(t, "We will go with Acme.", in.Text)
	assert.Equal(t, "m1@example.com", in.MessageID)
	assert.Equal(t, "m0@example.com", in.InReplyTo)
	assert.Equal(t, []string{"r1@example.com", "m0@example.com"}, in.References)
}

func TestParseInboundRequiresSender(t *testing.T) {
	_, err := ParseInbound(formValues{"to": {"decisions@example.com"}})
	assert.Error(t, err)
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Budget", ReplySubject("Budget", true))
	assert.Equal(t, "RE: Budget", ReplySubject("RE: Budget", true))
	assert.Equal(t, "Budget", ReplySubject(" Budget ", false))
}
