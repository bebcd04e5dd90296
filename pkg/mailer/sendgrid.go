package mailer

import (
	"context"
	"fmt"
	"strings"

	sg "github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Reply is an outbound message, usually an answer within an existing thread.
type Reply struct {
	To         string
	Subject    string
	Text       string
	HTML       string
	InReplyTo  string
	References []string
}

// Client sends mail through the SendGrid v3 API.
type Client struct {
	client *sg.Client
	from   *sgmail.Email
	log    *zap.Logger
}

func NewClient(apiKey, fromEmail, fromName string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		client: sg.NewSendClient(apiKey),
		from:   sgmail.NewEmail(fromName, fromEmail),
		log:    log.Named("sendgrid"),
	}
}

// Send delivers r. Threading headers are set so mail clients group the reply
// with the original message.
func (c *Client) Send(ctx context.Context, r Reply) error {
	msg := sgmail.NewSingleEmail(c.from, ReplySubject(r.Subject, r.InReplyTo != ""), sgmail.NewEmail("", r.To), r.Text, r.HTML)
	if r.InReplyTo != "" {
		id := "<" + strings.Trim(r.InReplyTo, "<>") + ">"
		msg.SetHeader("In-Reply-To", id)

		refs := make([]string, 0, len(r.References)+1)
		for _, ref := range r.References {
			refs = append(refs, "<"+strings.Trim(ref, "<>")+">")
		}
		refs = append(refs, id)
		msg.SetHeader("References", strings.Join(refs, " "))
	}

	resp, err := c.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	c.log.Debug("mail sent", zap.String("to", r.To), zap.Int("status", resp.StatusCode))
	return nil
}

// ReplySubject prefixes "Re: " once for threaded replies.
func ReplySubject(subject string, threaded bool) string {
	subject = strings.TrimSpace(subject)
	if !threaded {
		return subject
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
