package mailer

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// InboundEmail is a SendGrid Inbound Parse post reduced to what decision
// extraction needs. Addresses are lower-cased.
type InboundEmail struct {
	From       string
	To         []string
	Cc         []string
	Subject    string
	Text       string
	MessageID  string
	InReplyTo  string
	References []string
}

// Form is the subset of a multipart form SendGrid posts.
type Form interface {
	PostForm(key string) string
}

// ParseInbound reads the from, to, cc, subject, text and headers fields.
// Header values win over the envelope fields when both are present.
func ParseInbound(f Form) (*InboundEmail, error) {
	in := &InboundEmail{
		From:    firstAddress(f.PostForm("from")),
		To:      addressList(f.PostForm("to")),
		Cc:      addressList(f.PostForm("cc")),
		Subject: strings.TrimSpace(f.PostForm("subject")),
		Text:    strings.TrimSpace(f.PostForm("text")),
	}

	if raw := f.PostForm("headers"); raw != "" {
		h, err := parseHeaderBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("parse inbound headers: %w", err)
		}
		if id, err := h.MessageID(); err == nil {
			in.MessageID = id
		}
		if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
			in.InReplyTo = ids[0]
		}
		if ids, err := h.MsgIDList("References"); err == nil {
			in.References = ids
		}
		if in.Subject == "" {
			if s, err := h.Subject(); err == nil {
				in.Subject = s
			}
		}
		if len(in.Cc) == 0 {
			if list, err := h.AddressList("Cc"); err == nil {
				for _, a := range list {
					in.Cc = append(in.Cc, strings.ToLower(a.Address))
				}
			}
		}
	}

	if in.From == "" {
		return nil, fmt.Errorf("inbound email has no sender")
	}
	return in, nil
}

func parseHeaderBlock(raw string) (*mail.Header, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimRight(raw, "\n") + "\n\n"
	th, err := textproto.ReadHeader(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		return nil, err
	}
	return &mail.Header{Header: message.Header{Header: th}}, nil
}

func addressList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	list, err := mail.ParseAddressList(s)
	if err != nil {
		var out []string
		for _, p := range strings.Split(s, ",") {
			if a := firstAddress(p); a != "" {
				out = append(out, a)
			}
		}
		return out
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, strings.ToLower(a.Address))
	}
	return out
}

func firstAddress(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if list, err := mail.ParseAddressList(s); err == nil && len(list) > 0 {
		return strings.ToLower(list[0].Address)
	}
	if i := strings.Index(s, "<"); i >= 0 {
		s = strings.TrimSuffix(s[i+1:], ">")
	}
	return strings.ToLower(strings.TrimSpace(s))
}
