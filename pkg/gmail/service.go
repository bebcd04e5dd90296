package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrHistoryExpired is returned by ListHistory when Gmail no longer keeps
// history for the requested start id (HTTP 404).
var ErrHistoryExpired = errors.New("gmail history expired")

// TokenUpdateFunc is called with the new token whenever the access token is refreshed.
type TokenUpdateFunc func(*oauth2.Token) error

const user = "me"

type Service struct {
	clientID     string
	clientSecret string
	redirectURI  string
	log          *zap.Logger
	// requests per second per mailbox
	rps float64
}

func NewService(clientID, clientSecret, redirectURI string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		log:          log.Named("gmail"),
		rps:          10,
	}
}

// OAuthConfig is the offline, read-only Gmail consent configuration.
func (s *Service) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		RedirectURL:  s.redirectURI,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			"https://www.googleapis.com/auth/userinfo.email",
		},
	}
}

// AuthCodeURL asks for a refresh token on every consent.
func (s *Service) AuthCodeURL(state string) string {
	return s.OAuthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.OAuthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("gmail code exchange: %w", err)
	}
	return tok, nil
}

type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
	log      *zap.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil && (s.current == nil || s.current.AccessToken != t.AccessToken) {
		s.current = t
		if err := s.callback(t); err != nil {
			s.log.Warn("failed to persist refreshed token", zap.Error(err))
		}
	}
	return t, nil
}

// Open returns a Mailbox authorized by refreshToken.
func (s *Service) Open(ctx context.Context, refreshToken string, onTokenRefresh TokenUpdateFunc) (*Mailbox, error) {
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now(),
	}

	wrapped := &notifyTokenSource{
		src:      s.OAuthConfig().TokenSource(ctx, token),
		callback: onTokenRefresh,
		log:      s.log,
	}
	client := oauth2.NewClient(ctx, wrapped)
	client.Timeout = 30 * time.Second

	return NewMailbox(ctx, client, s.rps, s.log)
}

// Mailbox is one user's Gmail API session.
type Mailbox struct {
	srv     *gmail.Service
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewMailbox wraps an authorized HTTP client. Options let tests point the
// client at a fake endpoint.
func NewMailbox(ctx context.Context, client *http.Client, rps float64, log *zap.Logger, opts ...option.ClientOption) (*Mailbox, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	if rps <= 0 {
		rps = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailbox{
		srv:     srv,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
		log:     log,
	}, nil
}

// Message is the subset of a Gmail message the service stores.
type Message struct {
	ID           string
	ThreadID     string
	HistoryID    uint64
	LabelIDs     []string
	Snippet      string
	Subject      string
	From         string
	To           []string
	Cc           []string
	MessageID    string
	InReplyTo    string
	Body         string
	InternalDate time.Time
}

func (m *Mailbox) wait(ctx context.Context) error {
	return m.limiter.Wait(ctx)
}

// Profile returns the mailbox address and its current history id.
func (m *Mailbox) Profile(ctx context.Context) (string, uint64, error) {
	if err := m.wait(ctx); err != nil {
		return "", 0, err
	}
	p, err := m.srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("get profile: %w", err)
	}
	return p.EmailAddress, p.HistoryId, nil
}

// ListMessageIDs pages through messages.list for query and labels, stopping at limit (0 = no limit).
func (m *Mailbox) ListMessageIDs(ctx context.Context, query string, labelIDs []string, limit int) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		if err := m.wait(ctx); err != nil {
			return ids, err
		}
		call := m.srv.Users.Messages.List(user).Context(ctx).MaxResults(500)
		if query != "" {
			call = call.Q(query)
		}
		if len(labelIDs) > 0 {
			call = call.LabelIds(labelIDs...)
		}
		if limit > 0 && limit-len(ids) < 500 {
			call = call.MaxResults(int64(limit - len(ids)))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return ids, fmt.Errorf("list messages: %w", err)
		}
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || (limit > 0 && len(ids) >= limit) {
			return ids, nil
		}
	}
}

// GetMessage fetches a full message.
func (m *Mailbox) GetMessage(ctx context.Context, id string) (*Message, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	msg, err := m.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return ConvertMessage(msg), nil
}

// FetchMessages fetches ids with bounded parallelism. Messages that fail to
// load are logged and left out; the error is only set on context cancellation.
func (m *Mailbox) FetchMessages(ctx context.Context, ids []string, concurrency int) ([]*Message, error) {
	if concurrency <= 0 {
		concurrency = 5
	}
	results := make([]*Message, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			msg, err := m.GetMessage(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				m.log.Warn("skipping message", zap.String("message_id", id), zap.Error(err))
				return nil
			}
			results[i] = msg
			return nil
		})
	}
	err := g.Wait()

	out := make([]*Message, 0, len(results))
	for _, msg := range results {
		if msg != nil {
			out = append(out, msg)
		}
	}
	return out, err
}

// ListHistory replays messageAdded events after startHistoryID. It returns
// the added message ids (deduplicated, in event order) and the latest
// history id reported by Gmail.
func (m *Mailbox) ListHistory(ctx context.Context, startHistoryID uint64, labelID string) ([]string, uint64, error) {
	var ids []string
	seen := make(map[string]bool)
	latest := startHistoryID
	pageToken := ""

	for {
		if err := m.wait(ctx); err != nil {
			return nil, 0, err
		}
		call := m.srv.Users.History.List(user).
			StartHistoryId(startHistoryID).
			HistoryTypes("messageAdded").
			Context(ctx)
		if labelID != "" {
			call = call.LabelId(labelID)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			if IsNotFound(err) {
				return nil, 0, ErrHistoryExpired
			}
			return nil, 0, fmt.Errorf("list history: %w", err)
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				ids = append(ids, added.Message.Id)
			}
		}
		if resp.HistoryId > latest {
			latest = resp.HistoryId
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return ids, latest, nil
		}
	}
}

// Watch registers push notifications to a Pub/Sub topic.
func (m *Mailbox) Watch(ctx context.Context, topicName string, labelIDs []string) (uint64, time.Time, error) {
	req := &gmail.WatchRequest{
		TopicName:           topicName,
		LabelIds:            labelIDs,
		LabelFilterBehavior: "include",
	}
	resp, err := m.srv.Users.Watch(user, req).Context(ctx).Do()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("watch mailbox: %w", err)
	}
	return resp.HistoryId, time.UnixMilli(resp.Expiration), nil
}

// Stop cancels push notifications.
func (m *Mailbox) Stop(ctx context.Context) error {
	return m.srv.Users.Stop(user).Context(ctx).Do()
}

// IsNotFound reports whether err is a Google API 404.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// ConvertMessage flattens a Gmail API message.
func ConvertMessage(msg *gmail.Message) *Message {
	out := &Message{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		HistoryID:    msg.HistoryId,
		LabelIDs:     msg.LabelIds,
		Snippet:      html.UnescapeString(msg.Snippet),
		InternalDate: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		return out
	}

	headers := msg.Payload.Headers
	out.Subject = getHeader(headers, "Subject")
	out.From = firstAddress(getHeader(headers, "From"))
	out.To = ParseAddresses(getHeader(headers, "To"))
	out.Cc = ParseAddresses(getHeader(headers, "Cc"))
	out.MessageID = strings.Trim(getHeader(headers, "Message-ID"), "<> ")
	out.InReplyTo = strings.Trim(getHeader(headers, "In-Reply-To"), "<> ")
	out.Body = extractBody(msg.Payload)
	return out
}

// ParseAddresses returns lower-cased bare addresses from a header value.
// Unparseable headers fall back to comma splitting.
func ParseAddresses(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	list, err := mail.ParseAddressList(header)
	if err != nil {
		var out []string
		for _, part := range strings.Split(header, ",") {
			if a := firstAddress(part); a != "" {
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

func firstAddress(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if list, err := mail.ParseAddressList(header); err == nil && len(list) > 0 {
		return strings.ToLower(list[0].Address)
	}
	if i := strings.Index(header, "<"); i >= 0 {
		if j := strings.LastIndex(header, ">"); j > i {
			header = header[i+1 : j]
		} else {
			header = header[i+1:]
		}
	}
	return strings.ToLower(strings.TrimSpace(header))
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// extractBody prefers text/plain and falls back to tag-stripped text/html.
func extractBody(payload *gmail.MessagePart) string {
	var plain, htmlBody string

	var walk func(p *gmail.MessagePart)
	walk = func(p *gmail.MessagePart) {
		if p == nil {
			return
		}
		if p.Body != nil && p.Body.Data != "" && p.Filename == "" {
			if data, err := decodePart(p.Body.Data); err == nil {
				switch {
				case strings.HasPrefix(p.MimeType, "text/plain") && plain == "":
					plain = data
				case strings.HasPrefix(p.MimeType, "text/html") && htmlBody == "":
					htmlBody = data
				}
			}
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(payload)

	if plain != "" {
		return strings.TrimSpace(plain)
	}
	return StripHTML(htmlBody)
}

func decodePart(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
	}
	return string(b), err
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML reduces an HTML body to whitespace-collapsed text.
func StripHTML(s string) string {
	s = scriptRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
