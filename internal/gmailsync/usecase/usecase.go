package usecase

import (
	"context"
	"time"

	"decisionlog-backend/internal/gmailsync/domain"
	inbounddomain "decisionlog-backend/internal/inbound/domain"
	"decisionlog-backend/pkg/gmail"

	"golang.org/x/oauth2"
)

// Usecase defines Gmail connection and synchronization
type Usecase interface {
	// ConnectURL returns the Gmail consent URL
	ConnectURL(state string) string
	// CompleteConnect stores the encrypted refresh token for the user
	CompleteConnect(ctx context.Context, userID, code string) (*Status, error)
	Status(ctx context.Context, userID string) (*Status, error)
	UpdateSettings(ctx context.Context, userID string, settings domain.Settings) (*domain.SyncState, error)
	Disconnect(ctx context.Context, userID string) error

	// Sync runs one full or incremental pass; ErrSyncInProgress when locked
	Sync(ctx context.Context, userID string, mode domain.SyncMode) (*domain.SyncResult, error)
	// SyncAll syncs every connected mailbox and returns how many ran
	SyncAll(ctx context.Context) int
	// HandlePush reacts to a Gmail push notification for a mailbox address
	HandlePush(ctx context.Context, emailAddress string, historyID uint64) error

	// OpenMailbox returns an authorized mailbox or ErrNotConnected
	OpenMailbox(ctx context.Context, userID string) (Mailbox, error)
	// StoreMessages mirrors fetched messages, returning how many were written
	StoreMessages(ctx context.Context, userID string, msgs []*gmail.Message) (int, error)
}

// Status is the connection and sync state shown to the user
type Status struct {
	Connected  bool              `json:"connected"`
	GmailEmail string            `json:"gmail_email,omitempty"`
	State      *domain.SyncState `json:"state,omitempty"`
}

// Mailbox is the Gmail API surface used by sync and search
type Mailbox interface {
	Profile(ctx context.Context) (string, uint64, error)
	ListMessageIDs(ctx context.Context, query string, labelIDs []string, limit int) ([]string, error)
	FetchMessages(ctx context.Context, ids []string, concurrency int) ([]*gmail.Message, error)
	ListHistory(ctx context.Context, startHistoryID uint64, labelID string) ([]string, uint64, error)
	Watch(ctx context.Context, topicName string, labelIDs []string) (uint64, time.Time, error)
}

// MailboxProvider performs the Gmail OAuth exchange and opens mailboxes
type MailboxProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Open(ctx context.Context, refreshToken string, onRefresh gmail.TokenUpdateFunc) (Mailbox, error)
}

// DecisionIngester runs synced mail through decision extraction
type DecisionIngester interface {
	Ingest(ctx context.Context, msg *inbounddomain.Message) (*inbounddomain.Result, error)
}

// TokenBox encrypts stored refresh tokens
type TokenBox interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type gmailProvider struct {
	svc *gmail.Service
}

// NewMailboxProvider adapts the Gmail client to MailboxProvider.
func NewMailboxProvider(svc *gmail.Service) MailboxProvider {
	return &gmailProvider{svc: svc}
}

func (p *gmailProvider) AuthCodeURL(state string) string { return p.svc.AuthCodeURL(state) }

func (p *gmailProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.svc.Exchange(ctx, code)
}

func (p *gmailProvider) Open(ctx context.Context, refreshToken string, onRefresh gmail.TokenUpdateFunc) (Mailbox, error) {
	return p.svc.Open(ctx, refreshToken, onRefresh)
}
