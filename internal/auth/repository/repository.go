package repository

import (
	"context"

	authdomain "decisionlog-backend/internal/auth/domain"
)

// UserRepository defines persistence for accounts
type UserRepository interface {
	// Create inserts a user, assigning an ID when empty
	Create(ctx context.Context, user *authdomain.User) error
	FindByID(ctx context.Context, id string) (*authdomain.User, error)
	// FindByEmail matches case-insensitively
	FindByEmail(ctx context.Context, email string) (*authdomain.User, error)
	// FindByGmailEmail finds the account that connected the given mailbox
	FindByGmailEmail(ctx context.Context, email string) (*authdomain.User, error)
	Update(ctx context.Context, user *authdomain.User) error
	SetGmailToken(ctx context.Context, userID, gmailEmail, encryptedToken string) error
	ClearGmailToken(ctx context.Context, userID string) error
	// ListGmailConnected returns every user with a stored Gmail token
	ListGmailConnected(ctx context.Context) ([]*authdomain.User, error)
}

// FCMTokenRepository defines the interface for FCM token operations
type FCMTokenRepository interface {
	SaveToken(ctx context.Context, userID, token, deviceInfo string) error
	GetTokensByUserID(ctx context.Context, userID string) ([]authdomain.FCMToken, error)
	DeleteToken(ctx context.Context, userID, token string) error
	DeleteTokens(ctx context.Context, tokens []string) error
}
