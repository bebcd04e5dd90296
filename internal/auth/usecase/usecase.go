package usecase

import (
	"context"
	"errors"

	authdomain "decisionlog-backend/internal/auth/domain"
	authdto "decisionlog-backend/internal/auth/dto"
)

var (
	ErrUnknownProvider = errors.New("unknown login provider")
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrUnverifiedEmail = errors.New("email address is not verified")
)

// AuthUsecase defines the business logic for sign-in and sessions
type AuthUsecase interface {
	// AuthCodeURL returns the provider consent URL carrying state
	AuthCodeURL(provider, state string) (string, error)

	// HandleCallback exchanges the code, upserts the user and issues a session token
	HandleCallback(ctx context.Context, provider, code string) (*authdto.SessionResponse, error)

	// ValidateToken parses a session token and loads its user
	ValidateToken(ctx context.Context, token string) (*authdomain.User, error)

	// IssueToken signs a session token for the user
	IssueToken(user *authdomain.User) (*authdto.SessionResponse, error)

	RegisterFCMToken(ctx context.Context, userID string, req *authdto.RegisterFCMRequest) error
	UnregisterFCMToken(ctx context.Context, userID, token string) error
}

// IdentityProvider is an OAuth login provider
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Identify(ctx context.Context, code string) (*authdto.OAuthProfile, error)
}
