package usecase

import (
	"context"

	"decisionlog-backend/internal/slackapp/domain"
	slackclient "decisionlog-backend/pkg/slack"
)

// SlackUsecase manages installations and talks to workspaces as the bot
type SlackUsecase interface {
	InstallURL(state string) string
	CompleteInstall(ctx context.Context, userID, code string) (*domain.Installation, error)
	PostConfirmation(ctx context.Context, teamID, channelID, userID, summary, token string) error
	PostText(ctx context.Context, teamID, channelID, userID, text string) error
	// UserEmail resolves a workspace member to a profile email
	UserEmail(ctx context.Context, teamID, userID string) (string, error)
}

// Bot is the Web API surface used per workspace
type Bot interface {
	PostConfirmation(ctx context.Context, channelID, userID, summary, token string) error
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
	UserEmail(ctx context.Context, userID string) (string, error)
}

// TokenBox encrypts bot tokens at rest
type TokenBox interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// ExchangeFunc completes the OAuth install
type ExchangeFunc func(ctx context.Context, clientID, clientSecret, code, redirectURI string) (*slackclient.Installation, error)
