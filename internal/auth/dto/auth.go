package dto

import (
	"time"

	authdomain "decisionlog-backend/internal/auth/domain"
)

// OAuthProfile is the identity returned by a login provider.
type OAuthProfile struct {
	Provider  string
	Subject   string
	Email     string
	Name      string
	AvatarURL string
}

type SessionResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *authdomain.User `json:"user"`
}

type MeResponse struct {
	User           *authdomain.User `json:"user"`
	GmailConnected bool             `json:"gmail_connected"`
}

type RegisterFCMRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}
