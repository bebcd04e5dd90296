package domain

import "time"

const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

type User struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	Email           string    `json:"email" gorm:"uniqueIndex;not null"`
	Name            string    `json:"name"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	Provider        string    `json:"provider"` // "google" or "microsoft"
	ProviderSubject string    `json:"-" gorm:"index"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Gmail connection, independent of the login provider
	GmailEmail        string     `json:"gmail_email,omitempty" gorm:"index"`
	GmailRefreshToken string     `json:"-" gorm:"type:text"` // AES-256-GCM ciphertext
	GmailConnectedAt  *time.Time `json:"gmail_connected_at,omitempty"`
}

// GmailConnected reports whether a Gmail refresh token is stored.
func (u *User) GmailConnected() bool {
	return u != nil && u.GmailRefreshToken != ""
}
