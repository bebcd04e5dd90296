package repository

import (
	"context"
	"time"

	authdomain "decisionlog-backend/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// fcmTokenRepository implements FCMTokenRepository interface
type fcmTokenRepository struct {
	db *gorm.DB
}

// NewFCMTokenRepository creates a new instance of fcmTokenRepository
func NewFCMTokenRepository(db *gorm.DB) FCMTokenRepository {
	return &fcmTokenRepository{
		db: db,
	}
}

// SaveToken saves or updates an FCM token for a user (atomic upsert)
func (r *fcmTokenRepository) SaveToken(ctx context.Context, userID, token, deviceInfo string) error {
	now := time.Now()
	fcmToken := &authdomain.FCMToken{
		ID:         uuid.New().String(),
		UserID:     userID,
		Token:      token,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// A device that switches accounts moves to the new owner
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "device_info", "updated_at"}),
	}).Create(fcmToken).Error
}

// GetTokensByUserID returns all FCM tokens for a user
func (r *fcmTokenRepository) GetTokensByUserID(ctx context.Context, userID string) ([]authdomain.FCMToken, error) {
	var tokens []authdomain.FCMToken
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteToken removes a token owned by the user
func (r *fcmTokenRepository) DeleteToken(ctx context.Context, userID, token string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&authdomain.FCMToken{}).Error
}

// DeleteTokens removes tokens FCM reported as unregistered
func (r *fcmTokenRepository) DeleteTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("token IN ?", tokens).Delete(&authdomain.FCMToken{}).Error
}
