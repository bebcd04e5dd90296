package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	authdomain "decisionlog-backend/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// userRepository implements UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new instance of userRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) Create(ctx context.Context, user *authdomain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) first(ctx context.Context, query string, args ...interface{}) (*authdomain.User, error) {
	var user authdomain.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*authdomain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*authdomain.User, error) {
	return r.first(ctx, "lower(email) = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepository) FindByGmailEmail(ctx context.Context, email string) (*authdomain.User, error) {
	return r.first(ctx, "lower(gmail_email) = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepository) Update(ctx context.Context, user *authdomain.User) error {
	user.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepository) SetGmailToken(ctx context.Context, userID, gmailEmail, encryptedToken string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&authdomain.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"gmail_email":         strings.ToLower(gmailEmail),
			"gmail_refresh_token": encryptedToken,
			"gmail_connected_at":  now,
			"updated_at":          now,
		}).Error
}

func (r *userRepository) ClearGmailToken(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Model(&authdomain.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"gmail_email":         "",
			"gmail_refresh_token": "",
			"gmail_connected_at":  nil,
			"updated_at":          time.Now(),
		}).Error
}

func (r *userRepository) ListGmailConnected(ctx context.Context) ([]*authdomain.User, error) {
	var users []*authdomain.User
	err := r.db.WithContext(ctx).
		Where("gmail_refresh_token <> ''").
		Order("created_at ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
