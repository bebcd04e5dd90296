package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	authdomain "decisionlog-backend/internal/auth/domain"
	authdto "decisionlog-backend/internal/auth/dto"
	"decisionlog-backend/internal/auth/repository"

	"github.com/golang-jwt/jwt/v5"
)

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo  repository.UserRepository
	fcmRepo   repository.FCMTokenRepository
	providers map[string]IdentityProvider
	secret    []byte
	expiry    time.Duration
	now       func() time.Time
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(
	userRepo repository.UserRepository,
	fcmRepo repository.FCMTokenRepository,
	providers map[string]IdentityProvider,
	jwtSecret string,
	expiry time.Duration,
) AuthUsecase {
	return &authUsecase{
		userRepo:  userRepo,
		fcmRepo:   fcmRepo,
		providers: providers,
		secret:    []byte(jwtSecret),
		expiry:    expiry,
		now:       time.Now,
	}
}

func (u *authUsecase) provider(name string) (IdentityProvider, error) {
	p, ok := u.providers[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

func (u *authUsecase) AuthCodeURL(provider, state string) (string, error) {
	p, err := u.provider(provider)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

func (u *authUsecase) HandleCallback(ctx context.Context, provider, code string) (*authdto.SessionResponse, error) {
	p, err := u.provider(provider)
	if err != nil {
		return nil, err
	}

	profile, err := p.Identify(ctx, code)
	if err != nil {
		return nil, err
	}
	if profile.Email == "" {
		return nil, errors.New("provider did not return an email address")
	}

	user, err := u.userRepo.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = &authdomain.User{
			Email:           strings.ToLower(profile.Email),
			Name:            profile.Name,
			AvatarURL:       profile.AvatarURL,
			Provider:        profile.Provider,
			ProviderSubject: profile.Subject,
		}
		if err := u.userRepo.Create(ctx, user); err != nil {
			return nil, err
		}
	} else {
		if profile.Name != "" {
			user.Name = profile.Name
		}
		if profile.AvatarURL != "" {
			user.AvatarURL = profile.AvatarURL
		}
		user.Provider = profile.Provider
		user.ProviderSubject = profile.Subject
		if err := u.userRepo.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	return u.IssueToken(user)
}

func (u *authUsecase) IssueToken(user *authdomain.User) (*authdto.SessionResponse, error) {
	now := u.now()
	expiresAt := now.Add(u.expiry)
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(u.secret)
	if err != nil {
		return nil, err
	}

	return &authdto.SessionResponse{
		Token:     signed,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

func (u *authUsecase) ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(u.now))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, ErrInvalidToken
	}

	return user, nil
}

func (u *authUsecase) RegisterFCMToken(ctx context.Context, userID string, req *authdto.RegisterFCMRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return errors.New("token is required")
	}
	return u.fcmRepo.SaveToken(ctx, userID, token, req.DeviceInfo)
}

func (u *authUsecase) UnregisterFCMToken(ctx context.Context, userID, token string) error {
	return u.fcmRepo.DeleteToken(ctx, userID, token)
}
