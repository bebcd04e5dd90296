package usecase

import (
	"context"
	"testing"
	"time"

	authdomain "decisionlog-backend/internal/auth/domain"
	authdto "decisionlog-backend/internal/auth/dto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	byID map[string]*authdomain.User
}

func newMemUsers() *memUsers { return &memUsers{byID: map[string]*authdomain.User{}} }

func (m *memUsers) Create(_ context.Context, u *authdomain.User) error {
	if u.ID == "" {
		u.ID = "u" + string(rune('0'+len(m.byID)+1))
	}
	m.byID[u.ID] = u
	return nil
}
func (m *memUsers) FindByID(_ context.Context, id string) (*authdomain.User, error) {
	return m.byID[id], nil
}
func (m *memUsers) FindByEmail(_ context.Context, email string) (*authdomain.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}
func (m *memUsers) FindByGmailEmail(context.Context, string) (*authdomain.User, error) {
	return nil, nil
}
func (m *memUsers) Update(_ context.Context, u *authdomain.User) error {
	m.byID[u.ID] = u
	return nil
}
func (m *memUsers) SetGmailToken(context.Context, string, string, string) error { return nil }
func (m *memUsers) ClearGmailToken(context.Context, string) error               { return nil }
func (m *memUsers) ListGmailConnected(context.Context) ([]*authdomain.User, error) {
	return nil, nil
}

type stubProvider struct {
	profile *authdto.OAuthProfile
}

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://login.example.com/authorize?state=" + state
}
func (p *stubProvider) Identify(context.Context, string) (*authdto.OAuthProfile, error) {
	return p.profile, nil
}

func newTestUsecase(users *memUsers) *authUsecase {
	uc := NewAuthUsecase(users, nil, map[string]IdentityProvider{
		"google": &stubProvider{profile: &authdto.OAuthProfile{
			Provider: "google", Subject: "sub-1", Email: "alice@example.com", Name: "Alice",
		}},
	}, "test-secret", time.Hour).(*authUsecase)
	return uc
}

func TestHandleCallbackCreatesThenUpdatesUser(t *testing.T) {
	users := newMemUsers()
	uc := newTestUsecase(users)

	first, err := uc.HandleCallback(context.Background(), "google", "code")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", first.User.Email)
	assert.NotEmpty(t, first.Token)

	second, err := uc.HandleCallback(context.Background(), "google", "code")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Len(t, users.byID, 1)
}

func TestHandleCallbackUnknownProvider(t *testing.T) {
	uc := newTestUsecase(newMemUsers())
	_, err := uc.HandleCallback(context.Background(), "github", "code")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = uc.AuthCodeURL("github", "s")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	users := newMemUsers()
	uc := newTestUsecase(users)

	session, err := uc.HandleCallback(context.Background(), "google", "code")
	require.NoError(t, err)

	user, err := uc.ValidateToken(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, user.ID)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	users := newMemUsers()
	uc := newTestUsecase(users)
	require.NoError(t, users.Create(context.Background(), &authdomain.User{ID: "u1", Email: "a@example.com"}))

	uc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	session, err := uc.IssueToken(users.byID["u1"])
	require.NoError(t, err)

	uc.now = time.Now
	_, err = uc.ValidateToken(context.Background(), session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsOtherSecretAndAlg(t *testing.T) {
	users := newMemUsers()
	uc := newTestUsecase(users)
	require.NoError(t, users.Create(context.Background(), &authdomain.User{ID: "u1", Email: "a@example.com"}))

	claims := jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(time.Hour).Unix()}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
	require.NoError(t, err)
	_, err = uc.ValidateToken(context.Background(), forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = uc.ValidateToken(context.Background(), none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenDeletedUser(t *testing.T) {
	users := newMemUsers()
	uc := newTestUsecase(users)
	session, err := uc.IssueToken(&authdomain.User{ID: "gone", Email: "x@example.com"})
	require.NoError(t, err)

	_, err = uc.ValidateToken(context.Background(), session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
