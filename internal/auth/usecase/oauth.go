package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	authdomain "decisionlog-backend/internal/auth/domain"
	authdto "decisionlog-backend/internal/auth/dto"
	"decisionlog-backend/pkg/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const microsoftGraphMe = "https://graph.microsoft.com/v1.0/me"

// NewIdentityProviders builds the login providers that have credentials configured.
func NewIdentityProviders(cfg *config.Config) map[string]IdentityProvider {
	providers := make(map[string]IdentityProvider)
	if cfg.GoogleClientID != "" {
		providers[authdomain.ProviderGoogle] = &googleProvider{config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", oauth2api.UserinfoEmailScope, oauth2api.UserinfoProfileScope},
		}}
	}
	if cfg.MicrosoftClientID != "" {
		providers[authdomain.ProviderMicrosoft] = &microsoftProvider{
			config: &oauth2.Config{
				ClientID:     cfg.MicrosoftClientID,
				ClientSecret: cfg.MicrosoftClientSecret,
				RedirectURL:  cfg.MicrosoftRedirectURI,
				Endpoint:     microsoft.AzureADEndpoint(cfg.MicrosoftTenant),
				Scopes:       []string{"openid", "email", "profile", "User.Read"},
			},
			meURL: microsoftGraphMe,
		}
	}
	return providers
}

type googleProvider struct {
	config *oauth2.Config
}

func (p *googleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (p *googleProvider) Identify(ctx context.Context, code string) (*authdto.OAuthProfile, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google token exchange: %w", err)
	}

	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(p.config.TokenSource(ctx, tok)))
	if err != nil {
		return nil, err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return nil, ErrUnverifiedEmail
	}

	return &authdto.OAuthProfile{
		Provider:  authdomain.ProviderGoogle,
		Subject:   info.Id,
		Email:     strings.ToLower(info.Email),
		Name:      info.Name,
		AvatarURL: info.Picture,
	}, nil
}

type microsoftProvider struct {
	config *oauth2.Config
	meURL  string
}

type graphUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func (p *microsoftProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *microsoftProvider) Identify(ctx context.Context, code string) (*authdto.OAuthProfile, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("microsoft token exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.meURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.config.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("microsoft graph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("microsoft graph: status %d, body: %s", resp.StatusCode, string(body))
	}

	var me graphUser
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, fmt.Errorf("failed to decode graph profile: %w", err)
	}

	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}

	return &authdto.OAuthProfile{
		Provider: authdomain.ProviderMicrosoft,
		Subject:  me.ID,
		Email:    strings.ToLower(email),
		Name:     me.DisplayName,
	}, nil
}
