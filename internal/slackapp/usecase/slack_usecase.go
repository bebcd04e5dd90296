package usecase

import (
	"context"
	"fmt"
	"sync"

	"decisionlog-backend/internal/slackapp/domain"
	"decisionlog-backend/internal/slackapp/repository"
	slackclient "decisionlog-backend/pkg/slack"

	"go.uber.org/zap"
)

// Options holds the Slack app credentials
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type slackUsecase struct {
	installs repository.InstallationRepository
	box      TokenBox
	opts     Options
	exchange ExchangeFunc
	newBot   func(token string) Bot
	log      *zap.Logger

	mu   sync.Mutex
	bots map[string]Bot
}

// NewSlackUsecase creates a new Slack usecase
func NewSlackUsecase(installs repository.InstallationRepository, box TokenBox, opts Options, log *zap.Logger) SlackUsecase {
	return newSlackUsecase(installs, box, opts, slackclient.ExchangeCode, func(token string) Bot {
		return slackclient.NewBot(token)
	}, log)
}

func newSlackUsecase(installs repository.InstallationRepository, box TokenBox, opts Options, exchange ExchangeFunc, newBot func(string) Bot, log *zap.Logger) *slackUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &slackUsecase{
		installs: installs,
		box:      box,
		opts:     opts,
		exchange: exchange,
		newBot:   newBot,
		log:      log.Named("slack"),
		bots:     map[string]Bot{},
	}
}

func (u *slackUsecase) InstallURL(state string) string {
	return slackclient.InstallURL(u.opts.ClientID, u.opts.RedirectURI, state)
}

func (u *slackUsecase) CompleteInstall(ctx context.Context, userID, code string) (*domain.Installation, error) {
	res, err := u.exchange(ctx, u.opts.ClientID, u.opts.ClientSecret, code, u.opts.RedirectURI)
	if err != nil {
		return nil, err
	}
	if res.TeamID == "" || res.BotToken == "" {
		return nil, fmt.Errorf("slack install returned no bot token")
	}
	encrypted, err := u.box.Encrypt(res.BotToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt bot token: %w", err)
	}

	inst := &domain.Installation{
		TeamID:            res.TeamID,
		TeamName:          res.TeamName,
		BotUserID:         res.BotUserID,
		BotToken:          encrypted,
		InstalledByUserID: userID,
		Scope:             res.Scope,
	}
	if err := u.installs.Upsert(ctx, inst); err != nil {
		return nil, err
	}

	u.mu.Lock()
	delete(u.bots, inst.TeamID)
	u.mu.Unlock()

	u.log.Info("slack app installed", zap.String("team_id", inst.TeamID), zap.String("team", inst.TeamName))
	return inst, nil
}

// bot returns a cached client for the team's installation.
func (u *slackUsecase) bot(ctx context.Context, teamID string) (Bot, error) {
	u.mu.Lock()
	b, ok := u.bots[teamID]
	u.mu.Unlock()
	if ok {
		return b, nil
	}

	inst, err := u.installs.FindByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, domain.ErrNotInstalled
	}
	token, err := u.box.Decrypt(inst.BotToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt bot token: %w", err)
	}

	b = u.newBot(token)
	u.mu.Lock()
	u.bots[teamID] = b
	u.mu.Unlock()
	return b, nil
}

func (u *slackUsecase) PostConfirmation(ctx context.Context, teamID, channelID, userID, summary, token string) error {
	b, err := u.bot(ctx, teamID)
	if err != nil {
		return err
	}
	return b.PostConfirmation(ctx, channelID, userID, summary, token)
}

func (u *slackUsecase) PostText(ctx context.Context, teamID, channelID, userID, text string) error {
	b, err := u.bot(ctx, teamID)
	if err != nil {
		return err
	}
	return b.PostEphemeral(ctx, channelID, userID, text)
}

func (u *slackUsecase) UserEmail(ctx context.Context, teamID, userID string) (string, error) {
	b, err := u.bot(ctx, teamID)
	if err != nil {
		return "", err
	}
	return b.UserEmail(ctx, userID)
}
