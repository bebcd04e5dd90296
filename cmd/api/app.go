package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	authdelivery "decisionlog-backend/internal/auth/delivery"
	authRepo "decisionlog-backend/internal/auth/repository"
	authUsecase "decisionlog-backend/internal/auth/usecase"
	"decisionlog-backend/internal/dashboard"
	decisionDelivery "decisionlog-backend/internal/decision/delivery"
	decisionRepo "decisionlog-backend/internal/decision/repository"
	decisionUsecase "decisionlog-backend/internal/decision/usecase"
	gmailDelivery "decisionlog-backend/internal/gmailsync/delivery"
	gmailRepo "decisionlog-backend/internal/gmailsync/repository"
	"decisionlog-backend/internal/gmailsync/scheduler"
	gmailUsecase "decisionlog-backend/internal/gmailsync/usecase"
	inboundDelivery "decisionlog-backend/internal/inbound/delivery"
	inbounddomain "decisionlog-backend/internal/inbound/domain"
	inboundUsecase "decisionlog-backend/internal/inbound/usecase"
	"decisionlog-backend/internal/notification"
	searchDelivery "decisionlog-backend/internal/search/delivery"
	searchRepo "decisionlog-backend/internal/search/repository"
	searchUsecase "decisionlog-backend/internal/search/usecase"
	slackDelivery "decisionlog-backend/internal/slackapp/delivery"
	slackRepo "decisionlog-backend/internal/slackapp/repository"
	slackUsecase "decisionlog-backend/internal/slackapp/usecase"
	"decisionlog-backend/pkg/ai"
	"decisionlog-backend/pkg/chroma"
	"decisionlog-backend/pkg/config"
	"decisionlog-backend/pkg/crypto"
	"decisionlog-backend/pkg/fcm"
	"decisionlog-backend/pkg/gmail"
	"decisionlog-backend/pkg/mailer"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// App owns every long-lived component of the API process
type App struct {
	cfg *config.Config
	log *zap.Logger

	Auth      authUsecase.AuthUsecase
	Decisions decisionUsecase.DecisionUsecase
	Sync      gmailUsecase.Usecase
	Search    searchUsecase.SearchUsecase
	Pipeline  inboundUsecase.Usecase

	handlers      Handlers
	tagWorker     *decisionUsecase.TagWorkerService
	syncScheduler *scheduler.SyncScheduler
	notifications *notification.Service
	slackHandler  *slackDelivery.SlackHandler
}

// deferredIngester breaks the construction cycle between sync, search and
// the pipeline: sync needs an ingester before the pipeline exists.
type deferredIngester struct {
	mu sync.RWMutex
	uc inboundUsecase.Usecase
}

func (d *deferredIngester) set(uc inboundUsecase.Usecase) {
	d.mu.Lock()
	d.uc = uc
	d.mu.Unlock()
}

func (d *deferredIngester) Ingest(ctx context.Context, msg *inbounddomain.Message) (*inbounddomain.Result, error) {
	d.mu.RLock()
	uc := d.uc
	d.mu.RUnlock()
	if uc == nil {
		return nil, errors.New("decision pipeline not ready")
	}
	return uc.Ingest(ctx, msg)
}

// NewApp wires repositories, usecases and handlers. Optional integrations
// (Chroma, SendGrid, FCM, Pub/Sub) are skipped when not configured.
func NewApp(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	box, err := crypto.NewBox(cfg.EncryptionKey)
	if err != nil {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("ENCRYPTION_KEY: %w", err)
		}
		log.Warn("ENCRYPTION_KEY not set, deriving token encryption from JWT_SECRET")
		if box, err = crypto.NewBox(cfg.JWTSecret); err != nil {
			return nil, err
		}
	}
	if err := checkSlackSecret(cfg, log); err != nil {
		return nil, err
	}

	// Repositories
	userRepository := authRepo.NewUserRepository(db)
	fcmTokenRepository := authRepo.NewFCMTokenRepository(db)
	decisionRepository := decisionRepo.NewDecisionRepository(db)
	tagRepository := decisionRepo.NewTagRepository(db)
	syncStateRepository := gmailRepo.NewSyncStateRepository(db)
	messageRepository := gmailRepo.NewMessageRepository(db)
	installationRepository := slackRepo.NewInstallationRepository(db)
	searchRepository := searchRepo.NewSearchRepository(db)

	// AI
	InitRuntimeConfig(cfg.OllamaBaseURL, cfg.OllamaModel)
	completer, err := ai.NewCompleter(ai.DynamicConfig{
		Provider:         ai.ProviderType(cfg.AIProvider),
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIModel:      cfg.OpenAIModel,
		GeminiAPIKey:     cfg.GeminiApiKey,
		GetOllamaBaseURL: GetRuntimeOllamaBaseURL,
		GetOllamaModel:   GetRuntimeOllamaModel,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("ai provider: %w", err)
	}
	extractor := ai.NewExtractor(completer)
	log.Info("AI provider ready", zap.String("provider", cfg.AIProvider))

	// Optional integrations. Interfaces stay nil when a client is missing.
	var (
		decisionIndex decisionUsecase.SemanticIndex
		searchIndex   searchUsecase.SemanticIndex
		mailSender    inboundUsecase.MailSender
		pushSender    inboundUsecase.PushSender
	)
	if cfg.ChromaAPIKey != "" {
		chromaClient, err := chroma.NewChromaClient(ctx, cfg, log)
		if err != nil {
			log.Warn("chroma unavailable, semantic search disabled", zap.Error(err))
		} else {
			decisionIndex, searchIndex = chromaClient, chromaClient
		}
	}
	if cfg.SendGridAPIKey != "" {
		mailSender = mailer.NewClient(cfg.SendGridAPIKey, cfg.BotEmail, cfg.BotName, log)
	} else {
		log.Warn("SENDGRID_API_KEY not set, email replies disabled")
	}
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials, log)
		if err != nil {
			log.Warn("FCM unavailable, push notifications disabled", zap.Error(err))
		} else {
			pushSender = fcmClient
		}
	}

	// Usecases
	authUc := authUsecase.NewAuthUsecase(userRepository, fcmTokenRepository, authUsecase.NewIdentityProviders(cfg), cfg.JWTSecret, cfg.JWTExpiry)
	decisionUc := decisionUsecase.NewDecisionUsecase(decisionRepository, tagRepository, decisionIndex, log)

	tagWorker := decisionUsecase.NewTagWorkerService(tagRepository, extractor, cfg.TagWorkers, log)

	slackUc := slackUsecase.NewSlackUsecase(installationRepository, box, slackUsecase.Options{
		ClientID:     cfg.SlackClientID,
		ClientSecret: cfg.SlackClientSecret,
		RedirectURI:  cfg.SlackRedirectURI,
	}, log)

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GmailRedirectURI, log)
	ingester := &deferredIngester{}
	syncUc := gmailUsecase.NewSyncUsecase(
		userRepository,
		syncStateRepository,
		messageRepository,
		gmailUsecase.NewMailboxProvider(gmailService),
		box,
		ingester,
		gmailUsecase.Options{Window: cfg.GmailSyncWindow, BotEmail: cfg.BotEmail, PubSubTopic: cfg.GooglePubSubTopic},
		log,
	)

	searchUc := searchUsecase.NewSearchUsecase(searchRepository, decisionRepository, tagRepository, syncUc, messageRepository, searchIndex, log)

	pipeline := inboundUsecase.NewPipeline(inboundUsecase.Dependencies{
		Decisions: decisionRepository,
		Users:     userRepository,
		Extractor: extractor,
		Search:    searchUc,
		Mail:      mailSender,
		Slack:     slackUc,
		Push:      pushSender,
		Tokens:    fcmTokenRepository,
		Tags:      tagWorker,
	}, inboundUsecase.Options{
		BotEmail:  cfg.BotEmail,
		BaseURL:   cfg.BaseURL,
		Threshold: cfg.ConfidenceThreshold,
	}, log)
	ingester.set(pipeline)

	// Handlers
	cookies := authdelivery.CookieOptions{Secure: cfg.CookieSecure}
	slackHandler := slackDelivery.NewSlackHandler(slackUc, pipeline, decisionUc, cookies, cfg.SlackSigningSecret, log)

	app := &App{
		cfg:       cfg,
		log:       log,
		Auth:      authUc,
		Decisions: decisionUc,
		Sync:      syncUc,
		Search:    searchUc,
		Pipeline:  pipeline,
		handlers: Handlers{
			Auth:      authdelivery.NewHandler(authUc, cookies, log),
			Decisions: decisionDelivery.NewDecisionHandler(decisionUc, log),
			Search:    searchDelivery.NewSearchHandler(searchUc, log),
			Gmail:     gmailDelivery.NewGmailHandler(syncUc, cookies, log),
			Slack:     slackHandler,
			Webhooks:  inboundDelivery.NewWebhookHandler(pipeline, cfg.InboundWebhookSecret, log),
			Pages:     dashboard.NewPageHandler(decisionUc, searchUc, log),
			Ollama:    ai.NewOllamaServiceWithGetters(GetRuntimeOllamaBaseURL, GetRuntimeOllamaModel),
		},
		tagWorker:     tagWorker,
		syncScheduler: scheduler.NewSyncScheduler(syncUc, cfg.GmailSyncInterval, log),
		slackHandler:  slackHandler,
	}

	if cfg.GoogleProjectID != "" && cfg.GooglePubSubTopic != "" {
		svc, err := notification.NewService(ctx, cfg.GoogleProjectID, cfg.GooglePubSubTopic, cfg.GoogleCredentials, syncUc, log)
		if err != nil {
			log.Warn("Gmail push notifications disabled", zap.Error(err))
		} else {
			app.notifications = svc
		}
	}
	return app, nil
}

// checkSlackSecret refuses to start a production server whose Slack
// endpoints could not verify signatures.
func checkSlackSecret(cfg *config.Config, log *zap.Logger) error {
	if cfg.SlackSigningSecret != "" {
		return nil
	}
	if cfg.IsProduction() {
		return errors.New("SLACK_SIGNING_SECRET is required in production")
	}
	log.Warn("SLACK_SIGNING_SECRET not set, Slack endpoints will reject every request")
	return nil
}

// Router builds the HTTP handler
func (a *App) Router() (*gin.Engine, error) {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r, err := NewEngine(a.log, authdelivery.CookieOptions{Secure: a.cfg.CookieSecure}, a.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	SetupRoutes(r, a.handlers, a.Auth)
	return r, nil
}

// StartTagWorkers starts only the tagging pool, for one-shot commands
func (a *App) StartTagWorkers() {
	a.tagWorker.Start()
}

// StartBackground launches the tag workers, the sync scheduler and the
// Pub/Sub receiver. They stop when ctx is cancelled or Shutdown runs.
func (a *App) StartBackground(ctx context.Context) {
	a.tagWorker.Start()
	a.syncScheduler.Start()
	if a.notifications != nil {
		go a.notifications.Start(ctx)
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
func (a *App) Serve(ctx context.Context) error {
	router, err := a.Router()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.StartBackground(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", a.cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.Shutdown()
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	a.Shutdown()
	return err
}

// Shutdown stops background work in dependency order
func (a *App) Shutdown() {
	a.syncScheduler.Stop()
	if a.notifications != nil {
		if err := a.notifications.Close(); err != nil {
			a.log.Warn("close pubsub", zap.Error(err))
		}
	}
	a.slackHandler.Wait()
	a.tagWorker.Stop()
}
