package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	api "decisionlog-backend/cmd/api"
	"decisionlog-backend/internal/gmailsync/domain"
	"decisionlog-backend/internal/schema"
	"decisionlog-backend/pkg/config"
	"decisionlog-backend/pkg/database"
	"decisionlog-backend/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// process bundles what every subcommand needs
type process struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func setup() (*process, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.IsProduction())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &process{cfg: cfg, log: log, db: db}, nil
}

func (rt *process) close() {
	if sqlDB, err := rt.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = rt.log.Sync()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "decisionlog",
		Short:         "Decision log API: records decisions from email and Slack",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, background workers and Gmail sync",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := setup()
				if err != nil {
					return err
				}
				defer rt.close()
				if err := schema.Migrate(rt.db); err != nil {
					return err
				}
				rt.log.Info("migration complete")
				return nil
			},
		},
		newGmailSyncCmd(),
	)
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	if err := schema.Migrate(rt.db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := api.NewApp(ctx, rt.cfg, rt.db, rt.log)
	if err != nil {
		return err
	}
	return app.Serve(ctx)
}

func newGmailSyncCmd() *cobra.Command {
	var (
		userID string
		full   bool
	)
	cmd := &cobra.Command{
		Use:   "gmail-sync",
		Short: "Sync one connected mailbox, or all of them without --user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := api.NewApp(ctx, rt.cfg, rt.db, rt.log)
			if err != nil {
				return err
			}
			defer app.Shutdown()
			app.StartTagWorkers()

			if userID == "" {
				n := app.Sync.SyncAll(ctx)
				rt.log.Info("gmail sync finished", zap.Int("mailboxes", n))
				return nil
			}

			mode := domain.ModeAuto
			if full {
				mode = domain.ModeFull
			}
			result, err := app.Sync.Sync(ctx, userID, mode)
			if errors.Is(err, domain.ErrSyncInProgress) {
				return fmt.Errorf("a sync is already running for %s", userID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mode=%s fell_back=%t listed=%d stored=%d skipped=%d extracted=%d\n",
				result.Mode, result.FellBack, result.Listed, result.Stored, result.Skipped, result.Extracted)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to sync")
	cmd.Flags().BoolVar(&full, "full", false, "force a full sync")
	return cmd
}
