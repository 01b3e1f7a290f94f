package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/teeswap/internal/auth"
	"github.com/example/teeswap/internal/clubs"
	"github.com/example/teeswap/internal/config"
	"github.com/example/teeswap/internal/crypto"
	"github.com/example/teeswap/internal/db"
	"github.com/example/teeswap/internal/jobs"
	"github.com/example/teeswap/internal/migrate"
	"github.com/example/teeswap/internal/scheduler"
	"github.com/example/teeswap/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool
	var abortOnRecoverFail bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the web UI + swap scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			log := newLogger(cfg.DevMode)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}

			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			aead, err := crypto.New(cfg.CredEncKey)
			if err != nil {
				return err
			}
			authStore := auth.NewStore(d, cfg.CookieHashKey, cfg.CookieBlockKey)
			jobRepo := jobs.NewRepo(d)

			sched := &scheduler.Scheduler{
				Repo:               jobRepo,
				Creds:              aead,
				Log:                log,
				PortalBaseURL:      cfg.PortalBaseURL,
				Interval:           cfg.PollInterval,
				AbortOnRecoverFail: abortOnRecoverFail,
			}
			go func() { _ = sched.Run(ctx) }()

			ws := &web.Server{
				Auth:          authStore,
				Jobs:          jobRepo,
				Clubs:         &clubs.Resolver{DB: d, Base: cfg.PortalBaseURL, Log: log},
				Creds:         aead,
				Log:           log,
				PortalBaseURL: cfg.PortalBaseURL,
			}
			log.Infof("listening on %s", cfg.ListenAddr)
			return web.Start(ctx, cfg.ListenAddr, ws.Routes())
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().BoolVar(&abortOnRecoverFail, "abort-on-recover-fail", false,
		"end a run as failed when re-booking the original slot fails, instead of retrying next poll")
	return cmd
}

func newLogger(dev bool) *logrus.Logger {
	log := logrus.New()
	if dev {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
