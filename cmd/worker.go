package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/teeswap/internal/config"
	"github.com/example/teeswap/internal/crypto"
	"github.com/example/teeswap/internal/db"
	"github.com/example/teeswap/internal/jobs"
	"github.com/example/teeswap/internal/migrate"
	"github.com/example/teeswap/internal/scheduler"
)

// worker runs the scheduler without the web UI, for deployments that split
// the two processes.
func newWorkerCmd() *cobra.Command {
	var abortOnRecoverFail bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the swap scheduler only",
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
			if err := migrate.Up(ctx, d); err != nil {
				return err
			}

			aead, err := crypto.New(cfg.CredEncKey)
			if err != nil {
				return err
			}

			log.Info("worker booting")
			sched := &scheduler.Scheduler{
				Repo:               jobs.NewRepo(d),
				Creds:              aead,
				Log:                log,
				PortalBaseURL:      cfg.PortalBaseURL,
				Interval:           cfg.PollInterval,
				AbortOnRecoverFail: abortOnRecoverFail,
			}
			return sched.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&abortOnRecoverFail, "abort-on-recover-fail", false,
		"end a run as failed when re-booking the original slot fails, instead of retrying next poll")
	return cmd
}
