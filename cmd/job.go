package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/teeswap/internal/config"
	"github.com/example/teeswap/internal/crypto"
	"github.com/example/teeswap/internal/db"
	"github.com/example/teeswap/internal/jobs"
	"github.com/example/teeswap/internal/migrate"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage swap jobs (non-UI)",
	}
	cmd.AddCommand(newJobCreateCmd())
	cmd.AddCommand(newJobListCmd())
	return cmd
}

func newJobCreateCmd() *cobra.Command {
	var (
		userID        int64
		clubSlug      string
		courseID      string
		username      string
		password      string
		targetDate    string
		earliest      string
		latest        string
		currentTime   string
		requiredSeats int
		acceptAtLeast bool
		playerIDs     string
		pollSeconds   int
		maxMinutes    int
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a swap job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := migrate.Up(ctx, d); err != nil {
				return err
			}

			p := jobs.Params{
				ClubSlug:      clubSlug,
				CourseID:      courseID,
				Username:      username,
				Password:      password,
				TargetDate:    targetDate,
				Earliest:      earliest,
				Latest:        latest,
				CurrentTime:   currentTime,
				RequiredSeats: requiredSeats,
				AcceptAtLeast: acceptAtLeast,
				PlayerIDs:     splitCSV(playerIDs),
				PollSeconds:   pollSeconds,
				MaxMinutes:    maxMinutes,
			}
			if err := p.Validate(); err != nil {
				return err
			}

			aead, err := crypto.New(cfg.CredEncKey)
			if err != nil {
				return err
			}
			userEnc, err := aead.EncryptToString(p.Username)
			if err != nil {
				return err
			}
			passEnc, err := aead.EncryptToString(p.Password)
			if err != nil {
				return err
			}

			id, err := jobs.NewRepo(d).Create(ctx, jobs.Job{
				UserID:        userID,
				ClubSlug:      p.ClubSlug,
				CourseID:      p.CourseID,
				UsernameEnc:   userEnc,
				PasswordEnc:   passEnc,
				TargetDate:    p.TargetDate,
				Earliest:      p.Earliest,
				Latest:        p.Latest,
				CurrentTime:   p.CurrentTime,
				RequiredSeats: p.RequiredSeats,
				AcceptAtLeast: p.AcceptAtLeast,
				PlayerIDs:     p.PlayerIDs,
				PollSeconds:   p.PollSeconds,
				MaxMinutes:    p.MaxMinutes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created job id=%d window=%s..%s date=%s\n", id, earliest, latest, targetDate)
			return nil
		},
	}

	c.Flags().Int64Var(&userID, "user-id", 0, "owning user id (from DB)")
	c.Flags().StringVar(&clubSlug, "club", "", "portal club slug")
	c.Flags().StringVar(&courseID, "course", "", "course id")
	c.Flags().StringVar(&username, "username", "", "portal username / membership number")
	c.Flags().StringVar(&password, "password", "", "portal password / PIN")
	c.Flags().StringVar(&targetDate, "date", "", "target date YYYY/MM/DD")
	c.Flags().StringVar(&earliest, "earliest", "", "earliest acceptable time HH:MM")
	c.Flags().StringVar(&latest, "latest", "", "latest acceptable time HH:MM")
	c.Flags().StringVar(&currentTime, "current", "", "currently held booking HH:MM")
	c.Flags().IntVar(&requiredSeats, "seats", 4, "seats required")
	c.Flags().BoolVar(&acceptAtLeast, "at-least", true, "accept at least N free seats (false = exactly N)")
	c.Flags().StringVar(&playerIDs, "players", "", "comma-separated player ids (1-4)")
	c.Flags().IntVar(&pollSeconds, "poll-seconds", 20, "poll interval seconds")
	c.Flags().IntVar(&maxMinutes, "max-minutes", 120, "wall-clock run budget minutes")

	for _, f := range []string{"user-id", "club", "course", "username", "password", "date", "earliest", "latest", "current", "players"} {
		_ = c.MarkFlagRequired(f)
	}
	return c
}

func newJobListCmd() *cobra.Command {
	var userID int64
	c := &cobra.Command{
		Use:   "list",
		Short: "List jobs for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			js, err := jobs.NewRepo(d).ListByUser(ctx, userID)
			if err != nil {
				return err
			}
			for _, j := range js {
				fmt.Fprintf(os.Stdout, "id=%d club=%s/%s date=%s window=%s..%s current=%s status=%s\n",
					j.ID, j.ClubSlug, j.CourseID, j.TargetDate, j.Earliest, j.Latest, j.CurrentTime, j.Status)
			}
			return nil
		},
	}
	c.Flags().Int64Var(&userID, "user-id", 0, "user id")
	_ = c.MarkFlagRequired("user-id")
	return c
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
