// Command cihealth ingests CI builds from GitHub Actions and Jenkins, alerts
// on failures and serves the dashboard API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/cihealth/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

// newRootCmd builds the command tree. Running the root without a subcommand
// is the same as "serve".
func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:   "cihealth",
		Short: "CI/CD build health: ingestion, failure alerts and dashboard API",
		Long: `cihealth polls GitHub Actions and Jenkins for recent builds, accepts
their webhooks, stores every build once per provider id, and emails an
alert the first time a build is seen failing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			setupLogger(cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the poll scheduler until interrupted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return migrate(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "poll",
			Short: "Run one poll cycle for every enabled provider and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return pollOnce(cmd.Context(), cfg, cmd.OutOrStdout())
			},
		},
	)

	return root
}

// setupLogger installs the default slog logger for the configured level and
// format.
func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
