package main

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/cihealth/internal/adapter/driven/eventbus"
	githubadapter "github.com/ericfisherdev/cihealth/internal/adapter/driven/github"
	"github.com/ericfisherdev/cihealth/internal/adapter/driven/jenkins"
	"github.com/ericfisherdev/cihealth/internal/adapter/driven/notify"
	"github.com/ericfisherdev/cihealth/internal/adapter/driven/retry"
	"github.com/ericfisherdev/cihealth/internal/adapter/driven/sqlstore"
	"github.com/ericfisherdev/cihealth/internal/application"
	"github.com/ericfisherdev/cihealth/internal/config"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// app holds the wired services shared by every subcommand.
type app struct {
	db        *sqlstore.DB
	events    driven.EventPublisher
	ingest    *application.IngestService
	metrics   *application.MetricsService
	scheduler *application.PollScheduler
}

// openDB opens the configured store and applies pending migrations.
func openDB(ctx context.Context, cfg *config.Config) (*sqlstore.DB, error) {
	db, err := sqlstore.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "dialect", db.Dialect())

	if err := sqlstore.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete")

	return db, nil
}

// newApp wires stores, adapters and services from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	builds := sqlstore.NewBuildRepo(db)
	alerts := sqlstore.NewAlertRepo(db)

	var events driven.EventPublisher = eventbus.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := eventbus.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		events = kp
		slog.Info("build events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	mailer := notify.New(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	dispatcher := application.NewAlertDispatcher(alerts, mailer, cfg.AlertFrom, cfg.AlertRecipients, application.DefaultSendTimeout)
	if !dispatcher.Enabled() {
		slog.Info("no alert recipients configured, alerting disabled")
	}

	ingest := application.NewIngestService(builds, events, dispatcher)

	policy := retry.DefaultPolicy(cfg.ProviderTimeout, cfg.ProviderRetries)

	var sources []driven.BuildSource
	if cfg.HasGitHubCredentials() {
		sources = append(sources, githubadapter.NewSource(githubadapter.NewClient(cfg.GitHubToken), cfg.GitHubRepos, policy))
	} else {
		slog.Info("github source disabled: token or repos not configured")
	}
	if cfg.HasJenkinsCredentials() {
		sources = append(sources, jenkins.NewSource(cfg.JenkinsURL, cfg.JenkinsUser, cfg.JenkinsToken, policy))
	} else {
		slog.Info("jenkins source disabled: url, user or token not configured")
	}

	return &app{
		db:        db,
		events:    events,
		ingest:    ingest,
		metrics:   application.NewMetricsService(builds),
		scheduler: application.NewPollScheduler(sources, ingest, cfg.PollInterval, cfg.PollInitialDelay),
	}, nil
}

// Close releases the event producer and the database.
func (a *app) Close() {
	if err := a.events.Close(); err != nil {
		slog.Error("error closing event publisher", "error", err)
	}
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
