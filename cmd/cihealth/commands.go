package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"text/tabwriter"
	"time"

	httphandler "github.com/ericfisherdev/cihealth/internal/adapter/driving/http"
	"github.com/ericfisherdev/cihealth/internal/config"
)

// serve runs the HTTP API and the poll scheduler until ctx is canceled, then
// drains both.
func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := httphandler.NewHandler(a.metrics, a.ingest, httphandler.WebhookConfig{
		GitHubSecret: cfg.GitHubWebhookSecret,
		JenkinsToken: cfg.JenkinsWebhookToken,
	}, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewRouter(handler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduler.Start(pollCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("cihealth started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
		"sources", a.scheduler.Sources(),
	)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case runErr = <-serveErr:
		slog.Error("http server error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	stopPolling()
	wg.Wait()

	slog.Info("shutdown complete")
	return runErr
}

// migrate applies pending migrations and exits.
func migrate(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	return db.Close()
}

// pollOnce runs a single cycle for every enabled source and prints a summary.
func pollOnce(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	reports := a.scheduler.RunOnce(ctx)
	if len(reports) == 0 {
		return errors.New("no build sources enabled: configure GitHub or Jenkins credentials")
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tFETCHED\tINGESTED\tPROVIDER ERRORS\tSTORE ERRORS\tDURATION")

	var failed int
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			r.Tool, r.Fetched, r.Ingested, r.ProviderErrors, r.PersistenceFailures, r.Duration)
		failed += r.PersistenceFailures
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d builds could not be stored", failed)
	}
	return nil
}
