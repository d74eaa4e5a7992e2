package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// DefaultInitialDelay is how long Start waits before the first cycle.
const DefaultInitialDelay = 5 * time.Second

// PollReport summarizes one source's poll cycle.
type PollReport struct {
	Tool                model.Tool
	Skipped             bool // The previous cycle for this source was still running.
	Fetched             int
	Ingested            int
	ProviderErrors      int
	PersistenceFailures int
	Duration            time.Duration
	Err                 error // Joined provider errors, if any.
}

// PollScheduler periodically pulls builds from every enabled source and
// feeds them through the IngestService. Each source polls independently and
// at most one cycle per source is ever in flight.
type PollScheduler struct {
	sources      []driven.BuildSource
	ingest       *IngestService
	interval     time.Duration
	initialDelay time.Duration
	inFlight     map[model.Tool]*semaphore.Weighted
}

// NewPollScheduler creates a scheduler over the enabled subset of sources.
func NewPollScheduler(sources []driven.BuildSource, ingest *IngestService, interval, initialDelay time.Duration) *PollScheduler {
	s := &PollScheduler{
		ingest:       ingest,
		interval:     interval,
		initialDelay: initialDelay,
		inFlight:     make(map[model.Tool]*semaphore.Weighted),
	}

	for _, src := range sources {
		if !src.Enabled() {
			slog.Info("build source disabled", "tool", src.Tool())
			continue
		}
		s.sources = append(s.sources, src)
		s.inFlight[src.Tool()] = semaphore.NewWeighted(1)
	}

	return s
}

// Sources returns the tools that will be polled.
func (s *PollScheduler) Sources() []model.Tool {
	tools := make([]model.Tool, 0, len(s.sources))
	for _, src := range s.sources {
		tools = append(tools, src.Tool())
	}
	return tools
}

// Start waits the initial delay, runs a cycle, then runs one on every tick of
// the interval. Cycles for different sources never wait on each other; a
// source whose previous cycle is still running is skipped for that tick.
// Start blocks until the context is canceled and in-flight cycles return.
func (s *PollScheduler) Start(ctx context.Context) {
	if len(s.sources) == 0 {
		slog.Info("no build sources enabled, poll scheduler idle")
		<-ctx.Done()
		return
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	select {
	case <-ctx.Done():
		return
	case <-time.After(s.initialDelay):
	}

	tick := func() {
		for _, src := range s.sources {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.logReport(s.pollSource(ctx, src))
			}()
		}
	}

	tick()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll scheduler stopped")
			return
		case <-ticker.C:
			tick()
		}
	}
}

// RunOnce runs a single cycle for every enabled source concurrently and
// returns one report per source, in source order.
func (s *PollScheduler) RunOnce(ctx context.Context) []PollReport {
	reports := make([]PollReport, len(s.sources))

	var g errgroup.Group
	for i, src := range s.sources {
		g.Go(func() error {
			reports[i] = s.pollSource(ctx, src)
			s.logReport(reports[i])
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

// pollSource fetches and ingests one source's builds under its single-flight
// token.
func (s *PollScheduler) pollSource(ctx context.Context, src driven.BuildSource) PollReport {
	report := PollReport{Tool: src.Tool()}

	token := s.inFlight[src.Tool()]
	if !token.TryAcquire(1) {
		report.Skipped = true
		return report
	}
	defer token.Release(1)

	start := time.Now()

	builds, err := src.FetchBuilds(ctx)
	report.Fetched = len(builds)
	if err != nil {
		report.Err = err
		report.ProviderErrors = countErrors(err)
		slog.Warn("provider fetch failed", "tool", src.Tool(), "error", err)
	}

	for _, b := range builds {
		if ctx.Err() != nil {
			break
		}

		if _, err := s.ingest.Ingest(ctx, b); err != nil {
			report.PersistenceFailures++
			slog.Error("ingest failed", "tool", src.Tool(), "key", b.Key(), "error", err)
			continue
		}
		report.Ingested++
	}

	report.Duration = time.Since(start).Round(time.Millisecond)
	return report
}

func (s *PollScheduler) logReport(r PollReport) {
	if r.Skipped {
		slog.Warn("poll skipped, previous cycle still running", "tool", r.Tool)
		return
	}

	slog.Info("poll cycle complete",
		"tool", r.Tool,
		"fetched", r.Fetched,
		"ingested", r.Ingested,
		"provider_errors", r.ProviderErrors,
		"persistence_failures", r.PersistenceFailures,
		"duration", r.Duration,
	)
}

// countErrors counts the leaves of a joined error.
func countErrors(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
