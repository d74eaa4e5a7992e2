package application

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

const (
	// DefaultBuildsLimit is used when a caller does not ask for a page size.
	DefaultBuildsLimit = 50
	// MaxBuildsLimit caps the number of builds returned in one listing.
	MaxBuildsLimit = 200
)

// MetricsService provides the read side of the dashboard API: health,
// aggregate metrics and the recent build list. It depends only on port
// interfaces.
type MetricsService struct {
	builds driven.BuildStore
}

// NewMetricsService creates a new MetricsService.
func NewMetricsService(builds driven.BuildStore) *MetricsService {
	return &MetricsService{builds: builds}
}

// Health reports whether the store is reachable.
func (s *MetricsService) Health(ctx context.Context) error {
	return s.builds.Ping(ctx)
}

// Metrics computes success and failure rates over decided builds, the mean
// duration over every stored build, and the most recently completed build.
func (s *MetricsService) Metrics(ctx context.Context) (model.Metrics, error) {
	summary, err := s.builds.Summary(ctx)
	if err != nil {
		return model.Metrics{}, err
	}
	return model.NewMetrics(summary), nil
}

// RecentBuilds returns the newest builds by start time. A non-positive limit
// selects DefaultBuildsLimit; larger values are capped at MaxBuildsLimit.
func (s *MetricsService) RecentBuilds(ctx context.Context, limit int) ([]model.Build, error) {
	return s.builds.ListRecent(ctx, ClampLimit(limit))
}

// ClampLimit normalizes a requested page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultBuildsLimit
	case limit > MaxBuildsLimit:
		return MaxBuildsLimit
	default:
		return limit
	}
}
