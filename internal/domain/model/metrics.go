package model

// BuildSummary holds the aggregate counts the metrics endpoint is derived from.
type BuildSummary struct {
	Successes          int64
	Failures           int64
	AvgDurationSeconds float64
	LastBuild          *Build // Most recently completed build; nil when the store is empty.
}

// Metrics is the dashboard view over all stored builds.
type Metrics struct {
	SuccessRate         float64
	FailureRate         float64
	AvgBuildTimeSeconds float64
	LastBuild           *Build
}

// NewMetrics computes success and failure rates over decided builds.
// Rates are zero when no build has succeeded or failed yet.
func NewMetrics(s BuildSummary) Metrics {
	m := Metrics{
		AvgBuildTimeSeconds: s.AvgDurationSeconds,
		LastBuild:           s.LastBuild,
	}

	total := s.Successes + s.Failures
	if total > 0 {
		m.SuccessRate = float64(s.Successes) / float64(total)
		m.FailureRate = float64(s.Failures) / float64(total)
	}

	return m
}
