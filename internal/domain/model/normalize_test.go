package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationSeconds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		started   time.Time
		completed time.Time
		want      int64
	}{
		{"exact", start, start.Add(125 * time.Second), 125},
		{"rounds half up", start, start.Add(1500 * time.Millisecond), 2},
		{"completion before start clamps", start, start.Add(-30 * time.Second), 0},
		{"unknown start", time.Time{}, start, 0},
		{"unknown completion", start, time.Time{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DurationSeconds(tt.started, tt.completed))
		})
	}
}

func TestParseConclusion(t *testing.T) {
	assert.Equal(t, ConclusionNone, ParseConclusion(""))
	assert.Equal(t, ConclusionSuccess, ParseConclusion("SUCCESS"))
	assert.Equal(t, ConclusionFailure, ParseConclusion("failure"))
	assert.Equal(t, ConclusionFailure, ParseConclusion("UNSTABLE"))
	assert.Equal(t, ConclusionFailure, ParseConclusion("timed_out"))
	assert.Equal(t, ConclusionCancelled, ParseConclusion("ABORTED"))
	assert.Equal(t, ConclusionCancelled, ParseConclusion("cancelled"))
	assert.Equal(t, ConclusionUnknown, ParseConclusion("neutral"))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, BuildStatusQueued, ParseStatus("requested"))
	assert.Equal(t, BuildStatusInProgress, ParseStatus("in_progress"))
	assert.Equal(t, BuildStatusCompleted, ParseStatus("completed"))
	assert.Equal(t, BuildStatusUnknown, ParseStatus("mystery"))
}

func TestNewActionsBuild_Completed(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewActionsBuild(ActionsRun{
		ID:         "555",
		Repo:       "octocat/hello-world",
		Branch:     "main",
		Status:     "completed",
		Conclusion: "success",
		StartedAt:  start,
		UpdatedAt:  start.Add(125 * time.Second),
		URL:        "https://github.com/octocat/hello-world/actions/runs/555",
	})

	assert.Equal(t, ToolGitHub, b.Tool)
	assert.Equal(t, "555", b.ExternalID)
	assert.Equal(t, BuildStatusCompleted, b.Status)
	assert.Equal(t, ConclusionSuccess, b.Conclusion)
	assert.Equal(t, start.Add(125*time.Second), b.CompletedAt)
	assert.Equal(t, int64(125), b.DurationSeconds)
	assert.Equal(t, "github/555", b.Key())
}

func TestNewActionsBuild_CompletedWithoutConclusion(t *testing.T) {
	b := NewActionsBuild(ActionsRun{ID: "1", Status: "completed"})
	assert.Equal(t, ConclusionUnknown, b.Conclusion)
}

func TestNewActionsBuild_Running(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewActionsBuild(ActionsRun{
		ID:        "2",
		Status:    "in_progress",
		StartedAt: start,
		UpdatedAt: start.Add(time.Minute),
	})

	assert.Equal(t, BuildStatusInProgress, b.Status)
	assert.Equal(t, ConclusionNone, b.Conclusion)
	assert.True(t, b.CompletedAt.IsZero())
	assert.Equal(t, int64(0), b.DurationSeconds)
}

func TestNewActionsBuild_ConclusionWithoutStatus(t *testing.T) {
	b := NewActionsBuild(ActionsRun{ID: "3", Conclusion: "failure"})
	assert.Equal(t, BuildStatusCompleted, b.Status)
	assert.Equal(t, ConclusionFailure, b.Conclusion)
}

func TestUpsertResult_IsFailure(t *testing.T) {
	assert.True(t, UpsertResult{ID: 1, Conclusion: ConclusionFailure}.IsFailure())
	assert.False(t, UpsertResult{ID: 1, Conclusion: ConclusionUnknown}.IsFailure())
	assert.False(t, UpsertResult{ID: 1}.IsFailure())
}

func TestNewJenkinsBuild_Completed(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	b := NewJenkinsBuild(JenkinsBuild{
		Job:       "deploy",
		Number:    42,
		Result:    "FAILURE",
		Timestamp: ts,
		Duration:  125_400,
		URL:       "https://jenkins.example.com/job/deploy/42/",
	})

	assert.Equal(t, ToolJenkins, b.Tool)
	assert.Equal(t, "deploy-42", b.ExternalID)
	assert.Equal(t, "deploy", b.Repo)
	assert.Equal(t, BuildStatusCompleted, b.Status)
	assert.Equal(t, ConclusionFailure, b.Conclusion)
	assert.Equal(t, time.UnixMilli(ts).UTC(), b.StartedAt)
	assert.Equal(t, time.UnixMilli(ts+125_400).UTC(), b.CompletedAt)
	assert.Equal(t, int64(125), b.DurationSeconds)
}

func TestNewJenkinsBuild_Running(t *testing.T) {
	b := NewJenkinsBuild(JenkinsBuild{Job: "deploy", Number: 43, Timestamp: 1_700_000_000_000})

	assert.Equal(t, BuildStatusInProgress, b.Status)
	assert.Equal(t, ConclusionNone, b.Conclusion)
	assert.True(t, b.CompletedAt.IsZero())
	assert.False(t, b.StartedAt.IsZero())
}

func TestNewJenkinsBuild_CompletedWithoutResult(t *testing.T) {
	b := NewJenkinsBuild(JenkinsBuild{Job: "deploy", Number: 44, Timestamp: 1_700_000_000_000, Duration: 1000})
	assert.Equal(t, ConclusionUnknown, b.Conclusion)
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics(BuildSummary{Successes: 3, Failures: 1, AvgDurationSeconds: 42.5})
	assert.InDelta(t, 0.75, m.SuccessRate, 1e-9)
	assert.InDelta(t, 0.25, m.FailureRate, 1e-9)
	assert.InDelta(t, 42.5, m.AvgBuildTimeSeconds, 1e-9)

	empty := NewMetrics(BuildSummary{})
	assert.Zero(t, empty.SuccessRate)
	assert.Zero(t, empty.FailureRate)
	assert.Nil(t, empty.LastBuild)
}

func TestProviderError_IsTransient(t *testing.T) {
	assert.True(t, (&ProviderError{StatusCode: 0}).IsTransient())
	assert.True(t, (&ProviderError{StatusCode: 503}).IsTransient())
	assert.True(t, (&ProviderError{StatusCode: 429}).IsTransient())
	assert.False(t, (&ProviderError{StatusCode: 404}).IsTransient())
}
