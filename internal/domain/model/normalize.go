package model

import (
	"math"
	"strconv"
	"time"
)

// ActionsRun carries the provider-native fields of a GitHub Actions workflow
// run, whether it was fetched by the poller or delivered by a webhook.
type ActionsRun struct {
	ID          string
	Repo        string
	Branch      string
	Status      string
	Conclusion  string
	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time // Optional explicit completion time; falls back to UpdatedAt.
	URL         string
	Logs        string
}

// NewActionsBuild maps a workflow run onto the canonical Build.
func NewActionsBuild(run ActionsRun) Build {
	status := ParseStatus(run.Status)
	conclusion := ParseConclusion(run.Conclusion)

	// Flattened webhook payloads sometimes omit status but carry a conclusion.
	if status == BuildStatusUnknown && conclusion != ConclusionNone {
		status = BuildStatusCompleted
	}
	if status == BuildStatusCompleted && conclusion == ConclusionNone {
		conclusion = ConclusionUnknown
	}

	var completedAt time.Time
	if status == BuildStatusCompleted {
		completedAt = run.CompletedAt
		if completedAt.IsZero() {
			completedAt = run.UpdatedAt
		}
	}

	return Build{
		Tool:            ToolGitHub,
		ExternalID:      run.ID,
		Repo:            run.Repo,
		Branch:          run.Branch,
		Status:          status,
		Conclusion:      conclusion,
		StartedAt:       run.StartedAt,
		CompletedAt:     completedAt,
		DurationSeconds: DurationSeconds(run.StartedAt, completedAt),
		URL:             run.URL,
		Logs:            run.Logs,
	}
}

// JenkinsBuild carries the provider-native fields of one Jenkins build.
// Timestamp and Duration are milliseconds, as Jenkins reports them.
type JenkinsBuild struct {
	Job       string
	Number    int64
	Branch    string
	Result    string
	Timestamp int64
	Duration  int64
	URL       string
	Logs      string
}

// ExternalID returns the provider-scoped identifier "job-number".
func (b JenkinsBuild) ExternalID() string {
	return b.Job + "-" + strconv.FormatInt(b.Number, 10)
}

// NewJenkinsBuild maps a Jenkins build onto the canonical Build. A build with
// no reported duration is still running.
func NewJenkinsBuild(jb JenkinsBuild) Build {
	b := Build{
		Tool:       ToolJenkins,
		ExternalID: jb.ExternalID(),
		Repo:       jb.Job,
		Branch:     jb.Branch,
		Status:     BuildStatusInProgress,
		Conclusion: ConclusionNone,
		URL:        jb.URL,
		Logs:       jb.Logs,
	}

	if jb.Timestamp > 0 {
		b.StartedAt = time.UnixMilli(jb.Timestamp).UTC()
	}

	if jb.Duration > 0 {
		b.Status = BuildStatusCompleted
		b.Conclusion = ParseConclusion(jb.Result)
		if b.Conclusion == ConclusionNone {
			b.Conclusion = ConclusionUnknown
		}
		if jb.Timestamp > 0 {
			b.CompletedAt = time.UnixMilli(jb.Timestamp + jb.Duration).UTC()
		}
		b.DurationSeconds = int64(math.Round(float64(jb.Duration) / 1000))
	}

	return b
}
