package github

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ericfisherdev/cihealth/internal/adapter/driven/retry"
	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BuildSource = (*Source)(nil)

// runsPerRepo is how many of the most recent runs are fetched per repository.
const runsPerRepo = 20

// Source polls the configured repositories for their most recent workflow runs.
type Source struct {
	client *Client
	repos  []string
	policy retry.Policy
}

// NewSource creates a Source. client may be nil when no token is configured,
// in which case the source is disabled.
func NewSource(client *Client, repos []string, policy retry.Policy) *Source {
	return &Source{
		client: client,
		repos:  repos,
		policy: policy,
	}
}

// Tool returns model.ToolGitHub.
func (s *Source) Tool() model.Tool {
	return model.ToolGitHub
}

// Enabled reports whether a client and at least one repository are configured.
func (s *Source) Enabled() bool {
	return s.client != nil && len(s.repos) > 0
}

// FetchBuilds fetches every configured repository independently. A failing
// repository is reported in the joined error and skipped; the others are
// still returned.
func (s *Source) FetchBuilds(ctx context.Context) ([]model.Build, error) {
	if !s.Enabled() {
		return nil, nil
	}

	var (
		builds []model.Build
		errs   []error
	)

	for _, repo := range s.repos {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		var runs []model.ActionsRun
		err := s.policy.Do(ctx, "github list runs "+repo, func(ctx context.Context) error {
			var err error
			runs, err = s.client.FetchWorkflowRuns(ctx, repo, runsPerRepo)
			return err
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, run := range runs {
			builds = append(builds, model.NewActionsBuild(run))
		}

		slog.Debug("github repo fetched", "repo", repo, "runs", len(runs))
	}

	return builds, errors.Join(errs...)
}
