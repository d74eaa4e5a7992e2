package jenkins

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/adapter/driven/retry"
	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BuildSource = (*Source)(nil)

// Source polls a Jenkins controller for recent builds of every job.
type Source struct {
	client  *Client
	enabled bool
	policy  retry.Policy
}

// NewSource creates a Source. It is disabled unless baseURL, user and token
// are all set.
func NewSource(baseURL, user, token string, policy retry.Policy) *Source {
	return NewSourceWithClient(NewClient(baseURL, user, token), baseURL != "" && user != "" && token != "", policy)
}

// NewSourceWithClient creates a Source around an existing client.
func NewSourceWithClient(client *Client, enabled bool, policy retry.Policy) *Source {
	return &Source{client: client, enabled: enabled && client != nil, policy: policy}
}

// Tool returns model.ToolJenkins.
func (s *Source) Tool() model.Tool {
	return model.ToolJenkins
}

// Enabled reports whether the controller URL and credentials are configured.
func (s *Source) Enabled() bool {
	return s.enabled
}

// FetchBuilds lists the recent builds of every job. When the job list cannot
// be fetched no builds are returned for the cycle.
func (s *Source) FetchBuilds(ctx context.Context) ([]model.Build, error) {
	if !s.enabled {
		return nil, nil
	}

	var raw []model.JenkinsBuild
	err := s.policy.Do(ctx, "jenkins list jobs", func(ctx context.Context) error {
		var err error
		raw, err = s.client.FetchJobBuilds(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	builds := make([]model.Build, 0, len(raw))
	for _, jb := range raw {
		builds = append(builds, model.NewJenkinsBuild(jb))
	}
	return builds, nil
}
