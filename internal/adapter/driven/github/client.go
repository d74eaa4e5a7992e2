// Package github implements the GitHub Actions build source using the
// go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// Client lists workflow runs through the GitHub REST API.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// FetchWorkflowRuns returns the most recent workflow runs for a repository,
// newest first. Only the first page of perPage runs is requested.
// Call failures are returned as *model.ProviderError.
func (c *Client) FetchWorkflowRuns(ctx context.Context, repoFullName string, perPage int) ([]model.ActionsRun, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListWorkflowRunsOptions{
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	result, resp, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, owner, repo, opts)
	if err != nil {
		return nil, providerError(repoFullName, resp, err)
	}

	logRateLimit(resp, repoFullName+"/actions/runs", len(result.WorkflowRuns))

	runs := make([]model.ActionsRun, 0, len(result.WorkflowRuns))
	for _, run := range result.WorkflowRuns {
		runs = append(runs, mapWorkflowRun(run, repoFullName))
	}

	return runs, nil
}

// mapWorkflowRun converts a go-github WorkflowRun to the provider-native
// ActionsRun. It uses GetXxx() helper methods exclusively to avoid nil
// pointer panics.
func mapWorkflowRun(run *gh.WorkflowRun, repoFullName string) model.ActionsRun {
	repo := run.GetRepository().GetFullName()
	if repo == "" {
		repo = repoFullName
	}

	return model.ActionsRun{
		ID:         strconv.FormatInt(run.GetID(), 10),
		Repo:       repo,
		Branch:     run.GetHeadBranch(),
		Status:     run.GetStatus(),
		Conclusion: run.GetConclusion(),
		StartedAt:  run.GetRunStartedAt().Time,
		UpdatedAt:  run.GetUpdatedAt().Time,
		URL:        run.GetHTMLURL(),
	}
}

// providerError classifies a go-github failure. resp is nil on network errors.
func providerError(repoFullName string, resp *gh.Response, err error) *model.ProviderError {
	perr := &model.ProviderError{
		Provider: model.ToolGitHub,
		Unit:     repoFullName,
		Err:      err,
	}

	var errResp *gh.ErrorResponse
	switch {
	case resp != nil && resp.Response != nil:
		perr.StatusCode = resp.StatusCode
	case errors.As(err, &errResp) && errResp.Response != nil:
		perr.StatusCode = errResp.Response.StatusCode
	}

	return perr
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
