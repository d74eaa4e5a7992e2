// Package jenkins implements the Jenkins build source over the Jenkins JSON
// remote access API.
package jenkins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// buildsPerJob is the tree query limit on recent builds returned per job.
const buildsPerJob = 20

// jobsTree selects only the fields the mapping needs.
var jobsTree = fmt.Sprintf("jobs[name,url,builds[number,result,timestamp,duration,url]{0,%d}]", buildsPerJob)

// jobsResponse is the shape of GET /api/json with the jobsTree query.
type jobsResponse struct {
	Jobs []struct {
		Name   string `json:"name"`
		URL    string `json:"url"`
		Builds []struct {
			Number    int64   `json:"number"`
			Result    *string `json:"result"`
			Timestamp int64   `json:"timestamp"`
			Duration  int64   `json:"duration"`
			URL       string  `json:"url"`
		} `json:"builds"`
	} `json:"jobs"`
}

// Client reads job and build history from a Jenkins controller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	user       string
	token      string
}

// NewClient creates a Client for the controller at baseURL, authenticating
// with a user name and API token. The caller's context bounds each request.
func NewClient(baseURL, user, token string) *Client {
	return NewClientWithHTTPClient(http.DefaultClient, baseURL, user, token)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, user, token string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		user:       user,
		token:      token,
	}
}

// FetchJobBuilds returns the recent builds of every job on the controller.
// Any failure is returned as a single *model.ProviderError covering the whole
// job list.
func (c *Client) FetchJobBuilds(ctx context.Context) ([]model.JenkinsBuild, error) {
	endpoint := c.baseURL + "/api/json?tree=" + url.QueryEscape(jobsTree)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.providerError(0, fmt.Errorf("creating request: %w", err))
	}
	req.SetBasicAuth(c.user, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.providerError(0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, c.providerError(resp.StatusCode, fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))))
	}

	var body jobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// A 200 with an undecodable body is not worth retrying.
		return nil, c.providerError(resp.StatusCode, fmt.Errorf("decoding job list: %w", err))
	}

	var builds []model.JenkinsBuild
	for _, job := range body.Jobs {
		for _, b := range job.Builds {
			result := ""
			if b.Result != nil {
				result = *b.Result
			}
			builds = append(builds, model.JenkinsBuild{
				Job:       job.Name,
				Number:    b.Number,
				Result:    result,
				Timestamp: b.Timestamp,
				Duration:  b.Duration,
				URL:       b.URL,
			})
		}
	}

	slog.Debug("jenkins api call", "jobs", len(body.Jobs), "builds", len(builds))

	return builds, nil
}

func (c *Client) providerError(status int, err error) *model.ProviderError {
	return &model.ProviderError{
		Provider:   model.ToolJenkins,
		Unit:       "jobs",
		StatusCode: status,
		Err:        err,
	}
}
