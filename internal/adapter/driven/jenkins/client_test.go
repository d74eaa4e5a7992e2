package jenkins_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/cihealth/internal/adapter/driven/jenkins"
	"github.com/ericfisherdev/cihealth/internal/adapter/driven/retry"
	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

const jobsBody = `{
	"jobs": [
		{
			"name": "deploy",
			"url": "https://ci.example.com/job/deploy/",
			"builds": [
				{"number": 42, "result": "FAILURE", "timestamp": 1704067200000, "duration": 90400, "url": "https://ci.example.com/job/deploy/42/"},
				{"number": 43, "result": null, "timestamp": 1704067300000, "duration": 0, "url": "https://ci.example.com/job/deploy/43/"}
			]
		},
		{
			"name": "lint",
			"url": "https://ci.example.com/job/lint/",
			"builds": [
				{"number": 7, "result": "SUCCESS", "timestamp": 1704067200000, "duration": 1000, "url": "https://ci.example.com/job/lint/7/"}
			]
		}
	]
}`

func zeroPolicy(retries uint64) retry.Policy {
	return retry.Policy{
		Timeout:    time.Second,
		MaxRetries: retries,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func newTestSource(t *testing.T, handler http.Handler, retries uint64) *jenkins.Source {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := jenkins.NewClientWithHTTPClient(server.Client(), server.URL+"/", "ci-bot", "api-token")
	return jenkins.NewSourceWithClient(client, true, zeroPolicy(retries))
}

func TestFetchJobBuilds_SendsTreeQueryWithBasicAuth(t *testing.T) {
	var gotTree, gotUser, gotPass string
	var gotAuth bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/json", r.URL.Path)
		gotTree = r.URL.Query().Get("tree")
		gotUser, gotPass, gotAuth = r.BasicAuth()
		_, _ = w.Write([]byte(jobsBody))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := jenkins.NewClientWithHTTPClient(server.Client(), server.URL, "ci-bot", "api-token")
	builds, err := client.FetchJobBuilds(context.Background())

	require.NoError(t, err)
	assert.Len(t, builds, 3)
	assert.Equal(t, "jobs[name,url,builds[number,result,timestamp,duration,url]{0,20}]", gotTree)
	assert.True(t, gotAuth)
	assert.Equal(t, "ci-bot", gotUser)
	assert.Equal(t, "api-token", gotPass)
}

func TestSource_MapsBuilds(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(jobsBody))
	}), 0)

	builds, err := src.FetchBuilds(context.Background())
	require.NoError(t, err)
	require.Len(t, builds, 3)

	failed := builds[0]
	assert.Equal(t, model.ToolJenkins, failed.Tool)
	assert.Equal(t, "deploy-42", failed.ExternalID)
	assert.Equal(t, "deploy", failed.Repo)
	assert.Equal(t, model.BuildStatusCompleted, failed.Status)
	assert.Equal(t, model.ConclusionFailure, failed.Conclusion)
	assert.Equal(t, int64(90), failed.DurationSeconds)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), failed.StartedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 1, 30, 400_000_000, time.UTC), failed.CompletedAt)

	running := builds[1]
	assert.Equal(t, "deploy-43", running.ExternalID)
	assert.Equal(t, model.BuildStatusInProgress, running.Status)
	assert.Equal(t, model.ConclusionNone, running.Conclusion)
	assert.True(t, running.CompletedAt.IsZero())

	assert.Equal(t, "lint-7", builds[2].ExternalID)
	assert.Equal(t, model.ConclusionSuccess, builds[2].Conclusion)
}

func TestSource_JobListFailureYieldsNoBuilds(t *testing.T) {
	var calls atomic.Int32
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "jenkins is restarting", http.StatusServiceUnavailable)
	}), 2)

	builds, err := src.FetchBuilds(context.Background())

	assert.Empty(t, builds)
	var perr *model.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ToolJenkins, perr.Provider)
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSource_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}), 2)

	_, err := src.FetchBuilds(context.Background())

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSource_MalformedBodyIsProviderError(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>login</html>`))
	}), 2)

	_, err := src.FetchBuilds(context.Background())

	var perr *model.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.IsTransient())
}

func TestNewSource_DisabledWithoutCredentials(t *testing.T) {
	tests := []struct {
		name               string
		baseURL, user, tok string
		want               bool
	}{
		{name: "all set", baseURL: "https://ci.example.com", user: "bot", tok: "t", want: true},
		{name: "missing url", user: "bot", tok: "t"},
		{name: "missing user", baseURL: "https://ci.example.com", tok: "t"},
		{name: "missing token", baseURL: "https://ci.example.com", user: "bot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := jenkins.NewSource(tt.baseURL, tt.user, tt.tok, zeroPolicy(0))
			assert.Equal(t, tt.want, src.Enabled())
			assert.Equal(t, model.ToolJenkins, src.Tool())
		})
	}

	disabled := jenkins.NewSource("", "", "", zeroPolicy(0))
	builds, err := disabled.FetchBuilds(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, builds)
}
