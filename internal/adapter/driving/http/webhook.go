package httphandler

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// maxWebhookBody caps the size of a webhook request body.
const maxWebhookBody = 5 << 20

// flexString accepts a JSON string or number. Null decodes as "".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// timeLayouts are tried in order for string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// flexTime accepts an RFC 3339 string, a few common variants of it, or epoch
// milliseconds as a number or digit string. Null and "" decode as the zero
// time. Anything else also decodes as the zero time with the raw value kept
// in invalid, so one bad optional field never rejects a payload.
type flexTime struct {
	t       time.Time
	invalid string
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	*f = flexTime{}

	var raw flexString
	if err := raw.UnmarshalJSON(data); err != nil {
		f.invalid = string(data)
		return nil
	}
	if raw == "" {
		return nil
	}

	if ms, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		f.t = time.UnixMilli(ms).UTC()
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, string(raw)); err == nil {
			f.t = t
			return nil
		}
	}

	f.invalid = string(raw)
	return nil
}

func (f flexTime) time() time.Time { return f.t }

type repositoryPayload struct {
	FullName string `json:"full_name"`
}

// githubPayload covers the three accepted shapes: a workflow_run event, a
// bare run object, and flattened aliases. WorkflowRun is set only for events.
type githubPayload struct {
	WorkflowRun *githubPayload `json:"workflow_run"`

	ID           flexString         `json:"id"`
	Status       string             `json:"status"`
	Conclusion   string             `json:"conclusion"`
	HeadBranch   string             `json:"head_branch"`
	RunStartedAt flexTime           `json:"run_started_at"`
	UpdatedAt    flexTime           `json:"updated_at"`
	HTMLURL      string             `json:"html_url"`
	Repository   *repositoryPayload `json:"repository"`

	RunID       flexString `json:"run_id"`
	Repo        string     `json:"repo"`
	Branch      string     `json:"branch"`
	StartedAt   flexTime   `json:"started_at"`
	CompletedAt flexTime   `json:"completed_at"`
	URL         string     `json:"url"`
	Logs        string     `json:"logs"`
}

func (p githubPayload) repoName() string {
	if p.Repository != nil && p.Repository.FullName != "" {
		return p.Repository.FullName
	}
	return p.Repo
}

// invalidTimes lists the timestamp fields that could not be parsed, as
// "name=value" pairs.
func (p githubPayload) invalidTimes() []string {
	var out []string
	fields := []struct {
		name string
		v    flexTime
	}{
		{"run_started_at", p.RunStartedAt},
		{"updated_at", p.UpdatedAt},
		{"started_at", p.StartedAt},
		{"completed_at", p.CompletedAt},
	}
	for _, f := range fields {
		if f.v.invalid != "" {
			out = append(out, f.name+"="+f.v.invalid)
		}
	}
	if p.WorkflowRun != nil {
		out = append(out, p.WorkflowRun.invalidTimes()...)
	}
	return out
}

// toActionsRun resolves aliases. Run-object fields win over flattened ones.
func (p githubPayload) toActionsRun() model.ActionsRun {
	run := p
	if p.WorkflowRun != nil {
		run = *p.WorkflowRun
		if run.repoName() == "" {
			run.Repository = p.Repository
		}
	}

	return model.ActionsRun{
		ID:          firstNonEmpty(string(run.ID), string(run.RunID)),
		Repo:        run.repoName(),
		Branch:      firstNonEmpty(run.HeadBranch, run.Branch),
		Status:      run.Status,
		Conclusion:  run.Conclusion,
		StartedAt:   firstNonZero(run.RunStartedAt.time(), run.StartedAt.time()),
		UpdatedAt:   run.UpdatedAt.time(),
		CompletedAt: run.CompletedAt.time(),
		URL:         firstNonEmpty(run.HTMLURL, run.URL),
		Logs:        run.Logs,
	}
}

// jenkinsBuildPayload is the nested build object sent by the Jenkins
// notification plugin.
type jenkinsBuildPayload struct {
	Number    flexString `json:"number"`
	Timestamp int64      `json:"timestamp"`
	Duration  int64      `json:"duration"`
	Status    string     `json:"status"`
	Result    string     `json:"result"`
	FullURL   string     `json:"full_url"`
	URL       string     `json:"url"`
	Log       string     `json:"log"`
	SCM       *struct {
		Branch string `json:"branch"`
	} `json:"scm"`
}

type jenkinsPayload struct {
	Name      string               `json:"name"`
	JobName   string               `json:"jobName"`
	Job       string               `json:"job"`
	Number    flexString           `json:"number"`
	Timestamp int64                `json:"timestamp"`
	Duration  int64                `json:"duration"`
	Result    string               `json:"result"`
	Branch    string               `json:"branch"`
	URL       string               `json:"url"`
	Logs      string               `json:"logs"`
	Build     *jenkinsBuildPayload `json:"build"`
}

func (p jenkinsPayload) toJenkinsBuild() (model.JenkinsBuild, error) {
	jb := model.JenkinsBuild{
		Job:       firstNonEmpty(p.Name, p.JobName, p.Job),
		Branch:    p.Branch,
		Result:    p.Result,
		Timestamp: p.Timestamp,
		Duration:  p.Duration,
		URL:       p.URL,
		Logs:      p.Logs,
	}
	number := string(p.Number)

	if b := p.Build; b != nil {
		number = firstNonEmpty(string(b.Number), number)
		jb.Result = firstNonEmpty(b.Status, b.Result, jb.Result)
		jb.URL = firstNonEmpty(b.FullURL, b.URL, jb.URL)
		jb.Logs = firstNonEmpty(b.Log, jb.Logs)
		if b.Timestamp != 0 {
			jb.Timestamp = b.Timestamp
		}
		if b.Duration != 0 {
			jb.Duration = b.Duration
		}
		if b.SCM != nil && b.SCM.Branch != "" {
			jb.Branch = b.SCM.Branch
		}
	}

	if jb.Job == "" {
		return jb, fmt.Errorf("%w: missing job name", model.ErrMalformedPayload)
	}
	if number == "" {
		return jb, fmt.Errorf("%w: missing build number", model.ErrMalformedPayload)
	}
	n, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		return jb, fmt.Errorf("%w: invalid build number %q", model.ErrMalformedPayload, number)
	}
	jb.Number = n

	return jb, nil
}

// GitHubWebhook ingests a pushed GitHub Actions run.
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	if h.webhooks.GitHubSecret != "" {
		if err := gh.ValidateSignature(r.Header.Get(gh.SHA256SignatureHeader), body, []byte(h.webhooks.GitHubSecret)); err != nil {
			h.logger.Warn("github webhook signature rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	if r.Header.Get(gh.EventTypeHeader) == "ping" {
		writeJSON(w, http.StatusOK, HealthResponse{OK: true})
		return
	}

	var payload githubPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	run := payload.toActionsRun()
	if run.ID == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}
	if bad := payload.invalidTimes(); len(bad) > 0 {
		h.logger.Warn("github webhook timestamps ignored", "run_id", run.ID, "fields", bad)
	}

	h.ingestBuild(w, r, model.NewActionsBuild(run))
}

// JenkinsWebhook ingests a pushed Jenkins build.
func (h *Handler) JenkinsWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhooks.JenkinsToken != "" {
		got := r.Header.Get("X-Webhook-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhooks.JenkinsToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid webhook token")
			return
		}
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var payload jenkinsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	jb, err := payload.toJenkinsBuild()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.ingestBuild(w, r, model.NewJenkinsBuild(jb))
}

func (h *Handler) ingestBuild(w http.ResponseWriter, r *http.Request, b model.Build) {
	result, err := h.ingest.Ingest(r.Context(), b)
	if err != nil {
		if errors.Is(err, model.ErrMalformedPayload) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("webhook ingest failed", "key", b.Key(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{
		ID:         result.ID,
		Conclusion: conclusionPtr(result.Conclusion),
	})
}

// readBody reads at most maxWebhookBody bytes. It writes the error response
// and returns false on failure.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	return body, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...time.Time) time.Time {
	for _, v := range values {
		if !v.IsZero() {
			return v
		}
	}
	return time.Time{}
}
