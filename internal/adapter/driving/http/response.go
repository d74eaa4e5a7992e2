package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// BuildResponse is the JSON representation of a stored build.
type BuildResponse struct {
	ID              int64   `json:"id"`
	Tool            string  `json:"tool"`
	ExternalID      string  `json:"external_id"`
	Repo            string  `json:"repo"`
	Branch          string  `json:"branch"`
	Status          string  `json:"status"`
	Conclusion      *string `json:"conclusion"`
	DurationSeconds int64   `json:"duration_seconds"`
	URL             string  `json:"url"`
	StartedAt       *string `json:"started_at"`
	CompletedAt     *string `json:"completed_at"`
}

// MetricsResponse is the JSON representation of the dashboard metrics.
type MetricsResponse struct {
	SuccessRate         float64        `json:"successRate"`
	FailureRate         float64        `json:"failureRate"`
	AvgBuildTimeSeconds float64        `json:"avgBuildTimeSeconds"`
	LastBuild           *BuildResponse `json:"lastBuild"`
}

// IngestResponse is returned by the webhook endpoints.
type IngestResponse struct {
	ID         int64   `json:"id"`
	Conclusion *string `json:"conclusion"`
}

// toBuildResponse converts a domain Build to its JSON response representation.
// Absent times and conclusions are rendered as null.
func toBuildResponse(b model.Build) BuildResponse {
	return BuildResponse{
		ID:              b.ID,
		Tool:            string(b.Tool),
		ExternalID:      b.ExternalID,
		Repo:            b.Repo,
		Branch:          b.Branch,
		Status:          string(b.Status),
		Conclusion:      conclusionPtr(b.Conclusion),
		DurationSeconds: b.DurationSeconds,
		URL:             b.URL,
		StartedAt:       timePtr(b.StartedAt),
		CompletedAt:     timePtr(b.CompletedAt),
	}
}

func toMetricsResponse(m model.Metrics) MetricsResponse {
	resp := MetricsResponse{
		SuccessRate:         m.SuccessRate,
		FailureRate:         m.FailureRate,
		AvgBuildTimeSeconds: m.AvgBuildTimeSeconds,
	}
	if m.LastBuild != nil {
		last := toBuildResponse(*m.LastBuild)
		resp.LastBuild = &last
	}
	return resp
}

func conclusionPtr(c model.Conclusion) *string {
	if c == model.ConclusionNone {
		return nil
	}
	s := string(c)
	return &s
}

func timePtr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
