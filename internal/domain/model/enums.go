package model

import "strings"

// Tool identifies the CI provider a build was observed on.
type Tool string

const (
	ToolGitHub  Tool = "github"
	ToolJenkins Tool = "jenkins"
)

// Valid reports whether t is one of the supported providers.
func (t Tool) Valid() bool {
	return t == ToolGitHub || t == ToolJenkins
}

// BuildStatus represents the lifecycle state of a build.
type BuildStatus string

const (
	BuildStatusQueued     BuildStatus = "queued"
	BuildStatusInProgress BuildStatus = "in_progress"
	BuildStatusCompleted  BuildStatus = "completed"
	BuildStatusUnknown    BuildStatus = "unknown"
)

// Conclusion represents the outcome of a completed build. The empty value
// means the provider has not reported an outcome yet.
type Conclusion string

const (
	ConclusionNone      Conclusion = ""
	ConclusionSuccess   Conclusion = "success"
	ConclusionFailure   Conclusion = "failure"
	ConclusionCancelled Conclusion = "cancelled"
	ConclusionUnknown   Conclusion = "unknown"
)

// AlertChannel is the transport an alert was delivered over.
type AlertChannel string

const (
	AlertChannelEmail AlertChannel = "email"
)

// ParseStatus maps a provider status string onto BuildStatus.
func ParseStatus(s string) BuildStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "requested", "waiting", "pending":
		return BuildStatusQueued
	case "in_progress", "running":
		return BuildStatusInProgress
	case "completed":
		return BuildStatusCompleted
	default:
		return BuildStatusUnknown
	}
}

// ParseConclusion maps a provider conclusion or result string onto Conclusion.
// Jenkins results arrive upper-cased (SUCCESS, FAILURE, ABORTED, UNSTABLE).
func ParseConclusion(s string) Conclusion {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ConclusionNone
	case "success":
		return ConclusionSuccess
	case "failure", "timed_out", "startup_failure", "unstable":
		return ConclusionFailure
	case "cancelled", "canceled", "aborted": //nolint:misspell // both spellings appear in provider payloads
		return ConclusionCancelled
	default:
		return ConclusionUnknown
	}
}
