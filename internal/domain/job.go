package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ResourceKind enumerates supported generation capabilities.
type ResourceKind string

const (
	ResourceImage ResourceKind = "image"
	ResourceVideo ResourceKind = "video"
	ResourceSite  ResourceKind = "site"
)

// IsValid reports whether the kind is one of the supported capabilities.
func (k ResourceKind) IsValid() bool {
	switch k {
	case ResourceImage, ResourceVideo, ResourceSite:
		return true
	default:
		return false
	}
}

// JobStatus enumerates provider job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// IsTerminal reports whether the status is final. Terminal records never
// transition again; late reconciliation events against them are no-ops.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// ParseJobStatus maps a provider-reported status string onto the lifecycle.
// Providers spell cancellation both ways; both normalize to canceled.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued":
		return JobStatusQueued, true
	case "starting":
		return JobStatusStarting, true
	case "processing":
		return JobStatusProcessing, true
	case "succeeded":
		return JobStatusSucceeded, true
	case "failed":
		return JobStatusFailed, true
	case "canceled", "cancelled":
		return JobStatusCanceled, true
	default:
		return "", false
	}
}

// IsValid reports whether the status is a known lifecycle state.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusStarting, JobStatusProcessing,
		JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// OutputRole classifies an extracted result URL.
type OutputRole string

const (
	OutputRolePrimary OutputRole = "primary"
	OutputRoleCover   OutputRole = "cover"
)

// Output is one normalized result artifact extracted from a provider payload.
type Output struct {
	URL  string     `json:"url"`
	Role OutputRole `json:"role"`
}

// ErrorKind distinguishes terminal failure causes for callers.
type ErrorKind string

const (
	ErrorKindNone     ErrorKind = ""
	ErrorKindProvider ErrorKind = "provider_failed"
	ErrorKindCanceled ErrorKind = "provider_canceled"
	ErrorKindEmpty    ErrorKind = "empty_result"
	ErrorKindTimeout  ErrorKind = "reconcile_timeout"
)

// Job is the persisted record for a single provider job, keyed by the
// provider-assigned id.
type Job struct {
	ID           string
	CallerID     string
	Kind         ResourceKind
	Provider     string
	Version      string
	Status       JobStatus
	Params       json.RawMessage
	Outputs      []Output
	Duration     *float64
	ErrorKind    ErrorKind
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobPatch carries a partial update for a job record. Nil fields are left
// untouched by the merge.
type JobPatch struct {
	Status       JobStatus
	Outputs      []Output
	Duration     *float64
	ErrorKind    ErrorKind
	ErrorMessage *string
}

// ApplyPatch merges a patch into the job in place. A patch that would move a
// terminal status back to a non-terminal one returns ErrStaleTransition and
// leaves the record unchanged; everything else is last-write-wins.
func (j *Job) ApplyPatch(p JobPatch, now time.Time) error {
	if p.Status != "" {
		if j.Status.IsTerminal() && j.Status != p.Status {
			return ErrStaleTransition
		}
		j.Status = p.Status
	}
	if len(p.Outputs) > 0 {
		j.Outputs = p.Outputs
	}
	if p.Duration != nil {
		j.Duration = p.Duration
	}
	if p.ErrorKind != ErrorKindNone {
		j.ErrorKind = p.ErrorKind
	}
	if p.ErrorMessage != nil {
		j.ErrorMessage = *p.ErrorMessage
	}
	j.UpdatedAt = now
	return nil
}

// PrimaryOutputs returns only the primary media artifacts.
func (j *Job) PrimaryOutputs() []Output {
	var out []Output
	for _, o := range j.Outputs {
		if o.Role == OutputRolePrimary {
			out = append(out, o)
		}
	}
	return out
}
