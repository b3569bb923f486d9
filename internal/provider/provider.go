// Package provider normalizes requests to external inference services and
// classifies their arbitrarily shaped result payloads.
package provider

import (
	"context"
	"encoding/json"

	"genserver/internal/domain"
)

// Input is a normalized generation request ready for submission.
type Input struct {
	Kind         domain.ResourceKind
	Prompt       string
	Params       map[string]any
	ReferenceURL string
}

// JobHandle identifies a submitted provider job. It is created at submit
// time and never mutated.
type JobHandle struct {
	Provider string
	JobID    string
	Version  string
}

// StatusSnapshot is one observation of a provider job.
type StatusSnapshot struct {
	Status domain.JobStatus
	Raw    json.RawMessage
	Error  string
}

// Adapter exposes a uniform surface over one external inference capability.
type Adapter interface {
	Name() string
	Kind() domain.ResourceKind
	// ResolveVersion returns the model version to submit against, consulting
	// the process-lifetime cache before any discovery round-trip.
	ResolveVersion(ctx context.Context) (string, error)
	Submit(ctx context.Context, in Input) (JobHandle, error)
	FetchStatus(ctx context.Context, jobID string) (StatusSnapshot, error)
}
