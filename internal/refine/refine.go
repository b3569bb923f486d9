// Package refine orchestrates multi-step generation: produce a blueprint,
// build artifacts from it, score the result, and either accept it or fold the
// reviewer's suggestions into another pass.
package refine

import "context"

// Blueprint is the structured plan one iteration builds from.
type Blueprint struct {
	Title    string    `json:"title"`
	Tagline  string    `json:"tagline"`
	Theme    string    `json:"theme"`
	Sections []Section `json:"sections"`
}

// Section is one content block of the planned site.
type Section struct {
	Name    string `json:"name"`
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Artifact is the buildable output of one iteration, keyed by relative file
// path within the project bundle.
type Artifact struct {
	Files map[string][]byte
}

// Review is the rubric outcome for a built artifact. Score is on a 0..10
// scale; Notes carry targeted improvement suggestions for the next pass.
type Review struct {
	Score float64
	Notes []string
}

// Planner produces or refines a blueprint from the brief plus the previous
// iteration's improvement notes.
type Planner interface {
	Plan(ctx context.Context, brief string, notes []string) (*Blueprint, error)
}

// Builder turns a blueprint into concrete artifacts. Builders may call a
// provider adapter for sub-assets.
type Builder interface {
	Build(ctx context.Context, bp *Blueprint) (*Artifact, error)
}

// Reviewer scores a built artifact against the rubric.
type Reviewer interface {
	Review(ctx context.Context, bp *Blueprint, art *Artifact) (Review, error)
}
