package domain

import "time"

// ProjectStatus enumerates refinement project lifecycle states.
type ProjectStatus string

const (
	ProjectBlueprintPending ProjectStatus = "blueprint_pending"
	ProjectBlueprintReady   ProjectStatus = "blueprint_ready"
	ProjectAssetsGenerating ProjectStatus = "assets_generating"
	ProjectAssetsReady      ProjectStatus = "assets_ready"
	ProjectReviewing        ProjectStatus = "reviewing"
	ProjectReviewDone       ProjectStatus = "review_done"
	ProjectCompleted        ProjectStatus = "completed"
	ProjectFailed           ProjectStatus = "failed"
)

// IsTerminal reports whether the project can still advance.
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectCompleted || s == ProjectFailed
}

// projectProgress maps status to a display percentage. Progress is derived
// from status only; it is never stored or set independently.
var projectProgress = map[ProjectStatus]int{
	ProjectBlueprintPending: 5,
	ProjectBlueprintReady:   20,
	ProjectAssetsGenerating: 40,
	ProjectAssetsReady:      60,
	ProjectReviewing:        75,
	ProjectReviewDone:       90,
	ProjectCompleted:        100,
	ProjectFailed:           100,
}

// Progress returns the derived completion percentage for the status.
func (s ProjectStatus) Progress() int {
	if p, ok := projectProgress[s]; ok {
		return p
	}
	return 0
}

// EventSeverity classifies project event log entries.
type EventSeverity string

const (
	EventInfo EventSeverity = "info"
	EventWarn EventSeverity = "warn"
	EventErr  EventSeverity = "error"
)

// ProjectEvent is one immutable entry in a project's append-only event log.
type ProjectEvent struct {
	At       time.Time     `json:"at"`
	Step     ProjectStatus `json:"step"`
	Severity EventSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// RefinementProject tracks one multi-step generation through its
// generate, score, refine loop.
type RefinementProject struct {
	ID            string
	CallerID      string
	Brief         string
	Iteration     int
	MaxIterations int
	Status        ProjectStatus
	LastScore     *float64
	Notes         []string
	ArtifactKey   string
	FallbackUsed  bool
	Events        []ProjectEvent
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Advance moves the project to the given status and appends an event. The
// event log is append-only; existing entries are never rewritten.
func (p *RefinementProject) Advance(status ProjectStatus, severity EventSeverity, msg string, now time.Time) {
	p.Status = status
	p.UpdatedAt = now
	p.Events = append(p.Events, ProjectEvent{
		At:       now,
		Step:     status,
		Severity: severity,
		Message:  msg,
	})
}

// Progress returns the derived completion percentage.
func (p *RefinementProject) Progress() int {
	return p.Status.Progress()
}
