package refine

import (
	"context"
	"fmt"
	"strings"
)

// RubricReviewer scores a built site against a fixed checklist. Each check
// contributes points toward the 0..10 scale and emits a targeted suggestion
// when it fails, so the next planning pass knows what to fix.
type RubricReviewer struct{}

// NewRubricReviewer builds the checklist reviewer.
func NewRubricReviewer() *RubricReviewer {
	return &RubricReviewer{}
}

type check struct {
	points float64
	passed func(page string, bp *Blueprint) bool
	note   string
}

var rubric = []check{
	{2, func(page string, bp *Blueprint) bool { return strings.Contains(page, "<title>") && bp.Title != "" }, "add a descriptive page title"},
	{1, func(page string, _ *Blueprint) bool { return strings.Contains(page, "viewport") }, "add a responsive viewport meta tag"},
	{1, func(page string, _ *Blueprint) bool { return strings.Contains(page, "<nav>") }, "add navigation linking the sections"},
	{2, func(_ string, bp *Blueprint) bool { return len(bp.Sections) >= 3 }, "plan at least three content sections"},
	{1, func(_ string, bp *Blueprint) bool { return hasSection(bp, "contact") }, "add a contact section with a call to action"},
	{1, func(page string, _ *Blueprint) bool { return strings.Contains(page, "<img") }, "add a hero image to the header"},
	{1, func(page string, _ *Blueprint) bool { return strings.Contains(page, "stylesheet") }, "link a stylesheet"},
	{1, func(_ string, bp *Blueprint) bool { return allBodiesSubstantial(bp) }, "expand thin section copy in about and services"},
}

// Review implements Reviewer.
func (r *RubricReviewer) Review(_ context.Context, bp *Blueprint, art *Artifact) (Review, error) {
	if bp == nil || art == nil {
		return Review{}, fmt.Errorf("nothing to review")
	}
	page := string(art.Files["index.html"])
	var rev Review
	for _, c := range rubric {
		if c.passed(page, bp) {
			rev.Score += c.points
		} else {
			rev.Notes = append(rev.Notes, c.note)
		}
	}
	if rev.Score > 10 {
		rev.Score = 10
	}
	return rev, nil
}

func hasSection(bp *Blueprint, name string) bool {
	for _, s := range bp.Sections {
		if s.Name == name {
			return true
		}
	}
	return false
}

func allBodiesSubstantial(bp *Blueprint) bool {
	for _, s := range bp.Sections {
		if len(strings.Fields(s.Body)) < 8 {
			return false
		}
	}
	return len(bp.Sections) > 0
}

var _ Reviewer = (*RubricReviewer)(nil)
