package refine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TemplatePlanner derives a blueprint from the brief with fixed templates.
// It is both the development-mode planner and the fallback when an upstream
// planning provider is unavailable; the controller flags fallback use on the
// project record either way.
type TemplatePlanner struct{}

// NewTemplatePlanner builds the deterministic planner.
func NewTemplatePlanner() *TemplatePlanner {
	return &TemplatePlanner{}
}

var baseSections = []Section{
	{Name: "hero", Heading: "Welcome"},
	{Name: "about", Heading: "About Us"},
	{Name: "services", Heading: "What We Offer"},
	{Name: "contact", Heading: "Get In Touch"},
}

// Plan implements Planner. Improvement notes from a previous review are
// folded in the crudest useful way: a note mentioning a section name by
// prefix restores or expands that section's body.
func (p *TemplatePlanner) Plan(_ context.Context, brief string, notes []string) (*Blueprint, error) {
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return nil, fmt.Errorf("brief is required")
	}
	title := cases.Title(language.Und).String(firstWords(brief, 6))
	bp := &Blueprint{
		Title:   title,
		Tagline: brief,
		Theme:   "light",
	}
	for _, s := range baseSections {
		section := s
		section.Body = fmt.Sprintf("%s — %s", section.Heading, brief)
		bp.Sections = append(bp.Sections, section)
	}
	for _, note := range notes {
		low := strings.ToLower(note)
		for i := range bp.Sections {
			if strings.Contains(low, bp.Sections[i].Name) {
				bp.Sections[i].Body += " " + strings.TrimSpace(note)
			}
		}
	}
	return bp, nil
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

var _ Planner = (*TemplatePlanner)(nil)
