package provider

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"
)

// FieldSpec validates and normalizes one user-supplied parameter. Exactly one
// of the shapes applies per field.
type FieldSpec struct {
	Number *NumberSpec
	Enum   *EnumSpec
	Text   *TextSpec
}

// NumberSpec clamps a numeric field to [Min,Max] and snaps it onto a step
// grid anchored at Min. When Allowed is set the value instead snaps to its
// nearest neighbor in the list, for fields whose valid values are not evenly
// spaced.
type NumberSpec struct {
	Min     float64
	Max     float64
	Step    float64
	Allowed []float64
	Default float64
}

// EnumSpec whitelists string values, substituting Default for anything else.
type EnumSpec struct {
	Allowed []string
	Default string
}

// TextSpec trims, collapses whitespace, and caps free text at MaxLen runes.
type TextSpec struct {
	MaxLen int
}

// Schema maps parameter names to their specs. Parameters without a spec are
// dropped so nothing unvetted reaches a provider.
type Schema map[string]FieldSpec

// Normalize returns a cleaned copy of params per the schema. Normalization is
// idempotent: applying it to an already-normalized map yields the same map.
func (s Schema) Normalize(params map[string]any) map[string]any {
	out := make(map[string]any, len(s))
	for name, spec := range s {
		raw, ok := params[name]
		switch {
		case spec.Number != nil:
			v, isNum := toFloat(raw)
			if !ok || !isNum {
				v = spec.Number.Default
			}
			out[name] = spec.Number.Clamp(v)
		case spec.Enum != nil:
			v, _ := raw.(string)
			out[name] = spec.Enum.Pick(v)
		case spec.Text != nil:
			v, _ := raw.(string)
			if cleaned := spec.Text.Clean(v); cleaned != "" {
				out[name] = cleaned
			}
		}
	}
	return out
}

// Clamp restricts v to [Min,Max] and snaps it to the nearest step.
func (n *NumberSpec) Clamp(v float64) float64 {
	if len(n.Allowed) > 0 {
		return SnapAllowed(v, n.Allowed)
	}
	if v < n.Min {
		v = n.Min
	}
	if v > n.Max {
		v = n.Max
	}
	if n.Step > 0 {
		v = n.Min + math.Round((v-n.Min)/n.Step)*n.Step
		if v > n.Max {
			v -= n.Step
		}
	}
	return v
}

// Pick returns v when whitelisted, the default otherwise.
func (e *EnumSpec) Pick(v string) string {
	for _, a := range e.Allowed {
		if a == v {
			return v
		}
	}
	return e.Default
}

// Clean trims, collapses internal whitespace, and caps length.
func (t *TextSpec) Clean(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	if t.MaxLen > 0 && utf8.RuneCountInString(v) > t.MaxLen {
		runes := []rune(v)
		v = strings.TrimSpace(string(runes[:t.MaxLen]))
	}
	return v
}

// SnapAllowed snaps v to the nearest value in allowed. Used for fields whose
// valid values are an explicit list rather than a step grid, such as video
// durations of 4, 6, or 8 seconds.
func SnapAllowed(v float64, allowed []float64) float64 {
	if len(allowed) == 0 {
		return v
	}
	best := allowed[0]
	for _, a := range allowed[1:] {
		if math.Abs(a-v) < math.Abs(best-v) {
			best = a
		}
	}
	return best
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
