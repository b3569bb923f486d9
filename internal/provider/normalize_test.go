package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberSpecClamp(t *testing.T) {
	tests := []struct {
		name string
		spec NumberSpec
		in   float64
		want float64
	}{
		{"below min", NumberSpec{Min: 1, Max: 10, Step: 1}, -5, 1},
		{"above max", NumberSpec{Min: 1, Max: 10, Step: 1}, 42, 10},
		{"snaps to grid", NumberSpec{Min: 0, Max: 100, Step: 25}, 30, 25},
		{"snaps up", NumberSpec{Min: 0, Max: 100, Step: 25}, 40, 50},
		{"fractional step", NumberSpec{Min: 0.5, Max: 2, Step: 0.5}, 1.2, 1},
		{"no step passes through", NumberSpec{Min: 0, Max: 10}, 3.7, 3.7},
		{"snap never exceeds max", NumberSpec{Min: 0, Max: 7, Step: 3}, 7, 6},
		{"allowed list nearest", NumberSpec{Allowed: []float64{4, 6, 8}}, 7, 6},
		{"allowed list clamps low", NumberSpec{Allowed: []float64{4, 6, 8}}, 0, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.spec.Clamp(tc.in), 1e-9)
		})
	}
}

func TestClampIsIdempotent(t *testing.T) {
	specs := []NumberSpec{
		{Min: 1, Max: 10, Step: 1},
		{Min: 0, Max: 100, Step: 25},
		{Min: 0.5, Max: 2, Step: 0.5},
	}
	inputs := []float64{-3, 0, 0.7, 1.2, 5, 33, 99, 1000}
	for _, spec := range specs {
		for _, in := range inputs {
			once := spec.Clamp(in)
			assert.InDelta(t, once, spec.Clamp(once), 1e-9,
				"clamp(clamp(%v)) must equal clamp(%v) for %+v", in, in, spec)
		}
	}
}

func TestSnapAllowedNearestNeighbor(t *testing.T) {
	allowed := []float64{4, 6, 8}
	assert.Equal(t, 6.0, SnapAllowed(7, allowed))
	assert.Equal(t, 4.0, SnapAllowed(1, allowed))
	assert.Equal(t, 8.0, SnapAllowed(30, allowed))
	assert.Equal(t, 6.0, SnapAllowed(6, allowed))
}

func TestEnumSpecPick(t *testing.T) {
	spec := EnumSpec{Allowed: []string{"16:9", "9:16", "1:1"}, Default: "16:9"}
	assert.Equal(t, "9:16", spec.Pick("9:16"))
	assert.Equal(t, "16:9", spec.Pick("21:9"))
	assert.Equal(t, "16:9", spec.Pick(""))
}

func TestTextSpecClean(t *testing.T) {
	spec := TextSpec{MaxLen: 10}
	assert.Equal(t, "a b c", spec.Clean("  a \t b\n\nc  "))
	assert.Equal(t, "0123456789", spec.Clean("01234567890000"))
	assert.Equal(t, "", spec.Clean("   "))
}

func TestSchemaNormalize(t *testing.T) {
	schema := Schema{
		"duration":     {Number: &NumberSpec{Min: 2, Max: 10, Step: 2, Default: 4}},
		"aspect_ratio": {Enum: &EnumSpec{Allowed: []string{"16:9", "9:16"}, Default: "16:9"}},
		"prompt":       {Text: &TextSpec{MaxLen: 50}},
	}
	got := schema.Normalize(map[string]any{
		"duration":     7.0,
		"aspect_ratio": "4:3",
		"prompt":       "  a  sunny   beach ",
		"injection":    "ignored",
	})
	require.Equal(t, map[string]any{
		"duration":     8.0,
		"aspect_ratio": "16:9",
		"prompt":       "a sunny beach",
	}, got)

	// Unknown fields never pass through.
	_, ok := got["injection"]
	assert.False(t, ok)

	// Round trip: normalizing the output changes nothing.
	assert.Equal(t, got, schema.Normalize(got))
}

func TestSchemaNormalizeDefaults(t *testing.T) {
	schema := Schema{
		"duration": {Number: &NumberSpec{Min: 2, Max: 10, Step: 2, Default: 4}},
		"style":    {Enum: &EnumSpec{Allowed: []string{"photo", "anime"}, Default: "photo"}},
	}
	got := schema.Normalize(map[string]any{"duration": "not a number"})
	assert.Equal(t, 4.0, got["duration"])
	assert.Equal(t, "photo", got["style"])
}
