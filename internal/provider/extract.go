package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"genserver/internal/domain"
)

// Extraction is the classified result of walking a provider payload.
type Extraction struct {
	Media    []string
	Covers   []string
	Duration *float64
}

// Outputs converts the extraction into normalized job outputs, media first.
func (e Extraction) Outputs() []domain.Output {
	out := make([]domain.Output, 0, len(e.Media)+len(e.Covers))
	for _, u := range e.Media {
		out = append(out, domain.Output{URL: u, Role: domain.OutputRolePrimary})
	}
	for _, u := range e.Covers {
		out = append(out, domain.Output{URL: u, Role: domain.OutputRoleCover})
	}
	return out
}

// Extractor classifies provider result payloads. Providers with predictable
// schemas can register their own in place of the generic walk.
type Extractor interface {
	Extract(raw json.RawMessage) (Extraction, error)
}

var mediaExtensions = map[string]struct{}{
	".mp4": {}, ".webm": {}, ".mov": {}, ".gif": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".webp": {},
	".html": {}, ".mp3": {}, ".wav": {},
}

var mediaKeyHints = []string{"video", "image", "media", "output", "url", "file", "asset"}

var coverKeyHints = []string{"thumb", "cover", "poster", "preview", "still"}

var durationKeys = map[string]struct{}{
	"duration": {}, "seconds": {}, "length": {},
}

// TreeExtractor walks an arbitrarily nested payload and classifies every
// string leaf by extension and key-name hints. The walk visits object keys in
// sorted order so equivalent payloads always classify identically regardless
// of key order on the wire.
type TreeExtractor struct{}

// Extract implements Extractor.
func (TreeExtractor) Extract(raw json.RawMessage) (Extraction, error) {
	var root any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &root); err != nil {
			return Extraction{}, fmt.Errorf("decode provider payload: %w", err)
		}
	}
	var ex Extraction
	seen := make(map[string]struct{})
	walk(root, "", &ex, seen)
	sort.Strings(ex.Media)
	sort.Strings(ex.Covers)
	return ex, nil
}

func walk(node any, key string, ex *Extraction, seen map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(v[k], k, ex, seen)
		}
	case []any:
		for _, item := range v {
			walk(item, key, ex, seen)
		}
	case string:
		classifyString(v, key, ex, seen)
	case float64:
		if _, ok := durationKeys[strings.ToLower(key)]; ok && ex.Duration == nil && v > 0 {
			d := v
			ex.Duration = &d
		}
	}
}

func classifyString(value, key string, ex *Extraction, seen map[string]struct{}) {
	if !looksLikeURL(value) {
		return
	}
	if _, dup := seen[value]; dup {
		return
	}
	lowKey := strings.ToLower(key)
	switch {
	case hasAnyHint(lowKey, coverKeyHints):
		seen[value] = struct{}{}
		ex.Covers = append(ex.Covers, value)
	case hasMediaExtension(value) || hasAnyHint(lowKey, mediaKeyHints):
		seen[value] = struct{}{}
		ex.Media = append(ex.Media, value)
	}
}

func looksLikeURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

func hasMediaExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, ok := mediaExtensions[ext]
	return ok
}

func hasAnyHint(key string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(key, h) {
			return true
		}
	}
	return false
}
