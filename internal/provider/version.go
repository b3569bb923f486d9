package provider

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ModelDescriber answers the provider's model-description endpoint.
type ModelDescriber interface {
	LatestVersion(ctx context.Context, model string) (string, error)
}

// VersionResolver caches resolved model versions for the process lifetime so
// repeated submissions skip the discovery round-trip. Pinned versions from
// configuration are used verbatim. Concurrent discovery for the same model is
// collapsed into one upstream call.
type VersionResolver struct {
	describer ModelDescriber
	pinned    map[string]string
	cache     *lru.Cache[string, string]
	group     singleflight.Group
}

// NewVersionResolver builds a resolver. pinned maps model name to an
// explicitly configured version and may be nil.
func NewVersionResolver(describer ModelDescriber, pinned map[string]string) (*VersionResolver, error) {
	// The set of distinct models is small and stable; the bound exists only
	// so a misbehaving caller cannot grow the cache without limit.
	cache, err := lru.New[string, string](128)
	if err != nil {
		return nil, fmt.Errorf("version cache: %w", err)
	}
	return &VersionResolver{describer: describer, pinned: pinned, cache: cache}, nil
}

// Resolve returns the version to submit for the model.
func (r *VersionResolver) Resolve(ctx context.Context, model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", fmt.Errorf("model name is required")
	}
	if v, ok := r.pinned[model]; ok && v != "" {
		return v, nil
	}
	if v, ok := r.cache.Get(model); ok {
		return v, nil
	}
	v, err, _ := r.group.Do(model, func() (any, error) {
		version, err := r.describer.LatestVersion(ctx, model)
		if err != nil {
			return "", err
		}
		if version == "" {
			return "", fmt.Errorf("model %s has no published version", model)
		}
		r.cache.Add(model, version)
		return version, nil
	})
	if err != nil {
		return "", fmt.Errorf("resolve version for %s: %w", model, err)
	}
	return v.(string), nil
}
