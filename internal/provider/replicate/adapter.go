package replicate

import (
	"context"
	"fmt"

	"genserver/internal/domain"
	"genserver/internal/provider"
)

// Adapter binds one resource kind to a model on the prediction API. It
// normalizes caller input against the kind's schema before anything leaves
// the process.
type Adapter struct {
	client   *Client
	kind     domain.ResourceKind
	model    string
	schema   provider.Schema
	resolver *provider.VersionResolver
	prompt   provider.TextSpec
}

// NewAdapter builds an adapter for the given kind and model. pinnedVersion
// may be empty, in which case the latest published version is discovered and
// cached on first submit.
func NewAdapter(client *Client, kind domain.ResourceKind, model, pinnedVersion string) (*Adapter, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("unsupported resource kind %q", kind)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: model for %s", domain.ErrConfigMissing, kind)
	}
	var pinned map[string]string
	if pinnedVersion != "" {
		pinned = map[string]string{model: pinnedVersion}
	}
	resolver, err := provider.NewVersionResolver(client, pinned)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		client:   client,
		kind:     kind,
		model:    model,
		schema:   SchemaFor(kind),
		resolver: resolver,
		prompt:   provider.TextSpec{MaxLen: 2000},
	}, nil
}

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return "replicate" }

// Kind implements provider.Adapter.
func (a *Adapter) Kind() domain.ResourceKind { return a.kind }

// ResolveVersion implements provider.Adapter.
func (a *Adapter) ResolveVersion(ctx context.Context) (string, error) {
	return a.resolver.Resolve(ctx, a.model)
}

// Submit implements provider.Adapter.
func (a *Adapter) Submit(ctx context.Context, in provider.Input) (provider.JobHandle, error) {
	version, err := a.ResolveVersion(ctx)
	if err != nil {
		return provider.JobHandle{}, err
	}
	input := a.schema.Normalize(in.Params)
	if p := a.prompt.Clean(in.Prompt); p != "" {
		input["prompt"] = p
	}
	if in.ReferenceURL != "" {
		input["image"] = in.ReferenceURL
	}
	pred, err := a.client.CreatePrediction(ctx, version, input)
	if err != nil {
		return provider.JobHandle{}, err
	}
	return provider.JobHandle{Provider: a.Name(), JobID: pred.ID, Version: version}, nil
}

// FetchStatus implements provider.Adapter.
func (a *Adapter) FetchStatus(ctx context.Context, jobID string) (provider.StatusSnapshot, error) {
	pred, err := a.client.GetPrediction(ctx, jobID)
	if err != nil {
		return provider.StatusSnapshot{}, err
	}
	return provider.StatusSnapshot{
		Status: MapStatus(pred.Status),
		Raw:    pred.Output,
		Error:  pred.Error,
	}, nil
}

// SchemaFor returns the parameter schema for a resource kind. Every numeric
// field is clamped and snapped, every enum checked against a whitelist, every
// free-text field trimmed and capped.
func SchemaFor(kind domain.ResourceKind) provider.Schema {
	switch kind {
	case domain.ResourceVideo:
		return provider.Schema{
			"duration": {Number: &provider.NumberSpec{Allowed: []float64{4, 6, 8}, Default: 4}},
			"fps":      {Number: &provider.NumberSpec{Min: 12, Max: 30, Step: 6, Default: 24}},
			"aspect_ratio": {Enum: &provider.EnumSpec{
				Allowed: []string{"16:9", "9:16", "1:1"},
				Default: "16:9",
			}},
			"negative_prompt": {Text: &provider.TextSpec{MaxLen: 500}},
		}
	case domain.ResourceImage:
		return provider.Schema{
			"num_outputs":    {Number: &provider.NumberSpec{Min: 1, Max: 4, Step: 1, Default: 1}},
			"guidance_scale": {Number: &provider.NumberSpec{Min: 1, Max: 20, Step: 0.5, Default: 7.5}},
			"aspect_ratio": {Enum: &provider.EnumSpec{
				Allowed: []string{"1:1", "4:3", "3:4", "16:9", "9:16"},
				Default: "1:1",
			}},
			"negative_prompt": {Text: &provider.TextSpec{MaxLen: 500}},
		}
	case domain.ResourceSite:
		return provider.Schema{
			"max_sections": {Number: &provider.NumberSpec{Min: 1, Max: 8, Step: 1, Default: 4}},
			"theme": {Enum: &provider.EnumSpec{
				Allowed: []string{"light", "dark", "brand"},
				Default: "light",
			}},
			"palette": {Text: &provider.TextSpec{MaxLen: 120}},
		}
	default:
		return provider.Schema{}
	}
}

var _ provider.Adapter = (*Adapter)(nil)
