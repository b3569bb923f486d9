package refine

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"golang.org/x/sync/errgroup"

	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/provider"
	"genserver/internal/reconcile"
)

const sitePage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="styles.css">
</head>
<body class="theme-{{.Theme}}">
<header>
<h1>{{.Title}}</h1>
<p class="tagline">{{.Tagline}}</p>
{{if .HeroImage}}<img src="{{.HeroImage}}" alt="{{.Title}}">{{end}}
</header>
<nav>
{{range .Sections}}<a href="#{{.Name}}">{{.Heading}}</a>
{{end}}</nav>
<main>
{{range .Sections}}<section id="{{.Name}}">
<h2>{{.Heading}}</h2>
<p>{{.Body}}</p>
</section>
{{end}}</main>
<footer><p>&copy; {{.Title}}</p></footer>
</body>
</html>
`

const siteStyles = `body{font-family:sans-serif;margin:0}
header{padding:4rem 2rem;text-align:center}
nav{display:flex;gap:1rem;justify-content:center;padding:1rem}
section{padding:2rem;max-width:48rem;margin:0 auto}
.theme-dark{background:#111;color:#eee}
`

var pageTemplate = template.Must(template.New("site").Parse(sitePage))

// SiteBuilder renders a blueprint into a static site bundle. When an image
// adapter is configured it generates a hero image for the site through the
// regular submit/await path; a hero failure degrades to a text-only page
// rather than failing the build.
type SiteBuilder struct {
	imageAdapter provider.Adapter
	engine       *reconcile.Engine
	logger       infra.Logger
}

// NewSiteBuilder builds a site builder. imageAdapter and engine may be nil to
// skip sub-asset generation entirely.
func NewSiteBuilder(imageAdapter provider.Adapter, engine *reconcile.Engine, logger infra.Logger) *SiteBuilder {
	return &SiteBuilder{imageAdapter: imageAdapter, engine: engine, logger: logger}
}

type pageData struct {
	*Blueprint
	HeroImage string
}

// Build implements Builder.
func (b *SiteBuilder) Build(ctx context.Context, bp *Blueprint) (*Artifact, error) {
	data := pageData{Blueprint: bp}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hero, err := b.heroImage(gctx, bp)
		if err != nil {
			b.logger.Warn().Err(err).Msg("refine: hero image generation failed, building without it")
			return nil
		}
		data.HeroImage = hero
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var page bytes.Buffer
	if err := pageTemplate.Execute(&page, data); err != nil {
		return nil, fmt.Errorf("render site: %w", err)
	}
	return &Artifact{Files: map[string][]byte{
		"index.html": page.Bytes(),
		"styles.css": []byte(siteStyles),
	}}, nil
}

// heroImage submits an image job for the site hero and waits for it.
func (b *SiteBuilder) heroImage(ctx context.Context, bp *Blueprint) (string, error) {
	if b.imageAdapter == nil || b.engine == nil {
		return "", nil
	}
	job, err := b.engine.Submit(ctx, b.imageAdapter, provider.Input{
		Kind:   domain.ResourceImage,
		Prompt: fmt.Sprintf("hero banner for %s: %s", bp.Title, bp.Tagline),
		Params: map[string]any{"aspect_ratio": "16:9"},
	}, "refine")
	if err != nil {
		return "", err
	}
	job, err = b.engine.Await(ctx, b.imageAdapter, job.ID)
	if err != nil {
		return "", err
	}
	primary := job.PrimaryOutputs()
	if len(primary) == 0 {
		return "", nil
	}
	return primary[0].URL, nil
}

var _ Builder = (*SiteBuilder)(nil)
