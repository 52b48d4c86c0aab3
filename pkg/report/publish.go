package report

import (
	"context"
	"fmt"

	"github.com/otherjamesbrown/judgeroute/pkg/artifacts"
	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/logging"
)

// Artifact is one published document.
type Artifact struct {
	Judge    string `json:"judge,omitempty" yaml:"judge,omitempty"`
	Format   string `json:"format" yaml:"format"`
	Name     string `json:"name" yaml:"name"`
	Location string `json:"location" yaml:"location"`
	Records  int    `json:"records" yaml:"records"`
}

// Publisher renders reports and hands them to an artifact store.
type Publisher struct {
	store     artifacts.Store
	renderers []Renderer
	summary   bool
	logger    logging.Logger
}

// PublishOption configures a Publisher.
type PublishOption func(*Publisher)

// WithSummary also publishes the consolidated CSV.
func WithSummary(enabled bool) PublishOption {
	return func(p *Publisher) { p.summary = enabled }
}

// WithPublishLogger sets the logger.
func WithPublishLogger(l logging.Logger) PublishOption {
	return func(p *Publisher) { p.logger = l }
}

// NewPublisher creates a Publisher writing every renderer's output to store.
func NewPublisher(store artifacts.Store, renderers []Renderer, opts ...PublishOption) *Publisher {
	p := &Publisher{store: store, renderers: renderers, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish renders and stores one document per judge and format. Judges
// whose names fold to the same file name get numbered suffixes so no
// document replaces another. The returned artifacts are ordered by format,
// then judge.
func (p *Publisher) Publish(ctx context.Context, records []batch.ProcessRecord, meta Meta) ([]Artifact, error) {
	groups := Group(records)
	counts := make(map[string]int, len(groups))
	judges := make([]string, 0, len(groups))
	for _, g := range groups {
		counts[g.Judge] = g.Count()
		judges = append(judges, g.Judge)
	}
	stems := uniqueStems(judges)

	var out []Artifact
	for _, r := range p.renderers {
		docs, err := GroupAndRender(ctx, records, r, meta)
		if err != nil {
			return out, err
		}
		for _, g := range groups {
			name := stemName(stems[g.Judge], meta.Date, r.Ext())
			loc, err := p.store.Put(ctx, name, docs[g.Judge], ContentType(r.Ext()))
			if err != nil {
				return out, fmt.Errorf("publish %s: %w", name, err)
			}
			p.logger.Info("Report published",
				logging.F("judge", g.Judge),
				logging.F("format", r.Ext()),
				logging.F("records", counts[g.Judge]),
				logging.F("location", loc))
			out = append(out, Artifact{Judge: g.Judge, Format: r.Ext(), Name: name, Location: loc, Records: counts[g.Judge]})
		}
	}

	if p.summary {
		b, err := Summary(records)
		if err != nil {
			return out, err
		}
		name := SummaryName(meta.Date)
		loc, err := p.store.Put(ctx, name, b, artifacts.ContentTypeCSV)
		if err != nil {
			return out, fmt.Errorf("publish %s: %w", name, err)
		}
		p.logger.Info("Summary published", logging.F("location", loc), logging.F("records", len(records)))
		out = append(out, Artifact{Format: "csv", Name: name, Location: loc, Records: len(records)})
	}
	return out, nil
}

// ContentType maps a renderer extension to its MIME type.
func ContentType(ext string) string {
	switch ext {
	case "pdf":
		return artifacts.ContentTypePDF
	case "docx":
		return artifacts.ContentTypeDocx
	case "csv":
		return artifacts.ContentTypeCSV
	default:
		return "application/octet-stream"
	}
}

// RendererFor returns the renderer for a format name.
func RendererFor(format string) (Renderer, error) {
	switch format {
	case "pdf":
		return NewPDFRenderer(), nil
	case "docx", "word":
		return NewDocxRenderer(), nil
	default:
		return nil, fmt.Errorf("unknown report format %q (want pdf or docx)", format)
	}
}
