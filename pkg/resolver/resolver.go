// Package resolver finds the presiding judge of a process on the portal.
//
// A process page may link to its "processo principal"; when it does, the
// judge of record is read from the principal page and the satellite page's
// own judge field is ignored.
package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"

	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
	"github.com/otherjamesbrown/judgeroute/pkg/logging"
	"github.com/otherjamesbrown/judgeroute/pkg/observability"
	"github.com/otherjamesbrown/judgeroute/pkg/portal"
)

// Default CSS selectors on e-SAJ process pages.
const (
	DefaultPrincipalSelector = "a.processoPrinc"
	DefaultJudgeSelector     = "span#juizProcesso"
)

// Selectors locate the principal link and the judge field.
type Selectors struct {
	Principal string
	Judge     string
}

// DefaultSelectors returns the e-SAJ selectors.
func DefaultSelectors() Selectors {
	return Selectors{Principal: DefaultPrincipalSelector, Judge: DefaultJudgeSelector}
}

// Resolver resolves judges through a portal.Getter.
type Resolver struct {
	getter   portal.Getter
	strategy portal.URLStrategy
	baseURL  string
	sel      Selectors
	tracer   *observability.Tracer
	logger   logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStrategy sets how the first page URL is built.
func WithStrategy(s portal.URLStrategy) Option {
	return func(r *Resolver) { r.strategy = s }
}

// WithBaseURL sets the base that principal hrefs are resolved against.
func WithBaseURL(u string) Option {
	return func(r *Resolver) { r.baseURL = u }
}

// WithSelectors overrides the page selectors. Empty fields keep the default.
func WithSelectors(s Selectors) Option {
	return func(r *Resolver) {
		if s.Principal != "" {
			r.sel.Principal = s.Principal
		}
		if s.Judge != "" {
			r.sel.Judge = s.Judge
		}
	}
}

// WithTracer emits a span per resolution.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver fetching pages through getter.
func New(getter portal.Getter, opts ...Option) *Resolver {
	r := &Resolver{
		getter:  getter,
		baseURL: portal.DefaultBaseURL,
		sel:     DefaultSelectors(),
		tracer:  observability.NewTracer(),
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.strategy == nil {
		r.strategy = portal.SearchStrategy{BaseURL: r.baseURL}
	}
	return r
}

// Resolve looks up the judge of id. It never returns KindUnresolved.
func (r *Resolver) Resolve(ctx context.Context, id cnj.ID) Outcome {
	ctx, span := r.tracer.StartResolveSpan(ctx, id.Display)
	defer span.End()

	out := r.resolve(ctx, id)
	span.SetAttributes(attribute.String(observability.AttrOutcome, out.Kind.String()))
	if out.IsFound() {
		observability.Succeed(span)
	}
	return out
}

func (r *Resolver) resolve(ctx context.Context, id cnj.ID) Outcome {
	primaryURL := r.strategy.PrimaryURL(id)
	doc, err := r.getter.Fetch(ctx, primaryURL)
	if err != nil {
		return fromFetchError(err)
	}

	if anchor := doc.Find(r.sel.Principal).First(); anchor.Length() > 0 {
		href, _ := anchor.Attr("href")
		target, err := portal.ResolveRef(r.baseURL, href)
		if err != nil {
			r.logger.Debug("Principal link without usable target",
				logging.F("process", id.Display),
				logging.Err(err))
			return NotFound(DetailPrincipalLinkMissing)
		}

		r.logger.Debug("Following principal process link",
			logging.F("process", id.Display),
			logging.F("url", target))
		principal, err := r.getter.Fetch(ctx, target)
		if err != nil {
			return fromFetchError(err)
		}
		if name, ok := r.judge(principal); ok {
			return Found(name)
		}
		return NotFound(DetailPrincipalNoJudge)
	}

	if name, ok := r.judge(doc); ok {
		return Found(name)
	}
	return NotFound(DetailJudgeFieldMissing)
}

// judge returns the trimmed judge text. Empty text counts as absent.
func (r *Resolver) judge(doc *goquery.Document) (string, bool) {
	sel := doc.Find(r.sel.Judge).First()
	if sel.Length() == 0 {
		return "", false
	}
	name := strings.Join(strings.Fields(sel.Text()), " ")
	return name, name != ""
}

func fromFetchError(err error) Outcome {
	if jrerrors.IsBlocked(err) {
		return Blocked(err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return TransientError("cancelled: " + err.Error())
	}
	return TransientError(err.Error())
}
