// Package portal talks to the e-SAJ portal. It is the only package that
// performs network I/O against the court.
package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
	"github.com/otherjamesbrown/judgeroute/pkg/logging"
	"github.com/otherjamesbrown/judgeroute/pkg/observability"
)

// Default fetch settings.
const (
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultTimeout           = 10 * time.Second
	DefaultMaxAttempts       = 3
	DefaultBackoff           = 2 * time.Second
	DefaultRequestsPerMinute = 40

	// BlockToken marks a captcha challenge page.
	BlockToken = "captcha"

	maxBodyBytes = 8 << 20
)

// Config controls the fetch policy.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	// RequestsPerMinute caps every request made by the fetcher, retries
	// and principal pages included. Zero disables the ceiling.
	RequestsPerMinute int
}

// DefaultConfig returns the default fetch policy.
func DefaultConfig() Config {
	return Config{
		UserAgent:         DefaultUserAgent,
		Timeout:           DefaultTimeout,
		MaxAttempts:       DefaultMaxAttempts,
		Backoff:           DefaultBackoff,
		RequestsPerMinute: DefaultRequestsPerMinute,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Getter fetches a URL and returns the parsed page.
type Getter interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// Fetcher performs GETs with timeout, retry and captcha detection.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	sleep   Sleeper
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  logging.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. Its Timeout is overridden by
// Config.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) { f.sleep = s }
}

// WithMetrics records attempts into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithTracer emits a span per fetch.
func WithTracer(t *observability.Tracer) Option {
	return func(f *Fetcher) { f.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a fetcher. Zero fields in cfg take their defaults; a
// negative Backoff disables the wait between attempts.
func NewFetcher(cfg Config, opts ...Option) *Fetcher {
	def := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	switch {
	case cfg.Backoff == 0:
		cfg.Backoff = def.Backoff
	case cfg.Backoff < 0:
		cfg.Backoff = 0
	}

	f := &Fetcher{
		cfg:    cfg,
		sleep:  SleepContext,
		tracer: observability.NewTracer(),
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if cfg.RequestsPerMinute > 0 {
		f.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return f
}

// Fetch GETs url and parses the body. Non-2xx answers and transport errors
// are retried up to MaxAttempts with a fixed backoff. A body containing the
// captcha token fails at once with a FetchBlocked error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	ctx, span := f.tracer.StartFetchSpan(ctx, url)
	defer span.End()

	start := time.Now()
	var last *jrerrors.FetchError
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			f.logger.Debug("Retrying portal request",
				logging.F("url", url),
				logging.F("attempt", attempt),
				logging.Err(last))
			if err := f.sleep(ctx, f.cfg.Backoff); err != nil {
				return nil, f.fail(span, &jrerrors.FetchError{
					Kind: jrerrors.FetchRetriesExhausted, URL: url, StatusCode: last.StatusCode,
					Attempts: attempt - 1, Elapsed: time.Since(start), Cause: last,
				})
			}
		}

		body, status, ferr := f.attempt(ctx, url)
		span.SetAttributes(attribute.Int(observability.AttrAttempt, attempt))
		if status > 0 {
			span.SetAttributes(attribute.Int(observability.AttrStatusCode, status))
		}

		if ferr == nil {
			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
			if err != nil {
				// The html parser recovers from bad markup; this is a read failure.
				ferr = &jrerrors.FetchError{Kind: jrerrors.FetchTransport, URL: url, StatusCode: status, Cause: err}
			} else {
				observability.Succeed(span)
				return doc, nil
			}
		}

		ferr.Attempts = attempt
		ferr.Elapsed = time.Since(start)
		if ferr.Kind == jrerrors.FetchBlocked {
			f.logger.Warn("Portal answered with a captcha challenge", logging.F("url", url))
			return nil, f.fail(span, ferr)
		}
		last = ferr
		if ctx.Err() != nil || !jrerrors.IsRetryable(ferr.Kind) {
			break
		}
	}

	return nil, f.fail(span, &jrerrors.FetchError{
		Kind:       jrerrors.FetchRetriesExhausted,
		URL:        url,
		StatusCode: last.StatusCode,
		Attempts:   last.Attempts,
		Elapsed:    time.Since(start),
		Cause:      last,
	})
}

func (f *Fetcher) fail(span trace.Span, err *jrerrors.FetchError) error {
	observability.Fail(span, err, string(err.Kind))
	return err
}

// attempt performs a single GET. It returns the body on a 2xx answer.
func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, int, *jrerrors.FetchError) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, 0, jrerrors.ClassifyTransport(err, url)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &jrerrors.FetchError{Kind: jrerrors.FetchTransport, URL: url, Cause: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		fe := jrerrors.ClassifyTransport(err, url)
		f.metrics.ObserveFetch(string(fe.Kind), time.Since(start))
		return nil, 0, fe
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		fe := jrerrors.ClassifyTransport(err, url)
		fe.StatusCode = resp.StatusCode
		f.metrics.ObserveFetch(string(fe.Kind), time.Since(start))
		return nil, resp.StatusCode, fe
	}

	if containsFold(body, BlockToken) {
		f.metrics.ObserveFetch(string(jrerrors.FetchBlocked), time.Since(start))
		return nil, resp.StatusCode, &jrerrors.FetchError{Kind: jrerrors.FetchBlocked, URL: url, StatusCode: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.metrics.ObserveFetch(string(jrerrors.FetchHTTPStatus), time.Since(start))
		return nil, resp.StatusCode, &jrerrors.FetchError{Kind: jrerrors.FetchHTTPStatus, URL: url, StatusCode: resp.StatusCode}
	}

	f.metrics.ObserveFetch("ok", time.Since(start))
	return body, resp.StatusCode, nil
}

func containsFold(body []byte, token string) bool {
	return bytes.Contains(bytes.ToLower(body), []byte(strings.ToLower(token)))
}

// String describes the fetch policy for logs.
func (c Config) String() string {
	return fmt.Sprintf("timeout=%s attempts=%d backoff=%s rpm=%d", c.Timeout, c.MaxAttempts, c.Backoff, c.RequestsPerMinute)
}
