package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
	"github.com/otherjamesbrown/judgeroute/pkg/portal"
)

// fakeGetter serves canned pages keyed by URL.
type fakeGetter struct {
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeGetter) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	html, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// fixedStrategy always returns the same primary URL.
type fixedStrategy string

func (s fixedStrategy) PrimaryURL(cnj.ID) string { return string(s) }

const (
	base       = "http://portal.test"
	primary    = base + "/primary"
	principalU = base + "/cpopg/show.do?processo.codigo=P1"
)

func testID(t *testing.T) cnj.ID {
	t.Helper()
	id, err := cnj.Normalize("1234567-89.2023.8.26.0100")
	require.NoError(t, err)
	return id
}

func newTestResolver(g *fakeGetter) *Resolver {
	return New(g, WithStrategy(fixedStrategy(primary)), WithBaseURL(base))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		pages     map[string]string
		errs      map[string]error
		want      Outcome
		wantCalls int
	}{
		{
			name:      "judge on primary page",
			pages:     map[string]string{primary: `<span id="juizProcesso">  Dr. João   Silva </span>`},
			want:      Found("Dr. João Silva"),
			wantCalls: 1,
		},
		{
			name:      "no judge field",
			pages:     map[string]string{primary: `<html><body>nada</body></html>`},
			want:      NotFound(DetailJudgeFieldMissing),
			wantCalls: 1,
		},
		{
			name:      "empty judge field counts as absent",
			pages:     map[string]string{primary: `<span id="juizProcesso">   </span>`},
			want:      NotFound(DetailJudgeFieldMissing),
			wantCalls: 1,
		},
		{
			name: "principal page is authoritative",
			pages: map[string]string{
				primary:    `<a class="processoPrinc" href="/cpopg/show.do?processo.codigo=P1">principal</a><span id="juizProcesso">Satellite</span>`,
				principalU: `<span id="juizProcesso">Dra. Maria</span>`,
			},
			want:      Found("Dra. Maria"),
			wantCalls: 2,
		},
		{
			name: "principal page without judge ignores primary judge",
			pages: map[string]string{
				primary:    `<a class="processoPrinc" href="/cpopg/show.do?processo.codigo=P1">principal</a><span id="juizProcesso">Satellite</span>`,
				principalU: `<html></html>`,
			},
			want:      NotFound(DetailPrincipalNoJudge),
			wantCalls: 2,
		},
		{
			name:      "principal link without href",
			pages:     map[string]string{primary: `<a class="processoPrinc">principal</a><span id="juizProcesso">Satellite</span>`},
			want:      NotFound(DetailPrincipalLinkMissing),
			wantCalls: 1,
		},
		{
			name:      "blocked on primary",
			errs:      map[string]error{primary: &jrerrors.FetchError{Kind: jrerrors.FetchBlocked, URL: primary}},
			want:      Blocked((&jrerrors.FetchError{Kind: jrerrors.FetchBlocked, URL: primary}).Error()),
			wantCalls: 1,
		},
		{
			name: "principal fetch exhausted",
			pages: map[string]string{
				primary: `<a class="processoPrinc" href="/cpopg/show.do?processo.codigo=P1">principal</a>`,
			},
			errs: map[string]error{principalU: &jrerrors.FetchError{
				Kind: jrerrors.FetchRetriesExhausted, URL: principalU, Attempts: 3,
				Cause: &jrerrors.FetchError{Kind: jrerrors.FetchHTTPStatus, URL: principalU, StatusCode: 500},
			}},
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGetter{pages: tt.pages, errs: tt.errs}
			got := newTestResolver(g).Resolve(context.Background(), testID(t))

			if tt.want.Kind == KindUnresolved {
				assert.Equal(t, KindTransientError, got.Kind)
				assert.Contains(t, got.Detail, "retries_exhausted")
			} else {
				assert.Equal(t, tt.want, got)
			}
			assert.Len(t, g.calls, tt.wantCalls)
		})
	}
}

func TestResolve_PrincipalNeverFoundWithoutJudge(t *testing.T) {
	// Whatever the primary page says, a principal page without the judge
	// field must not produce a Found outcome.
	primaries := []string{
		`<a class="processoPrinc" href="/p">x</a>`,
		`<a class="processoPrinc" href="/p">x</a><span id="juizProcesso">Primary Judge</span>`,
		`<span id="juizProcesso">Primary Judge</span><a class="processoPrinc" href="">x</a>`,
	}
	for _, p := range primaries {
		g := &fakeGetter{pages: map[string]string{
			primary:     p,
			base + "/p": `<div>sem juiz</div>`,
		}}
		got := newTestResolver(g).Resolve(context.Background(), testID(t))
		assert.False(t, got.IsFound(), "primary %q", p)
		assert.True(t, got.Resolved())
	}
}

func TestResolve_CustomSelectors(t *testing.T) {
	g := &fakeGetter{pages: map[string]string{primary: `<td class="magistrado">Dr. X</td>`}}
	r := New(g, WithStrategy(fixedStrategy(primary)), WithSelectors(Selectors{Judge: "td.magistrado"}))
	assert.Equal(t, Found("Dr. X"), r.Resolve(context.Background(), testID(t)))
}

func TestResolve_ThroughFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cpopg/search.do":
			assert.Equal(t, "0100", r.URL.Query().Get("foroNumeroUnificado"))
			fmt.Fprint(w, `<a class="processoPrinc" href="/cpopg/show.do?processo.codigo=P1">principal</a>`)
		case "/cpopg/show.do":
			fmt.Fprint(w, `<span id="juizProcesso">Dra. Beatriz</span>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := portal.NewFetcher(portal.Config{MaxAttempts: 1}, portal.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	r := New(f, WithBaseURL(srv.URL), WithStrategy(portal.SearchStrategy{BaseURL: srv.URL}))

	assert.Equal(t, Found("Dra. Beatriz"), r.Resolve(context.Background(), testID(t)))
}

func TestResolve_ServerErrorsBecomeTransient(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := portal.NewFetcher(portal.Config{}, portal.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	r := New(f, WithStrategy(portal.ShowStrategy{BaseURL: srv.URL}))

	got := r.Resolve(context.Background(), testID(t))
	assert.Equal(t, KindTransientError, got.Kind)
	assert.Equal(t, 3, hits)
}
