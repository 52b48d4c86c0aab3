package portal

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
)

// DefaultBaseURL is the public e-SAJ host of the São Paulo state court.
const DefaultBaseURL = "https://esaj.tjsp.jus.br"

// Strategy names accepted by StrategyByName.
const (
	StrategySearch = "search"
	StrategyShow   = "show"
)

// URLStrategy builds the first page requested for a process.
type URLStrategy interface {
	PrimaryURL(id cnj.ID) string
}

// SearchStrategy queries the unified-number search form. The portal
// redirects a unique hit to the process page.
type SearchStrategy struct {
	BaseURL string
}

// PrimaryURL implements URLStrategy.
func (s SearchStrategy) PrimaryURL(id cnj.ID) string {
	// The portal expects the parameters in this order, with
	// valorConsultaNuUnificado repeated, so the query is assembled by hand.
	params := []struct{ k, v string }{
		{"conversationId", ""},
		{"cbPesquisa", "NUMPROC"},
		// The whole 17-digit query form, not just the NNNNNNN-DD.AAAA
		// prefix the form field is named after.
		{"numeroDigitoAnoUnificado", id.Query},
		{"foroNumeroUnificado", id.Forum},
		{"dadosConsulta.valorConsultaNuUnificado", id.Display},
		{"dadosConsulta.valorConsultaNuUnificado", "UNIFICADO"},
		{"dadosConsulta.valorConsulta", ""},
		{"dadosConsulta.tipoNuProcesso", "UNIFICADO"},
	}
	var b strings.Builder
	b.WriteString(base(s.BaseURL))
	b.WriteString("/cpopg/search.do?")
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.v))
	}
	return b.String()
}

// ShowStrategy opens the process page directly from the raw digits.
type ShowStrategy struct {
	BaseURL string
}

// PrimaryURL implements URLStrategy.
func (s ShowStrategy) PrimaryURL(id cnj.ID) string {
	return base(s.BaseURL) + "/cpopg/show.do?processo.numero=" + url.QueryEscape(id.Digits)
}

// StrategyByName returns the strategy configured as name.
func StrategyByName(name, baseURL string) (URLStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategySearch:
		return SearchStrategy{BaseURL: baseURL}, nil
	case StrategyShow:
		return ShowStrategy{BaseURL: baseURL}, nil
	default:
		return nil, fmt.Errorf("unknown url strategy %q (valid: %s, %s)", name, StrategySearch, StrategyShow)
	}
}

// ResolveRef resolves an href found on a portal page against baseURL.
func ResolveRef(baseURL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	b, err := url.Parse(base(baseURL) + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	return b.ResolveReference(ref).String(), nil
}

func base(u string) string {
	if u == "" {
		u = DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}
