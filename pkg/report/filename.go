package report

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the date suffix of every artifact name.
const DateLayout = "2006-01-02"

const unnamed = "sem_nome"

// FileName builds the artifact name for a judge's report: diacritics folded,
// '/' and whitespace turned into '_', anything else outside [A-Za-z0-9._-]
// dropped, then suffixed with the report date.
func FileName(judge string, date time.Time, ext string) string {
	return stemName(slug(judge), date, ext)
}

func stemName(stem string, date time.Time, ext string) string {
	return stem + "_" + date.Format(DateLayout) + "." + strings.TrimPrefix(ext, ".")
}

// uniqueStems gives every judge a file stem no other judge shares, ignoring
// case. Judges keep their given order: the first one takes the plain slug
// and later collisions get _2, _3 and so on.
func uniqueStems(judges []string) map[string]string {
	stems := make(map[string]string, len(judges))
	taken := make(map[string]bool, len(judges))
	for _, j := range judges {
		base := slug(j)
		stem := base
		for n := 2; taken[strings.ToLower(stem)]; n++ {
			stem = fmt.Sprintf("%s_%d", base, n)
		}
		taken[strings.ToLower(stem)] = true
		stems[j] = stem
	}
	return stems
}

// SummaryName is the consolidated CSV name for a report date.
func SummaryName(date time.Time) string {
	return "resumo_" + date.Format(DateLayout) + ".csv"
}

func slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r == '/' || unicode.IsSpace(r):
			b.WriteByte('_')
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_'):
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return unnamed
	}
	return out
}
