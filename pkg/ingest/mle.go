// Package ingest reads writ (MLE) exports into batch records.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	jrerrors "github.com/otherjamesbrown/judgeroute/pkg/errors"
)

// Column headers of the writ export.
const (
	ColProcess      = "Número do Processo"
	ColWrit         = "Número do Mandado"
	ColDivision     = "Órgão/Vara"
	ColJurisdiction = "Jurisdição"
	ColStatus       = "Situação do Mandado"
	ColValue        = "Valor do Mandado"
	ColUser         = "Usuário da Ação"
	ColDate         = "Data da Ação"
)

// RequiredColumns lists the headers every export must carry.
var RequiredColumns = []string{
	ColProcess, ColWrit, ColDivision, ColJurisdiction,
	ColStatus, ColValue, ColUser, ColDate,
}

// Charsets accepted by Options.Charset.
const (
	CharsetAuto        = "auto"
	CharsetUTF8        = "utf-8"
	CharsetWindows1252 = "windows-1252"
	CharsetLatin1      = "iso-8859-1"
)

var dateLayouts = []string{"02/01/2006", "02/01/2006 15:04", "02/01/2006 15:04:05"}

// Options controls how an export is read.
type Options struct {
	// Charset of the file. "auto" (the default) reads UTF-8 when the bytes
	// are valid UTF-8 and Windows-1252 otherwise.
	Charset string
	// Comma is the field separator, ';' by default.
	Comma rune
	// Normalizer fills QueryID. Records it rejects keep an empty QueryID
	// and are reported by the orchestrator when resolved.
	Normalizer *cnj.Normalizer
	// Location for parsed dates; time.Local when nil.
	Location *time.Location
}

// Result is what Read found in an export.
type Result struct {
	Records []batch.ProcessRecord
	// Skipped counts rows without a process number.
	Skipped int
	// BadDates lists the lines whose action date did not parse. Those
	// records keep the raw text and are still returned.
	BadDates []int
}

// ReadFile reads the export at path.
func ReadFile(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()
	return Read(f, opts)
}

// Read parses a ';'-separated export with a header row.
func Read(r io.Reader, opts Options) (*Result, error) {
	if opts.Comma == 0 {
		opts.Comma = ';'
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	normalizer := cnj.Default
	if opts.Normalizer != nil {
		normalizer = *opts.Normalizer
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	data, err = decode(data, opts.Charset)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	cr := csv.NewReader(bufio.NewReader(bytes.NewReader(data)))
	cr.Comma = opts.Comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: export is empty", jrerrors.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read export: %w", err)
		}
		line, _ := cr.FieldPos(0)

		get := func(col string) string {
			i := idx[col]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rec := batch.ProcessRecord{
			ProcessID:     strings.Trim(get(ColProcess), "\t "),
			WritNumber:    strings.Trim(get(ColWrit), "\t "),
			CourtDivision: get(ColDivision),
			Jurisdiction:  get(ColJurisdiction),
			WritStatus:    get(ColStatus),
			WritValue:     get(ColValue),
			ActionUser:    get(ColUser),
		}
		if rec.ProcessID == "" {
			res.Skipped++
			continue
		}
		if id, err := normalizer.Normalize(rec.ProcessID); err == nil {
			rec.QueryID = id.Query
		}
		if raw := get(ColDate); raw != "" {
			rec.ActionDateRaw = raw
			if t, err := parseDate(raw, opts.Location); err == nil {
				rec.ActionDate = t
			} else {
				res.BadDates = append(res.BadDates, line)
			}
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// columnIndex maps each required column to its position. Headers match
// ignoring case, accents and surrounding whitespace.
func columnIndex(header []string) (map[string]int, error) {
	byKey := make(map[string]int, len(header))
	for i, h := range header {
		k := foldHeader(h)
		if _, dup := byKey[k]; !dup {
			byKey[k] = i
		}
	}

	idx := make(map[string]int, len(RequiredColumns))
	var missing []string
	for _, col := range RequiredColumns {
		i, ok := byKey[foldHeader(col)]
		if !ok {
			missing = append(missing, col)
			continue
		}
		idx[col] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns: %s", jrerrors.ErrValidation, strings.Join(missing, ", "))
	}
	return idx, nil
}

func foldHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(folded, "\ufeff")))
}

func decode(data []byte, charset string) ([]byte, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))

	var decoder transform.Transformer
	switch charset {
	case "", CharsetAuto:
		if utf8.Valid(data) {
			return data, nil
		}
		decoder = charmap.Windows1252.NewDecoder()
	case CharsetUTF8, "utf8":
		return data, nil
	case CharsetWindows1252, "cp1252":
		decoder = charmap.Windows1252.NewDecoder()
	case CharsetLatin1, "latin1", "iso_8859-1":
		decoder = charmap.ISO8859_1.NewDecoder()
	default:
		return nil, fmt.Errorf("%w: unknown charset %q", jrerrors.ErrValidation, charset)
	}

	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return nil, fmt.Errorf("charset decoding failed: %w", err)
	}
	return out, nil
}
