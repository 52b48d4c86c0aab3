package report

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/ingest"
)

// Extra columns of the consolidated CSV.
const (
	ColJudge    = "Juiz"
	ColOverride = "Ajuste Manual"
)

// SummaryHeader is the header row of the consolidated CSV.
var SummaryHeader = append(append([]string{}, ingest.RequiredColumns...), ColJudge, ColOverride)

// Summary renders every record, whatever its outcome, as a ';' separated
// CSV in input order. Unresolved records show their display text.
func Summary(records []batch.ProcessRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	if err := w.Write(SummaryHeader); err != nil {
		return nil, fmt.Errorf("write summary header: %w", err)
	}
	for i, rec := range records {
		v := view(rec)
		manual := "Não"
		if v.Overridden {
			manual = "Sim"
		}
		row := []string{
			v.ProcessID, v.WritNumber, v.Division, v.Jurisdiction,
			v.WritStatus, v.WritValue, v.ActionUser, v.ActionDate,
			v.Judge, manual,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write summary row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush summary: %w", err)
	}
	return buf.Bytes(), nil
}
