// Package report groups resolved writs by judge and court division and
// renders one document per judge.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
)

// DivisionGroup is the records of one court division, in input order.
type DivisionGroup struct {
	Division string
	Records  []batch.ProcessRecord
}

// JudgeReport is everything that goes into one judge's document.
type JudgeReport struct {
	Judge     string
	Divisions []DivisionGroup
}

// Count returns the number of records across all divisions.
func (r JudgeReport) Count() int {
	n := 0
	for _, d := range r.Divisions {
		n += len(d.Records)
	}
	return n
}

// Meta is document-level information that is not part of any record.
type Meta struct {
	// Date is printed in file names and document metadata.
	Date   time.Time
	RunID  string
	Source string
}

// Renderer turns one judge's report into a document.
type Renderer interface {
	Render(ctx context.Context, r JudgeReport, meta Meta) ([]byte, error)
	// Ext is the file extension without the dot.
	Ext() string
}

// Group keeps only Found records and groups them by exact judge name, then
// by court division. Judges and divisions are sorted; records keep their
// input order inside a division.
func Group(records []batch.ProcessRecord) []JudgeReport {
	byJudge := make(map[string]map[string][]batch.ProcessRecord)
	for _, rec := range records {
		if !rec.Judge.IsFound() {
			continue
		}
		divs, ok := byJudge[rec.Judge.Name]
		if !ok {
			divs = make(map[string][]batch.ProcessRecord)
			byJudge[rec.Judge.Name] = divs
		}
		divs[rec.CourtDivision] = append(divs[rec.CourtDivision], rec)
	}

	judges := make([]string, 0, len(byJudge))
	for j := range byJudge {
		judges = append(judges, j)
	}
	sort.Strings(judges)

	reports := make([]JudgeReport, 0, len(judges))
	for _, j := range judges {
		divs := byJudge[j]
		names := make([]string, 0, len(divs))
		for d := range divs {
			names = append(names, d)
		}
		sort.Strings(names)

		r := JudgeReport{Judge: j, Divisions: make([]DivisionGroup, 0, len(names))}
		for _, d := range names {
			r.Divisions = append(r.Divisions, DivisionGroup{Division: d, Records: divs[d]})
		}
		reports = append(reports, r)
	}
	return reports
}

// GroupAndRender renders one artifact per judge, keyed by judge name.
func GroupAndRender(ctx context.Context, records []batch.ProcessRecord, renderer Renderer, meta Meta) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, r := range Group(records) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := renderer.Render(ctx, r, meta)
		if err != nil {
			return nil, fmt.Errorf("render %s report for %q: %w", renderer.Ext(), r.Judge, err)
		}
		out[r.Judge] = b
	}
	return out, nil
}
