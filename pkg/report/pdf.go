package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Separator is printed after every record.
var Separator = strings.Repeat("-", 50)

// Title returns the heading of a judge's document.
func Title(judge string) string {
	return "Relatório - MLEs Aguardando Assinatura - Magistrado(a): " + judge
}

// Line is one labelled value of a record block.
type Line struct {
	Label string
	Value string
}

// recordLines returns the labelled lines printed for each record.
func recordLines(rec recordView) []Line {
	return []Line{
		{"Processo", rec.ProcessID},
		{"Jurisdição", rec.Jurisdiction},
		{"Situação do Mandado", rec.WritStatus},
		{"Valor do Mandado", "R$ " + rec.WritValue},
		{"Usuário da Ação", rec.ActionUser},
		{"Data da Ação", rec.ActionDate},
	}
}

// PDFRenderer lays reports out with fpdf on A4 pages.
type PDFRenderer struct {
	// FontFamily is one of the core fonts; defaults to Helvetica.
	FontFamily string
}

// NewPDFRenderer returns a renderer with the default font.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{FontFamily: "Helvetica"}
}

// Ext implements Renderer.
func (p *PDFRenderer) Ext() string { return "pdf" }

// Render implements Renderer. Core fonts are cp1252, so every string passes
// through the Unicode translator to keep Portuguese accents.
func (p *PDFRenderer) Render(ctx context.Context, r JudgeReport, meta Meta) ([]byte, error) {
	family := p.FontFamily
	if family == "" {
		family = "Helvetica"
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	title := Title(r.Judge)

	pdf.SetTitle(title, true)
	pdf.SetCreator("judgeroute", true)
	if !meta.Date.IsZero() {
		pdf.SetCreationDate(meta.Date)
		pdf.SetModificationDate(meta.Date)
	}
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont(family, "B", 15)
	pdf.MultiCell(0, 7, tr(title), "", "L", false)
	pdf.Ln(5)

	for _, d := range r.Divisions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pdf.SetFont(family, "B", 12)
		pdf.MultiCell(0, 6, tr("Vara: "+d.Division), "", "L", false)
		pdf.Ln(2)

		pdf.SetFont(family, "", 10)
		for _, rec := range d.Records {
			for _, l := range recordLines(view(rec)) {
				pdf.MultiCell(0, 5, tr(l.Label+": "+l.Value), "", "L", false)
			}
			pdf.Ln(3)
			pdf.MultiCell(0, 5, Separator, "", "L", false)
			pdf.Ln(3)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output: %w", err)
	}
	return buf.Bytes(), nil
}
