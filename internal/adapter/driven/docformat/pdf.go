package docformat

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
)

// PageCount validates content as a PDF and returns its number of pages.
func PageCount(content []byte) (int, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx.PageCount, nil
}

const (
	pageMargin   = 56.0
	lineHeight   = 16.0
	headingSize  = 16.0
	bodyFontSize = 12.0
)

// TextPDF lays lines out on an A4 page in Helvetica, the first line as a bold
// heading. Text is encoded as cp1252, so Spanish accents survive; runes with
// no cp1252 form are substituted. Long lines wrap and may add pages.
func TextPDF(lines []string) ([]byte, error) {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetCompression(false)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for i, line := range lines {
		if i == 0 {
			pdf.SetFont("Helvetica", "B", headingSize)
			pdf.MultiCell(0, lineHeight*1.5, tr(line), "", "L", false)
			pdf.SetFont("Helvetica", "", bodyFontSize)
			continue
		}
		pdf.MultiCell(0, lineHeight, tr(line), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Compile-time interface satisfaction check.
var _ driven.PDFTool = Tool{}

// Tool adapts PageCount and TextPDF to the PDFTool port.
type Tool struct{}

// PageCount implements driven.PDFTool.
func (Tool) PageCount(content []byte) (int, error) { return PageCount(content) }

// RenderText implements driven.PDFTool.
func (Tool) RenderText(lines []string) ([]byte, error) { return TextPDF(lines) }
