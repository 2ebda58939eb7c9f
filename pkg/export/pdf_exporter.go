package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const pageWidth = 190.0

// Document is a printable report made of header lines and tables.
type Document struct {
	Title  string
	Lines  []string
	Tables []Table
	Footer string
}

// PDFExporter renders documents into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF with the title, header lines, each table and the footer.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("pdf requires at least one table")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "", 10)
	for _, line := range doc.Lines {
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	for _, table := range doc.Tables {
		if err := writeTable(pdf, table); err != nil {
			return nil, err
		}
		pdf.Ln(6)
	}

	if doc.Footer != "" {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, doc.Footer, "", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(pdf *gofpdf.Fpdf, table Table) error {
	if len(table.Headers) == 0 {
		return fmt.Errorf("pdf table %q requires at least one header", table.Title)
	}
	widths := columnWidths(table)

	if table.Title != "" {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, table.Title, "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 9)
	for i, header := range table.Headers {
		pdf.CellFormat(widths[i], 7, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	if len(table.Rows) == 0 {
		pdf.CellFormat(pageWidth, 7, "No entries", "1", 1, "C", false, 0, "")
		return nil
	}
	for _, row := range table.Rows {
		for i := range table.Headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			pdf.CellFormat(widths[i], 6, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return nil
}

func columnWidths(table Table) []float64 {
	if len(table.Widths) == len(table.Headers) {
		return table.Widths
	}
	widths := make([]float64, len(table.Headers))
	for i := range widths {
		widths[i] = pageWidth / float64(len(table.Headers))
	}
	return widths
}
