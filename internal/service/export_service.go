package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/pkg/export"
)

type rosterSource interface {
	Roster(ctx context.Context, actor models.Actor, id int64) ([]models.RosterEntry, error)
}

type statementSource interface {
	Statement(ctx context.Context, actor models.Actor, familyID, seasonID int64) (*models.FamilyStatement, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders class rosters and family statements.
type ExportService struct {
	rosters    rosterSource
	statements statementSource
	csv        csvRenderer
	pdf        pdfRenderer
	logger     *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(rosters rosterSource, statements statementSource, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{rosters: rosters, statements: statements, csv: csv, pdf: pdf, logger: logger}
}

// RosterCSV renders the active students of an arrangement.
func (s *ExportService) RosterCSV(ctx context.Context, actor models.Actor, arrangementID int64) (*ExportFile, error) {
	entries, err := s.rosters.Roster(ctx, actor, arrangementID)
	if err != nil {
		return nil, err
	}
	table := export.Table{Headers: []string{"registration_id", "student_id", "student_name", "family_id", "status", "registered_at"}}
	for _, e := range entries {
		table.Rows = append(table.Rows, []string{
			strconv.FormatInt(e.RegistrationID, 10),
			strconv.FormatInt(e.StudentID, 10),
			e.StudentName,
			strconv.FormatInt(e.FamilyID, 10),
			e.Status.String(),
			e.RegisteredAt.UTC().Format(time.RFC3339),
		})
	}
	data, err := s.csv.Render(table)
	if err != nil {
		return nil, internalError(err, "failed to render roster")
	}
	s.logger.Debug("roster exported", zap.Int64("arrangement_id", arrangementID), zap.Int("rows", len(entries)))
	return &ExportFile{
		Filename:    fmt.Sprintf("roster-%d.csv", arrangementID),
		ContentType: "text/csv",
		Data:        data,
	}, nil
}

// StatementPDF renders a family's ledger rows and receipts for a season.
func (s *ExportService) StatementPDF(ctx context.Context, actor models.Actor, familyID, seasonID int64) (*ExportFile, error) {
	statement, err := s.statements.Statement(ctx, actor, familyID, seasonID)
	if err != nil {
		return nil, err
	}

	charges := export.Table{
		Title:   "Charges",
		Headers: []string{"#", "Type", "Tuition", "Book", "Special", "Other fees", "Total", "Status"},
		Widths:  []float64{12, 28, 24, 22, 22, 26, 28, 28},
	}
	for _, row := range statement.Rows {
		other := row.FieldSum().Sub(row.Tuition).Sub(row.BookFee).Sub(row.SpecialFee)
		charges.Rows = append(charges.Rows, []string{
			strconv.FormatInt(row.ID, 10),
			string(row.Type),
			row.Tuition.StringFixed(2),
			row.BookFee.StringFixed(2),
			row.SpecialFee.StringFixed(2),
			other.StringFixed(2),
			row.TotalAmount.StringFixed(2),
			string(row.Status),
		})
	}

	receipts := export.Table{
		Title:   "Payments",
		Headers: []string{"Date", "Reference", "Source", "Statement #", "Amount"},
		Widths:  []float64{30, 60, 30, 30, 40},
	}
	for _, r := range statement.Receipts {
		receipts.Rows = append(receipts.Rows, []string{
			r.PaidAt.UTC().Format("2006-01-02"),
			r.Reference,
			string(r.Source),
			strconv.FormatInt(r.BalanceID, 10),
			r.Amount.StringFixed(2),
		})
	}

	data, err := s.pdf.Render(export.Document{
		Title:  "Family statement",
		Lines:  []string{fmt.Sprintf("Family #%d", familyID), fmt.Sprintf("Season #%d", seasonID)},
		Tables: []export.Table{charges, receipts},
		Footer: "Balance due: " + statement.Total.StringFixed(2),
	})
	if err != nil {
		return nil, internalError(err, "failed to render statement")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("statement-%d-%d.pdf", familyID, seasonID),
		ContentType: "application/pdf",
		Data:        data,
	}, nil
}
