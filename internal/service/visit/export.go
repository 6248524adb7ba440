package visit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/tealeg/xlsx"

	"github.com/jwalitptl/qrcare/internal/model"
)

// ExportColumns is the fixed column order of visit exports.
var ExportColumns = []string{"visit_date", "diagnosis", "treatment", "medicines", "lab_file", "created_by"}

func exportRow(v *model.Visit) []string {
	files := make([]string, 0, len(v.Attachments))
	for _, a := range v.Attachments {
		files = append(files, a.FileName)
	}
	return []string{
		v.VisitDate.Format(model.DateLayout),
		v.Diagnosis,
		v.Treatment,
		v.Medicines,
		strings.Join(files, ";"),
		v.CreatedBy,
	}
}

// ExportCSV writes the patient's visits, newest first, as CSV.
func (s *Service) ExportCSV(ctx context.Context, qrID string, w io.Writer) error {
	visits, err := s.ListVisits(ctx, qrID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, v := range visits {
		if err := cw.Write(exportRow(v)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportXLSX writes the same rows as ExportCSV into a single-sheet workbook.
func (s *Service) ExportXLSX(ctx context.Context, qrID string, w io.Writer) error {
	visits, err := s.ListVisits(ctx, qrID)
	if err != nil {
		return err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Visits")
	if err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, col := range ExportColumns {
		cell := header.AddCell()
		cell.Value = col
		cell.GetStyle().Font.Bold = true
	}
	for _, v := range visits {
		row := sheet.AddRow()
		for _, val := range exportRow(v) {
			row.AddCell().SetString(val)
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
