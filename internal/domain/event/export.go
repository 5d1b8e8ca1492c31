package event

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/whispers/whispers/internal/platform/auth"
)

const exportSheet = "Events"

var publicExportHeader = []string{
	"Event ID", "Event Type", "Complete", "Start Date", "End Date", "Affected Count", "Diagnoses",
}

var fullExportHeader = append(append([]string{}, publicExportHeader...),
	"Event Reference", "Public", "Organization", "Created By", "Created Date", "Modified Date")

// ExportRow is one event in an export with its event diagnosis strings.
type ExportRow struct {
	Event     *Event
	Diagnoses []string
}

// Export runs the search without paging and renders the result as an xlsx
// workbook in the caller's list view.
func (s *Service) Export(ctx context.Context, f *Filter, mine bool) ([]byte, error) {
	events, _, d, err := s.Search(ctx, f, mine, 0, 0)
	if err != nil {
		return nil, err
	}
	rows := make([]ExportRow, 0, len(events))
	for _, e := range events {
		eds, err := s.repo.ListEventDiagnoses(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("list event diagnoses: %w", err)
		}
		row := ExportRow{Event: e}
		for _, ed := range eds {
			row.Diagnoses = append(row.Diagnoses, ed.DiagnosisString)
		}
		rows = append(rows, row)
	}
	return RenderWorkbook(rows, d)
}

// RenderWorkbook writes rows into a single-sheet workbook. Only the public
// columns are written unless the decision grants more than the public view.
func RenderWorkbook(rows []ExportRow, d auth.Decision) ([]byte, error) {
	full := d.View != auth.ViewPublic
	header := publicExportHeader
	if full {
		header = fullExportHeader
	}

	f := excelize.NewFile()
	defer f.Close()
	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if err := writeRow(f, 1, toCells(header)); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, style); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for i, r := range rows {
		e := r.Event
		cells := []interface{}{
			e.ID.String(), e.EventType, e.Complete, dateCell(e.StartDate), dateCell(e.EndDate),
			intCell(e.AffectedCount), strings.Join(r.Diagnoses, "; "),
		}
		if full {
			org := ""
			if e.OrganizationID != nil {
				org = e.OrganizationID.String()
			}
			cells = append(cells, e.EventReference, e.Public, org, e.CreatedBy.String(),
				e.CreatedAt.Format(dateLayout), e.UpdatedAt.Format(dateLayout))
		}
		if err := writeRow(f, i+2, cells); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toCells(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func dateCell(d *Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func intCell(n *int) interface{} {
	if n == nil {
		return ""
	}
	return *n
}

// ExportFilename names the download for the day it was produced.
func ExportFilename(day time.Time) string {
	return "whispers_events_" + day.Format(dateLayout) + ".xlsx"
}
