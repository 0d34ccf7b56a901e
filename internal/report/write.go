package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"moviemigrate/internal/logging"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

const (
	entitiesSheet = "Entities"
	runSheet      = "Run"
)

// Write saves the report to path. The format follows the extension:
// .json, .yaml/.yml, .csv or .xlsx.
func (r *Run) Write(path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("report: failed to create directory for '%s': %w", path, err)
		}
	}

	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = r.writeJSON(path)
	case ".yaml", ".yml":
		err = r.writeYAML(path)
	case ".csv":
		err = r.writeCSV(path)
	case ".xlsx":
		err = r.writeXLSX(path)
	default:
		return fmt.Errorf("report: unsupported file extension '%s' (want .json, .yaml, .yml, .csv or .xlsx)", ext)
	}
	if err != nil {
		return err
	}
	logging.Logf(logging.Info, "Run report written to %s", path)
	return nil
}

func (r *Run) writeJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: failed to encode JSON: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("report: failed to write '%s': %w", path, err)
	}
	return nil
}

func (r *Run) writeYAML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: failed to create '%s': %w", path, err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		f.Close()
		return fmt.Errorf("report: failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("report: failed to flush YAML: %w", err)
	}
	return f.Close()
}

// entityHeaders fixes the column order of the Entities sheet.
var entityHeaders = []string{
	"entity", "status", "rows_read", "rows_written", "batches", "quality_issues",
	"error_kind", "error", "duration_ms",
	"count_source", "count_target", "count_match",
	"sample_compared", "sample_match", "first_mismatch_id", "sample_detail", "verification_error",
}

func entityRow(e Entity) []interface{} {
	row := []interface{}{
		e.Entity, string(e.Status), e.RowsRead, e.RowsWritten, e.Batches, e.QualityIssues,
		e.ErrorKind, e.Error, e.Duration.Milliseconds(),
	}
	v := e.Verification
	if v == nil {
		return append(row, "", "", "", "", "", "", "", "")
	}
	row = append(row, v.CountSource, v.CountTarget, strconv.FormatBool(v.Match))
	if v.Sample != nil {
		row = append(row, v.Sample.Compared, strconv.FormatBool(v.Sample.Match), v.Sample.FirstMismatchID, v.Sample.Detail)
	} else {
		row = append(row, "", "", "", "")
	}
	return append(row, v.Error)
}

// writeCSV writes the Entities table only; the run header is left to the
// other formats.
func (r *Run) writeCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: failed to create '%s': %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(entityHeaders); err != nil {
		f.Close()
		return fmt.Errorf("report: failed to write header to '%s': %w", path, err)
	}
	for _, e := range r.Entities {
		cells := entityRow(e)
		row := make([]string, len(cells))
		for i, v := range cells {
			row[i] = fmt.Sprintf("%v", v)
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("report: failed to write row for %s: %w", e.Entity, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("report: failed to flush '%s': %w", path, err)
	}
	return f.Close()
}

// writeXLSX writes one row per entity on the Entities sheet and the run
// header on the Run sheet. Booleans are written as text so spreadsheet
// apps do not re-case them.
func (r *Run) writeXLSX(path string) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logging.Logf(logging.Warning, "report: error closing XLSX file '%s': %v", path, err)
		}
	}()

	if err := f.SetSheetName("Sheet1", entitiesSheet); err != nil {
		return fmt.Errorf("report: failed to rename default sheet: %w", err)
	}
	header := make([]interface{}, len(entityHeaders))
	for i, h := range entityHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(entitiesSheet, "A1", &header); err != nil {
		return fmt.Errorf("report: failed to write header row: %w", err)
	}
	for i, e := range r.Entities {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("report: failed to calculate cell for row %d: %w", i+2, err)
		}
		row := entityRow(e)
		if err := f.SetSheetRow(entitiesSheet, cell, &row); err != nil {
			return fmt.Errorf("report: failed to write row for %s: %w", e.Entity, err)
		}
	}

	if _, err := f.NewSheet(runSheet); err != nil {
		return fmt.Errorf("report: failed to create sheet '%s': %w", runSheet, err)
	}
	read, written := r.Totals()
	meta := [][]interface{}{
		{"started_at", r.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00")},
		{"finished_at", r.FinishedAt.UTC().Format("2006-01-02T15:04:05Z07:00")},
		{"verify_only", strconv.FormatBool(r.VerifyOnly)},
		{"rows_read", read},
		{"rows_written", written},
		{"ok", strconv.FormatBool(r.OK())},
	}
	for i, row := range meta {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(runSheet, cell, &row); err != nil {
			return fmt.Errorf("report: failed to write run row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: failed to save '%s': %w", path, err)
	}
	return nil
}
