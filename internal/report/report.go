// Package report packages batch results: a ZIP archive of the cleaned files
// and an Excel workbook with one row per file.
package report

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/subh7987/hyper-link-remover/internal/batch"
)

const (
	// ArchiveName is the default download name of the archive
	ArchiveName = "cleaned_eml_files.zip"
	// WorkbookName is the default download name of the workbook
	WorkbookName = "processing_report.xlsx"

	sheetName = "Sheet1"
)

// Columns is the workbook header row
var Columns = []string{"Filename", "Changed", "Reason"}

// ErrNotInArchive is returned by ReadArchiveFile for unknown names
var ErrNotInArchive = errors.New("file not found in archive")

// Row is one workbook line
type Row struct {
	Filename string
	Changed  bool
	Reason   string
}

// Archive writes every successfully cleaned file into a ZIP archive under its
// original name. Failed files are left out, they only appear in the workbook.
func Archive(results []batch.FileResult) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	used := make(map[string]int)
	for _, res := range results {
		if res.Err != nil {
			continue
		}

		header := &zip.FileHeader{
			Name:     uniqueName(used, res.Filename),
			Method:   zip.Deflate,
			Modified: time.Now(),
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", res.Filename, err)
		}
		if _, err := w.Write(res.Output); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", res.Filename, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

// uniqueName keeps archive entries distinct when two uploads share a name:
// the second "a.eml" becomes "a_2.eml"
func uniqueName(used map[string]int, name string) string {
	name = strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
	used[name]++
	n := used[name]
	if n == 1 {
		return name
	}

	ext := path.Ext(name)
	candidate := fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
	used[candidate]++
	return candidate
}

// ReadArchiveFile returns the content of one archive entry
func ReadArchiveFile(archive []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotInArchive, name)
}

// Rows converts batch results to workbook rows
func Rows(results []batch.FileResult) []Row {
	rows := make([]Row, len(results))
	for i, res := range results {
		rows[i] = Row{Filename: res.Filename, Changed: res.Changed, Reason: res.Reason}
	}
	return rows
}

// Workbook renders the processing report as an .xlsx file
func Workbook(results []batch.FileResult) ([]byte, error) {
	return WriteRows(Rows(results))
}

// WriteRows renders rows as an .xlsx file with the Filename, Changed and
// Reason columns
func WriteRows(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// Write header row
	for i, name := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, name)
	}

	// Style the header row (bold)
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
		f.SetCellStyle(sheetName, "A1", last, style)
	}

	widths := []int{len(Columns[0]), len(Columns[1]), len(Columns[2])}
	for rowIdx, row := range rows {
		values := []string{row.Filename, yesNo(row.Changed), row.Reason}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
			widths[colIdx] = max(widths[colIdx], len(v))
		}
	}

	// Auto-fit column widths (approximate)
	for i, w := range widths {
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, float64(min(max(w+2, 12), 80)))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadRows parses a workbook produced by WriteRows
func ReadRows(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	all, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("workbook has no header row")
	}

	rows := make([]Row, 0, len(all)-1)
	for _, cells := range all[1:] {
		for len(cells) < len(Columns) {
			cells = append(cells, "")
		}
		rows = append(rows, Row{
			Filename: cells[0],
			Changed:  cells[1] == "Yes",
			Reason:   cells[2],
		})
	}
	return rows, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
