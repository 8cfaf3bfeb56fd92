package dbgate

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// defaultSheetName names the worksheet when none is configured.
const defaultSheetName = "Sheet1"

// Exporter writes result sets to files for report export. Export requests go
// through the gateway's query channel, so they are subject to the same
// validation and security blocklist as any other read.
type Exporter struct {
	gateway *Gateway
}

// NewExporter creates an exporter over gateway.
func NewExporter(gateway *Gateway) *Exporter {
	return &Exporter{gateway: gateway}
}

// ExportQuery runs a read statement and writes the result set to w in the
// configured format, compressed if requested.
func (e *Exporter) ExportQuery(ctx context.Context, w io.Writer, sqlText string, params []any, opts ExportOptions) error {
	result, err := e.gateway.Query(ctx, sqlText, params)
	if err != nil {
		return err
	}
	return WriteResult(w, result, opts)
}

// ExportQueryFile runs a read statement and writes the result set to a file
// at path. The format and compression extensions are appended to path.
func (e *Exporter) ExportQueryFile(ctx context.Context, path, sqlText string, params []any, opts ExportOptions) (string, error) {
	result, err := e.gateway.Query(ctx, sqlText, params)
	if err != nil {
		return "", err
	}

	outPath := path + opts.FileExtension()
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return "", fmt.Errorf("dbgate: failed to create output directory: %w", err)
	}

	f, err := os.Create(outPath) //nolint:gosec // caller-chosen export destination
	if err != nil {
		return "", fmt.Errorf("dbgate: failed to create export file: %w", err)
	}

	if err := WriteResult(f, result, opts); err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("dbgate: failed to close export file: %w", err)
	}
	return outPath, nil
}

// WriteResult writes an already-obtained result set to w.
func WriteResult(w io.Writer, result *QueryResult, opts ExportOptions) error {
	handler := NewCompressionHandler(opts.Compression)
	cw, cleanup, err := handler.CreateWriter(w)
	if err != nil {
		return fmt.Errorf("dbgate: failed to create compression writer: %w", err)
	}

	switch opts.Format {
	case OutputFormatCSV:
		err = writeDelimited(cw, result, ',')
	case OutputFormatTSV:
		err = writeDelimited(cw, result, '\t')
	case OutputFormatXLSX:
		err = writeXLSX(cw, result, opts.SheetName)
	default:
		err = fmt.Errorf("dbgate: unsupported output format: %v", opts.Format)
	}
	if err != nil {
		_ = cleanup()
		return err
	}

	if err := cleanup(); err != nil {
		return fmt.Errorf("dbgate: failed to finalize export stream: %w", err)
	}
	return nil
}

// writeDelimited writes a header row followed by data rows.
func writeDelimited(w io.Writer, result *QueryResult, delimiter rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = delimiter

	if err := writer.Write(result.Columns); err != nil {
		return fmt.Errorf("dbgate: failed to write header: %w", err)
	}

	row := make([]string, len(result.Columns))
	for _, record := range result.Rows {
		for i, col := range result.Columns {
			row[i] = formatExportValue(record[col])
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("dbgate: failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("dbgate: failed to flush export: %w", err)
	}
	return nil
}

// writeXLSX writes the result set as a single-sheet Excel workbook.
func writeXLSX(w io.Writer, result *QueryResult, sheetName string) error {
	if sheetName == "" {
		sheetName = defaultSheetName
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if sheetName != defaultSheetName {
		if err := f.SetSheetName(defaultSheetName, sheetName); err != nil {
			return fmt.Errorf("dbgate: failed to name worksheet: %w", err)
		}
	}

	for i, col := range result.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("dbgate: failed to compute cell name: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			return fmt.Errorf("dbgate: failed to write header cell: %w", err)
		}
	}

	for rowIdx, record := range result.Rows {
		for colIdx, col := range result.Columns {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return fmt.Errorf("dbgate: failed to compute cell name: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, exportCellValue(record[col])); err != nil {
				return fmt.Errorf("dbgate: failed to write cell: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("dbgate: failed to write workbook: %w", err)
	}
	return nil
}

// formatExportValue renders a scalar for delimited-text output.
func formatExportValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []byte:
		return string(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case time.Time:
		return value.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// exportCellValue passes scalars through to excelize, which handles native
// numeric and boolean cells; byte slices become strings.
func exportCellValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
