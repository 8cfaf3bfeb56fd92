package dbgate

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
)

// newTestExporter returns an exporter over a gateway with seeded data.
func newTestExporter(t *testing.T) *Exporter {
	t.Helper()

	gw := newTestGateway(t)
	ctx := context.Background()
	_, err := gw.Execute(ctx, "INSERT INTO users (id, name) VALUES (1, 'John'), (2, 'Jane')", nil)
	require.NoError(t, err)
	return NewExporter(gw)
}

func TestExportQueryCSV(t *testing.T) {
	t.Parallel()

	e := newTestExporter(t)
	var buf bytes.Buffer

	err := e.ExportQuery(context.Background(), &buf,
		"SELECT id, name FROM users ORDER BY id", nil, NewExportOptions())
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus two rows")
	assert.Equal(t, []string{"id", "name"}, records[0])
	assert.Equal(t, []string{"1", "John"}, records[1])
	assert.Equal(t, []string{"2", "Jane"}, records[2])
}

func TestExportQueryTSV(t *testing.T) {
	t.Parallel()

	e := newTestExporter(t)
	var buf bytes.Buffer

	opts := NewExportOptions().WithFormat(OutputFormatTSV)
	err := e.ExportQuery(context.Background(), &buf,
		"SELECT id, name FROM users ORDER BY id", nil, opts)
	require.NoError(t, err)

	reader := csv.NewReader(&buf)
	reader.Comma = '\t'
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "John"}, records[1])
}

func TestExportQueryCompressed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		compression CompressionType
		decompress  func(t *testing.T, r io.Reader) io.Reader
	}{
		{
			name:        "gzip",
			compression: CompressionGZ,
			decompress: func(t *testing.T, r io.Reader) io.Reader {
				t.Helper()
				gz, err := gzip.NewReader(r)
				require.NoError(t, err)
				return gz
			},
		},
		{
			name:        "xz",
			compression: CompressionXZ,
			decompress: func(t *testing.T, r io.Reader) io.Reader {
				t.Helper()
				xzReader, err := xz.NewReader(r)
				require.NoError(t, err)
				return xzReader
			},
		},
		{
			name:        "zstd",
			compression: CompressionZSTD,
			decompress: func(t *testing.T, r io.Reader) io.Reader {
				t.Helper()
				dec, err := zstd.NewReader(r)
				require.NoError(t, err)
				return dec.IOReadCloser()
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newTestExporter(t)
			var buf bytes.Buffer

			opts := NewExportOptions().WithCompression(tt.compression)
			err := e.ExportQuery(context.Background(), &buf,
				"SELECT name FROM users ORDER BY id", nil, opts)
			require.NoError(t, err)

			records, err := csv.NewReader(tt.decompress(t, &buf)).ReadAll()
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, []string{"John"}, records[1])
		})
	}
}

func TestExportQueryXLSX(t *testing.T) {
	t.Parallel()

	e := newTestExporter(t)
	var buf bytes.Buffer

	opts := NewExportOptions().WithFormat(OutputFormatXLSX).WithSheetName("Users")
	err := e.ExportQuery(context.Background(), &buf,
		"SELECT id, name FROM users ORDER BY id", nil, opts)
	require.NoError(t, err)

	workbook, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer workbook.Close()

	header, err := workbook.GetCellValue("Users", "B1")
	require.NoError(t, err)
	assert.Equal(t, "name", header)

	name, err := workbook.GetCellValue("Users", "B2")
	require.NoError(t, err)
	assert.Equal(t, "John", name)
}

func TestExportQueryFile(t *testing.T) {
	t.Parallel()

	e := newTestExporter(t)
	base := filepath.Join(t.TempDir(), "report", "users")

	opts := NewExportOptions().WithCompression(CompressionGZ)
	outPath, err := e.ExportQueryFile(context.Background(), base,
		"SELECT name FROM users ORDER BY id", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, base+".csv.gz", outPath)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	records, err := csv.NewReader(gz).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestExportQueryBlockedStatement(t *testing.T) {
	t.Parallel()

	e := newTestExporter(t)
	var buf bytes.Buffer

	// Exports flow through the query channel, so the blocklist still applies.
	err := e.ExportQuery(context.Background(), &buf, "DROP TABLE users", nil, NewExportOptions())
	require.Error(t, err)
	assert.True(t, IsSecurity(err))
	assert.Zero(t, buf.Len(), "nothing may be written on rejection")
}

func TestExportOptionsFileExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts ExportOptions
		want string
	}{
		{"default", NewExportOptions(), ".csv"},
		{"tsv gzip", NewExportOptions().WithFormat(OutputFormatTSV).WithCompression(CompressionGZ), ".tsv.gz"},
		{"csv zstd", NewExportOptions().WithCompression(CompressionZSTD), ".csv.zst"},
		{"xlsx", NewExportOptions().WithFormat(OutputFormatXLSX), ".xlsx"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.opts.FileExtension())
		})
	}
}
