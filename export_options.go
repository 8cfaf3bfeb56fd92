package dbgate

// OutputFormat represents the export file format.
type OutputFormat int

const (
	// OutputFormatCSV represents comma-separated output.
	OutputFormatCSV OutputFormat = iota
	// OutputFormatTSV represents tab-separated output.
	OutputFormatTSV
	// OutputFormatXLSX represents Excel workbook output.
	OutputFormatXLSX
)

// String returns the string representation of OutputFormat.
func (f OutputFormat) String() string {
	switch f {
	case OutputFormatCSV:
		return "csv"
	case OutputFormatTSV:
		return "tsv"
	case OutputFormatXLSX:
		return "xlsx"
	default:
		return "csv"
	}
}

// Extension returns the file extension for the format.
func (f OutputFormat) Extension() string {
	switch f {
	case OutputFormatCSV:
		return ".csv"
	case OutputFormatTSV:
		return ".tsv"
	case OutputFormatXLSX:
		return ".xlsx"
	default:
		return ".csv"
	}
}

// CompressionType represents the export compression type.
type CompressionType int

const (
	// CompressionNone represents no compression.
	CompressionNone CompressionType = iota
	// CompressionGZ represents gzip compression.
	CompressionGZ
	// CompressionXZ represents xz compression.
	CompressionXZ
	// CompressionZSTD represents zstd compression.
	CompressionZSTD
)

// String returns the string representation of CompressionType.
func (c CompressionType) String() string {
	switch c {
	case CompressionGZ:
		return "gz"
	case CompressionXZ:
		return "xz"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// Extension returns the file extension for the compression type.
func (c CompressionType) Extension() string {
	switch c {
	case CompressionGZ:
		return ".gz"
	case CompressionXZ:
		return ".xz"
	case CompressionZSTD:
		return ".zst"
	default:
		return ""
	}
}

// ExportOptions configures how a result set is written out.
//
// Example:
//
//	options := NewExportOptions().
//		WithFormat(OutputFormatTSV).
//		WithCompression(CompressionGZ)
type ExportOptions struct {
	// Format specifies the output file format.
	Format OutputFormat
	// Compression specifies the compression type.
	Compression CompressionType
	// SheetName names the worksheet for XLSX output. Empty uses "Sheet1".
	SheetName string
}

// NewExportOptions creates default export options (CSV, no compression).
func NewExportOptions() ExportOptions {
	return ExportOptions{
		Format:      OutputFormatCSV,
		Compression: CompressionNone,
	}
}

// WithFormat sets the output file format.
func (o ExportOptions) WithFormat(format OutputFormat) ExportOptions {
	o.Format = format
	return o
}

// WithCompression adds compression to the output stream.
func (o ExportOptions) WithCompression(compression CompressionType) ExportOptions {
	o.Compression = compression
	return o
}

// WithSheetName sets the worksheet name for XLSX output.
func (o ExportOptions) WithSheetName(name string) ExportOptions {
	o.SheetName = name
	return o
}

// FileExtension returns the complete file extension including compression.
func (o ExportOptions) FileExtension() string {
	return o.Format.Extension() + o.Compression.Extension()
}
