// Package tabular decodes uploaded spreadsheets into a header row and ordered data rows.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrDecode is returned when the payload cannot be parsed as tabular data.
	ErrDecode = errors.New("unable to decode tabular data")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE    = []byte{0xFF, 0xFE}
	bomUTF16BE    = []byte{0xFE, 0xFF}
	zipSignature  = []byte{'P', 'K', 0x03, 0x04}

	candidateDelimiters = []rune{',', ';', '\t'}
)

// Format identifies the container format of a decoded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Table is the decoded form of one spreadsheet.
// Rows are padded or truncated to the header width. Blank rows are kept and
// consist of empty cells only; callers decide whether to skip them.
type Table struct {
	Headers        []string
	Rows           [][]string
	HeaderRowIndex int
	// Lines holds the 1-based source line of each data row when the format
	// tracks it. CSV readers skip empty lines, so indexes alone drift.
	Lines          []int
	Format         Format
	Encoding       string
}

// RowNumber returns the 1-based line of the data row at index idx in the source file.
func (t Table) RowNumber(idx int) int {
	if idx >= 0 && idx < len(t.Lines) {
		return t.Lines[idx]
	}
	return t.HeaderRowIndex + idx + 2
}

// Decode converts a binary buffer into a Table. The format is picked from the
// file extension, then the MIME type, then by sniffing the content.
// An empty buffer decodes to an empty table.
func Decode(fileName, contentType string, payload []byte) (Table, error) {
	if len(payload) == 0 {
		return Table{HeaderRowIndex: -1}, nil
	}

	format, err := detectFormat(fileName, contentType, payload)
	if err != nil {
		return Table{}, err
	}

	switch format {
	case FormatXLSX:
		return decodeExcel(payload)
	default:
		return decodeCSV(payload)
	}
}

func detectFormat(fileName, contentType string, payload []byte) (Format, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return "", fmt.Errorf("%w: legacy .xls workbooks are not supported, save the file as .xlsx", ErrDecode)
	}

	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "text/csv", "text/plain", "text/tab-separated-values", "application/csv":
			return FormatCSV, nil
		case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
			return FormatXLSX, nil
		}
	}

	if bytes.HasPrefix(payload, zipSignature) {
		return FormatXLSX, nil
	}
	if looksLikeText(payload) {
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: unsupported file format %q", ErrDecode, ext)
}

func looksLikeText(payload []byte) bool {
	if bytes.HasPrefix(payload, bomUTF16LE) || bytes.HasPrefix(payload, bomUTF16BE) {
		return true
	}
	sample := payload
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	return !bytes.ContainsRune(sample, 0)
}

func decodeCSV(payload []byte) (Table, error) {
	text, encodingName, err := toUTF8(payload)
	if err != nil {
		return Table{}, err
	}
	if bytes.ContainsRune(text, 0) {
		return Table{}, fmt.Errorf("%w: file contains binary content", ErrDecode)
	}

	csvReader := csv.NewReader(bytes.NewReader(text))
	csvReader.Comma = detectDelimiter(text)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	var (
		records [][]string
		lines   []int
	)
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("%w: failed to read csv: %w", ErrDecode, err)
		}
		line, _ := csvReader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}

	table := normalizeTable(records, lines)
	table.Format = FormatCSV
	table.Encoding = encodingName
	return table, nil
}

func decodeExcel(payload []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Table{}, fmt.Errorf("%w: failed to open xlsx: %w", ErrDecode, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("%w: excel file has no sheets", ErrDecode)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("%w: failed to read rows from xlsx: %w", ErrDecode, err)
	}

	table := normalizeTable(rows, nil)
	table.Format = FormatXLSX
	table.Encoding = "utf-8"
	return table, nil
}

// toUTF8 strips byte order marks and converts UTF-16 or Windows-1251 input to UTF-8.
func toUTF8(payload []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(payload, byteOrderMark):
		return payload[len(byteOrderMark):], "utf-8-bom", nil
	case bytes.HasPrefix(payload, bomUTF16LE):
		return transcode(payload, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), "utf-16le")
	case bytes.HasPrefix(payload, bomUTF16BE):
		return transcode(payload, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), "utf-16be")
	case utf8.Valid(payload):
		return payload, "utf-8", nil
	default:
		// Spreadsheet exports from Russian-locale Excel default to cp1251.
		return transcode(payload, charmap.Windows1251, "windows-1251")
	}
}

func transcode(payload []byte, enc encoding.Encoding, name string) ([]byte, string, error) {
	decoded, _, err := transform.Bytes(enc.NewDecoder(), payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s decode failed: %w", ErrDecode, name, err)
	}
	return decoded, name, nil
}

func detectDelimiter(text []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(text)).ReadString('\n')
	best := ','
	bestCount := 0
	for _, delimiter := range candidateDelimiters {
		if count := strings.Count(line, string(delimiter)); count > bestCount {
			best = delimiter
			bestCount = count
		}
	}
	return best
}

// normalizeTable picks the header and pads data rows. lines, when set, holds
// the source line of each record.
func normalizeTable(records [][]string, lines []int) Table {
	headerIndex := -1
	var headerRow []string
	var dataRows [][]string
	var dataLines []int

	for idx, row := range records {
		if headerRow == nil {
			if IsBlank(row) {
				continue
			}
			headerRow = row
			headerIndex = idx
			continue
		}
		dataRows = append(dataRows, row)
		if idx < len(lines) {
			dataLines = append(dataLines, lines[idx])
		}
	}

	if headerRow == nil {
		return Table{HeaderRowIndex: -1}
	}

	headers := cleanHeaders(headerRow)
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return Table{
		Headers:        headers,
		Rows:           dataRows,
		HeaderRowIndex: headerIndex,
		Lines:          dataLines,
	}
}

func cleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for idx, value := range raw {
		name := strings.TrimSpace(strings.TrimPrefix(value, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}
		headers[idx] = name
	}
	return headers
}

func padRow(row []string, length int) []string {
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

// IsBlank reports whether every cell of row is empty after trimming.
func IsBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
