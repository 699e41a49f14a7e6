// Package fetcher reads the raw input files of a reconciliation run: delimited
// telematics exports, the billing workbook, and remote FTP drops.
package fetcher

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures the delimited-text parser.
type CSVOptions struct {
	Delimiter rune // 0 = detect from the first line
	Comment   rune // comment character (0 = none)
}

// DetectDelimiter picks the field separator from a file's first line:
// comma if present, else semicolon, else tab, else comma.
func DetectDelimiter(firstLine string) rune {
	switch {
	case strings.Contains(firstLine, ","):
		return ','
	case strings.Contains(firstLine, ";"):
		return ';'
	case strings.Contains(firstLine, "\t"):
		return '\t'
	default:
		return ','
	}
}

// ReadCSV parses all rows from r. Rows may have varying field counts and
// stray quotes are tolerated. Returns the rows and the delimiter used.
// Without an explicit delimiter it is detected from the header line.
func ReadCSV(r io.Reader, opts CSVOptions) ([][]string, rune, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, eris.Wrap(err, "csv: read")
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	delim := opts.Delimiter
	if delim == 0 {
		delim = DetectDelimiter(headerLine(data))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delim
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, delim, eris.Wrap(err, "csv: read row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		rows = append(rows, record)
	}
	return rows, delim, nil
}

// headerLine returns the first line holding a candidate delimiter, skipping
// report titles; the first line when none does.
func headerLine(data []byte) string {
	lines := bytes.Split(data, []byte("\n"))
	for _, line := range lines {
		if bytes.ContainsAny(line, ",;\t") {
			return string(line)
		}
	}
	return string(lines[0])
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string, opts CSVOptions) ([][]string, rune, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, eris.Wrap(err, "csv: open file")
	}
	defer f.Close()

	return ReadCSV(f, opts)
}
