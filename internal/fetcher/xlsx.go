package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Workbook holds every sheet of an XLSX file as string rows.
type Workbook struct {
	names  []string
	sheets map[string][][]string
}

// ReadWorkbook loads all sheets of the XLSX file at path.
func ReadWorkbook(path string) (*Workbook, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	wb := &Workbook{sheets: make(map[string][][]string, len(f.Sheets))}
	for _, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			rows = append(rows, rowToStrings(row))
		}
		wb.names = append(wb.names, sheet.Name)
		wb.sheets[sheet.Name] = rows
	}
	return wb, nil
}

// SheetNames returns sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	return append([]string(nil), w.names...)
}

// Rows returns the rows of the named sheet.
func (w *Workbook) Rows(name string) ([][]string, bool) {
	rows, ok := w.sheets[name]
	return rows, ok
}

// FindSheet returns the first candidate present in the workbook. Each
// candidate is tried as an exact name, then case- and space-insensitively,
// before moving to the next candidate.
func (w *Workbook) FindSheet(candidates []string) (string, bool) {
	for _, c := range candidates {
		if _, ok := w.sheets[c]; ok {
			return c, true
		}
		want := strings.ToLower(strings.TrimSpace(c))
		for _, name := range w.names {
			if strings.ToLower(strings.TrimSpace(name)) == want {
				return name, true
			}
		}
	}
	return "", false
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}
