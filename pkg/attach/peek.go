package attach

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Peek is what the user sees about a workbook before it is uploaded.
type Peek struct {
	Format  string   `json:"format"`  // "xlsx" or "xls"
	Sheets  []string `json:"sheets"`  // all sheet names
	Sheet   string   `json:"sheet"`   // the sheet the server reads (the first one)
	Headers []string `json:"headers"` // first row of Sheet
	Rows    int      `json:"rows"`    // data rows below the header
}

// Inspect reads the sheet names and header row of a local workbook.
func Inspect(path string) (*Peek, error) {
	if err := ValidateExtension(path); err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls":
		return inspectXLS(path)
	default:
		return inspectXLSX(path)
	}
}

func inspectXLSX(path string) (*Peek, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	p := &Peek{Format: "xlsx", Sheets: f.GetSheetList()}
	if len(p.Sheets) == 0 {
		return p, nil
	}
	p.Sheet = p.Sheets[0]

	rows, err := f.GetRows(p.Sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", p.Sheet, err)
	}
	if len(rows) == 0 {
		return p, nil
	}
	p.Headers = trimHeaders(rows[0])
	for _, r := range rows[1:] {
		if !blank(r) {
			p.Rows++
		}
	}
	return p, nil
}

func inspectXLS(path string) (p *Peek, err error) {
	// the xls reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("read workbook: %v", r)
		}
	}()

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	p = &Peek{Format: "xls"}
	for i := 0; i < wb.NumSheets(); i++ {
		if s := wb.GetSheet(i); s != nil {
			p.Sheets = append(p.Sheets, s.Name)
		}
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return p, nil
	}
	p.Sheet = sheet.Name

	header := sheet.Row(0)
	if header == nil {
		return p, nil
	}
	var cols []string
	for c := header.FirstCol(); c < header.LastCol(); c++ {
		cols = append(cols, header.Col(c))
	}
	p.Headers = trimHeaders(cols)

	for i := 1; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		var cells []string
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		if !blank(cells) {
			p.Rows++
		}
	}
	return p, nil
}

// trimHeaders strips whitespace and drops trailing empty columns.
func trimHeaders(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.TrimSpace(c)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
