// Package export renders normalized measurement sections as spreadsheets.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/afm-api/internal/payload"
	"github.com/sells-group/afm-api/internal/records"
)

// Format is an export file format.
type Format string

// Supported formats.
const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Sheet names of an XLSX export.
const (
	SheetInformation = "Information"
	SheetSummary     = "Summary"
	SheetData        = "Data"
)

// ErrUnsupported is returned for unknown formats and sections.
var ErrUnsupported = eris.New("export: unsupported")

// ParseFormat parses a format name; blank means XLSX.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", eris.Wrapf(ErrUnsupported, "format %q", s)
	}
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Section picks the records of a named section, "summary" or "data".
func Section(d records.Detail, name string) ([]records.Record, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "data":
		return d.Data, nil
	case "summary":
		return d.Summary, nil
	default:
		return nil, eris.Wrapf(ErrUnsupported, "section %q", name)
	}
}

// Columns returns the union of record fields in first-seen order.
func Columns(recs []records.Record) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range recs {
		for _, k := range payload.Keys(r) {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	return cols
}

// WriteXLSX writes a workbook with the information, summary and data of d.
func WriteXLSX(w io.Writer, d records.Detail) error {
	f := xlsx.NewFile()

	info, err := f.AddSheet(SheetInformation)
	if err != nil {
		return eris.Wrap(err, "export: add information sheet")
	}
	header := info.AddRow()
	header.AddCell().SetString("Field")
	header.AddCell().SetString("Value")
	if d.Information != nil {
		for pair := d.Information.Oldest(); pair != nil; pair = pair.Next() {
			row := info.AddRow()
			row.AddCell().SetString(pair.Key)
			setCell(row.AddCell(), pair.Value)
		}
	}

	for _, s := range []struct {
		name string
		recs []records.Record
	}{
		{SheetSummary, d.Summary},
		{SheetData, d.Data},
	} {
		sheet, err := f.AddSheet(s.name)
		if err != nil {
			return eris.Wrapf(err, "export: add %s sheet", s.name)
		}
		cols := Columns(s.recs)
		header := sheet.AddRow()
		for _, c := range cols {
			header.AddCell().SetString(c)
		}
		for _, rec := range s.recs {
			row := sheet.AddRow()
			for _, c := range cols {
				v, _ := rec.Get(c)
				setCell(row.AddCell(), v)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

func setCell(cell *xlsx.Cell, v any) {
	switch x := v.(type) {
	case nil:
		cell.SetString("")
	case string:
		cell.SetString(x)
	case int64:
		cell.SetInt64(x)
	case float64:
		cell.SetFloat(x)
	case bool:
		cell.SetBool(x)
	default:
		cell.SetString(formatValue(v))
	}
}

// WriteCSV writes recs as CSV with a header of their columns.
func WriteCSV(w io.Writer, recs []records.Record) error {
	cw := csv.NewWriter(w)
	cols := Columns(recs)
	if err := cw.Write(cols); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	row := make([]string, len(cols))
	for _, rec := range recs {
		for i, c := range cols {
			v, _ := rec.Get(c)
			row[i] = formatValue(v)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
