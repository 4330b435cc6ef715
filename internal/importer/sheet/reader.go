// Package sheet turns CSV and Excel workbooks into rows of strings and maps
// those rows onto events, agenda sessions and lineup names.
package sheet

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/chravel/chravel-import/internal/errors"
	"github.com/chravel/chravel-import/internal/importer/datetime"
	"github.com/chravel/chravel-import/internal/importer/tokenize"
)

// ReadCSV tokenizes CSV bytes into trimmed rows.
func ReadCSV(data []byte) [][]string {
	return tokenize.ReadCSV(string(data))
}

// ReadExcel returns the raw rows of the workbook's first sheet. ext selects
// the reader: ".xls" uses the legacy BIFF reader, anything else is treated as
// Office Open XML. Date cells come back as YYYY-MM-DD, time cells as HH:MM.
func ReadExcel(data []byte, ext string) ([][]string, error) {
	if strings.EqualFold(ext, ".xls") {
		return readXLS(data)
	}
	return readXLSX(data)
}

type cellKind int

const (
	cellPlain cellKind = iota
	cellDate
	cellTime
	cellDateTime
)

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.New(apperrors.CodeStructural, "Could not read Excel file", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.New(apperrors.CodeStructural, "Excel file has no sheets")
	}
	name := sheets[0]

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperrors.New(apperrors.CodeStructural, "Could not read Excel sheet "+name, err)
	}

	kinds := map[int]cellKind{}
	for r, row := range rows {
		for c, value := range row {
			if value == "" {
				continue
			}
			serial, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			styleID, err := f.GetCellStyle(name, cell)
			if err != nil {
				continue
			}
			kind, ok := kinds[styleID]
			if !ok {
				kind = styleKind(f, styleID)
				kinds[styleID] = kind
			}
			if kind != cellPlain {
				row[c] = formatSerial(serial, kind)
			}
		}
	}
	return rows, nil
}

func styleKind(f *excelize.File, styleID int) cellKind {
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		return cellPlain
	}
	switch n := style.NumFmt; {
	case n >= 14 && n <= 17:
		return cellDate
	case n >= 18 && n <= 21, n >= 45 && n <= 47:
		return cellTime
	case n == 22:
		return cellDateTime
	}
	if style.CustomNumFmt != nil {
		return customFormatKind(*style.CustomNumFmt)
	}
	return cellPlain
}

// customFormatKind classifies a custom number format by the date and time
// tokens it contains, ignoring quoted literals and bracketed sections.
func customFormatKind(format string) cellKind {
	var sb strings.Builder
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(format) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			sb.WriteRune(r)
		}
	}
	tokens := sb.String()

	hasDate := strings.ContainsAny(tokens, "yd")
	hasTime := strings.ContainsAny(tokens, "hs")
	switch {
	case hasDate && hasTime:
		return cellDateTime
	case hasDate:
		return cellDate
	case hasTime:
		return cellTime
	}
	return cellPlain
}

func formatSerial(serial float64, kind cellKind) string {
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return strconv.FormatFloat(serial, 'f', -1, 64)
	}
	switch kind {
	case cellDate:
		return datetime.FormatDate(t)
	case cellTime:
		return datetime.FormatClock(t.Hour(), t.Minute())
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func readXLS(data []byte) (rows [][]string, err error) {
	// the BIFF reader panics on some truncated files
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, apperrors.New(apperrors.CodeStructural, "Could not read Excel file", fmt.Errorf("%v", r))
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, apperrors.New(apperrors.CodeStructural, "Could not read Excel file", err)
	}
	ws := wb.GetSheet(0)
	if ws == nil {
		return nil, apperrors.New(apperrors.CodeStructural, "Excel file has no sheets")
	}

	rows = make([][]string, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			rows = append(rows, []string{})
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			for len(cells) < j {
				cells = append(cells, "")
			}
			cells = append(cells, normalizeXLSCell(row.Col(j)))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// normalizeXLSCell rewrites the RFC 3339 timestamps the BIFF reader produces
// for date cells into the same shapes readXLSX emits.
func normalizeXLSCell(value string) string {
	value = strings.TrimSpace(value)
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return datetime.FormatDate(t)
	}
	return t.Format("2006-01-02 15:04")
}
