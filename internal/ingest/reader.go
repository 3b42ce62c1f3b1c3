package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

// Format is the encoding of a sales import file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Accepted header names per field, lower-cased.
var (
	dateColumns     = []string{"tanggal", "date"}
	entityColumns   = []string{"sto_id", "sto"}
	quantityColumns = []string{"total_barang_terjual", "quantity", "qty"}
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02-01-2006",
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidInput, filepath.Ext(path))
	}
}

// ReadFile parses the sales observations in a CSV or XLSX file.
func ReadFile(path string) ([]domain.SalesObservation, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return ReadSales(f, format)
}

// ReadSales parses sales observations from r. The first row is the header.
func ReadSales(r io.Reader, format Format) ([]domain.SalesObservation, error) {
	switch format {
	case FormatCSV:
		return readCSV(r)
	case FormatXLSX:
		return readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidInput, format)
	}
}

func readCSV(r io.Reader) ([]domain.SalesObservation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var out []domain.SalesObservation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		obs, ok, err := cols.parse(record, line)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, obs)
		}
	}
	return out, nil
}

// readXLSX reads the first sheet of a workbook.
func readXLSX(r io.Reader) ([]domain.SalesObservation, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: xlsx has no sheets", domain.ErrInvalidInput)
	}
	sheet := sheets[0]

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", sheet, err)
	}
	defer rows.Close()

	var (
		cols *columns
		out  []domain.SalesObservation
	)
	for line := 1; rows.Next(); line++ {
		record, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		if cols == nil {
			if cols, err = mapColumns(record); err != nil {
				return nil, err
			}
			continue
		}
		obs, ok, err := cols.parse(record, line)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, obs)
		}
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("error iterating rows in %s: %w", sheet, err)
	}
	if cols == nil {
		return nil, fmt.Errorf("%w: xlsx sheet %s is empty", domain.ErrInvalidInput, sheet)
	}
	return out, nil
}

type columns struct {
	date, entity, quantity int
}

func mapColumns(header []string) (*columns, error) {
	colMap := make(map[string]int, len(header))
	for i, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}

	find := func(names []string) (int, error) {
		for _, n := range names {
			if idx, ok := colMap[n]; ok {
				return idx, nil
			}
		}
		return 0, fmt.Errorf("%w: missing required column %s", domain.ErrInvalidInput, names[0])
	}

	var (
		c   columns
		err error
	)
	if c.date, err = find(dateColumns); err != nil {
		return nil, err
	}
	if c.entity, err = find(entityColumns); err != nil {
		return nil, err
	}
	if c.quantity, err = find(quantityColumns); err != nil {
		return nil, err
	}
	return &c, nil
}

// parse converts one record. Blank rows are skipped (ok == false).
func (c *columns) parse(record []string, line int) (domain.SalesObservation, bool, error) {
	get := func(idx int) string {
		if idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	rawDate, entity, rawQty := get(c.date), get(c.entity), get(c.quantity)
	if rawDate == "" && entity == "" && rawQty == "" {
		return domain.SalesObservation{}, false, nil
	}
	if entity == "" {
		return domain.SalesObservation{}, false, fmt.Errorf("%w: line %d: sto_id is empty", domain.ErrInvalidInput, line)
	}

	date, err := parseDate(rawDate)
	if err != nil {
		return domain.SalesObservation{}, false, fmt.Errorf("%w: line %d: %v", domain.ErrInvalidInput, line, err)
	}
	qty, err := parseQuantity(rawQty)
	if err != nil {
		return domain.SalesObservation{}, false, fmt.Errorf("%w: line %d: %v", domain.ErrInvalidInput, line, err)
	}

	return domain.SalesObservation{EntityID: entity, Date: date, Quantity: qty}, true, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.TruncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseQuantity accepts "12.5" and the comma-decimal "12,5".
func parseQuantity(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative quantity %v", v)
	}
	return v, nil
}
