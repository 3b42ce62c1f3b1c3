package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

// Options control number formatting of an export.
type Options struct {
	// Indonesian selects "1.234,56" number formatting and a ';' CSV delimiter.
	Indonesian bool
	Decimals   int
}

// DefaultOptions matches the reports produced for operations teams.
var DefaultOptions = Options{Indonesian: true, Decimals: 2}

var predictionHeader = []string{
	"prediction_id",
	"sto_id",
	"horizon",
	"prediction_date",
	"predicted_sales",
	"predicted_supply",
	"confidence_score",
	"risk_level",
	"action_required",
	"model_version",
	"data_flags",
	"created_at",
}

func (o Options) number(v float64) string {
	if o.Indonesian {
		return formatIDFloat(v, o.Decimals)
	}
	return formatFloat(v, o.Decimals)
}

func (o Options) row(r *domain.PredictionResult) []string {
	return []string{
		r.ID,
		r.EntityID,
		string(r.Horizon),
		r.PredictionDate.Format("2006-01-02"),
		o.number(r.PredictedSales),
		o.number(r.PredictedSupply),
		o.number(r.Confidence),
		string(r.RiskLevel),
		r.Action,
		r.ModelVersion,
		strings.Join(r.DataFlags, "|"),
		r.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

// WritePredictionsCSV writes results as CSV with a header row.
func WritePredictionsCSV(w io.Writer, results []*domain.PredictionResult, opts Options) error {
	cw := csv.NewWriter(w)
	if opts.Indonesian {
		cw.Comma = ';'
	}

	if err := cw.Write(predictionHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range results {
		if err := cw.Write(opts.row(r)); err != nil {
			return fmt.Errorf("failed to write csv row for %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePredictionsXLSX writes results to the first sheet of a new workbook.
// Numbers are stored as numeric cells rounded to opts.Decimals.
func WritePredictionsXLSX(w io.Writer, results []*domain.PredictionResult, opts Options) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Predictions"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(predictionHeader))
	for i, h := range predictionHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write xlsx header: %w", err)
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			r.ID,
			r.EntityID,
			string(r.Horizon),
			r.PredictionDate.Format("2006-01-02"),
			roundTo(r.PredictedSales, opts.Decimals),
			roundTo(r.PredictedSupply, opts.Decimals),
			roundTo(r.Confidence, opts.Decimals),
			string(r.RiskLevel),
			r.Action,
			r.ModelVersion,
			strings.Join(r.DataFlags, "|"),
			r.GeneratedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write xlsx row for %s: %w", r.ID, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
