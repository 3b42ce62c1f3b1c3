// backend-go/cmd/forecast/main.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/bootstrap"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/config"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/export"
	"github.com/andresuchdata/sto-forecast/backend-go/pkg/logger"
)

type runner struct {
	app *bootstrap.App
}

func (r *runner) before(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if driver := c.String("db-driver"); driver != "" {
		cfg.Database.Driver = driver
	}
	logger.Setup(cfg.Log.Format, cfg.Log.Level)
	if c.Bool("verbose") {
		logger.SetLevel("debug")
	}

	r.app, err = bootstrap.New(cfg)
	return err
}

func (r *runner) after(c *cli.Context) error {
	if r.app == nil {
		return nil
	}
	return r.app.Close()
}

func stoFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{Name: "sto", Aliases: []string{"s"}, Usage: "STO identifier", Required: required}
}

func horizonFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "horizon", Usage: "daily, weekly or monthly", Value: string(domain.HorizonDaily)}
}

func main() {
	r := &runner{}

	app := &cli.App{
		Name:  "forecast",
		Usage: "Generate STO demand forecasts, import sales and reconcile accuracy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-driver",
				Usage:   "Override DB_DRIVER (postgres, pgx or memory)",
				EnvVars: []string{"FORECAST_CLI_DB_DRIVER"},
			},
			&cli.BoolFlag{Name: "verbose", Usage: "Log at debug level"},
		},
		Before: r.before,
		After:  r.after,
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Generate a forecast and supply recommendation",
				Flags: []cli.Flag{
					stoFlag(true),
					horizonFlag(),
					&cli.TimestampFlag{Name: "as-of", Usage: "Reference date (YYYY-MM-DD)", Layout: "2006-01-02"},
				},
				Action: r.generate,
			},
			{
				Name:  "ingest",
				Usage: "Import sales observations from CSV/XLSX files or object storage",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "file", Aliases: []string{"f"}, Usage: "Local CSV/XLSX file (repeatable)"},
					&cli.StringFlag{Name: "prefix", Usage: "Object storage prefix to import"},
				},
				Action: r.ingest,
			},
			{
				Name:  "reconcile",
				Usage: "Reconcile one finished period, or every STO when --sto is omitted",
				Flags: []cli.Flag{
					stoFlag(false),
					horizonFlag(),
					&cli.TimestampFlag{Name: "start", Usage: "Period start (YYYY-MM-DD)", Layout: "2006-01-02"},
				},
				Action: r.reconcile,
			},
			{
				Name:  "accuracy",
				Usage: "Show the rolled-up model accuracy of an STO",
				Flags: []cli.Flag{stoFlag(true)},
				Action: func(c *cli.Context) error {
					acc, err := r.app.Engine.ModelAccuracy(c.Context, c.String("sto"))
					if err != nil {
						return err
					}
					return printJSON(acc)
				},
			},
			{
				Name:  "export",
				Usage: "Export stored predictions of an STO",
				Flags: []cli.Flag{
					stoFlag(true),
					&cli.StringFlag{Name: "format", Value: "csv", Usage: "csv or xlsx"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
					&cli.StringFlag{Name: "upload", Usage: "Object storage key to upload the export to"},
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "Maximum number of predictions"},
				},
				Action: r.export,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func (r *runner) generate(c *cli.Context) error {
	var asOf time.Time
	if ts := c.Timestamp("as-of"); ts != nil {
		asOf = *ts
	}

	req, err := r.app.Engine.ParseRequest(c.String("sto"), c.String("horizon"), asOf)
	if err != nil {
		return err
	}

	result, err := r.app.Engine.Generate(c.Context, req)
	if result == nil {
		return err
	}
	if err != nil {
		log.Warn().Err(err).Msg("forecast generated but not persisted")
	}
	return printJSON(result)
}

func (r *runner) ingest(c *cli.Context) error {
	files := c.StringSlice("file")
	prefix := c.String("prefix")
	if len(files) == 0 && prefix == "" {
		return fmt.Errorf("either --file or --prefix is required")
	}

	total := 0
	for _, f := range files {
		n, err := r.app.Importer.ImportFile(c.Context, f)
		total += n
		if err != nil {
			return fmt.Errorf("import %s: %w", f, err)
		}
		log.Info().Str("file", f).Int("observations", n).Msg("file imported")
	}

	if prefix != "" {
		n, err := r.app.Importer.ImportPrefix(c.Context, prefix)
		total += n
		if err != nil {
			return err
		}
	}

	log.Info().Int("observations", total).Msg("import completed")
	return nil
}

func (r *runner) reconcile(c *cli.Context) error {
	if !c.IsSet("sto") {
		summary, err := r.app.Reconciler.RunOnce(c.Context)
		if err != nil {
			return err
		}
		return printJSON(summary)
	}

	horizon, ok := domain.ParseHorizon(c.String("horizon"))
	if !ok {
		return fmt.Errorf("%w: unsupported horizon %q", domain.ErrInvalidInput, c.String("horizon"))
	}
	start := c.Timestamp("start")
	if start == nil {
		return fmt.Errorf("--start is required with --sto")
	}

	records, err := r.app.Engine.ReconcileAccuracy(c.Context, c.String("sto"), domain.Period{Horizon: horizon, Start: *start})
	if err != nil {
		return err
	}
	return printJSON(records)
}

func (r *runner) export(c *cli.Context) error {
	results, err := r.app.Engine.History(c.Context, c.String("sto"), c.Int("limit"))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch strings.ToLower(c.String("format")) {
	case "xlsx":
		err = export.WritePredictionsXLSX(&buf, results, export.DefaultOptions)
	case "csv":
		err = export.WritePredictionsCSV(&buf, results, export.DefaultOptions)
	default:
		return fmt.Errorf("unsupported format %q", c.String("format"))
	}
	if err != nil {
		return err
	}

	if key := c.String("upload"); key != "" {
		if r.app.Objects == nil {
			return fmt.Errorf("object storage is not configured")
		}
		if err := r.app.Objects.UploadObject(c.Context, key, buf.Bytes()); err != nil {
			return err
		}
		log.Info().Str("key", key).Int("predictions", len(results)).Msg("export uploaded")
	}

	out := c.String("out")
	if out == "" {
		if c.String("upload") != "" {
			return nil
		}
		_, err = os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, buf.Bytes(), 0o644)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
