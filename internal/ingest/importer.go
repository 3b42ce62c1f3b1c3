package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/storage"
)

const defaultBatchSize = 500

// SalesRecorder stores observations and invalidates affected forecasts.
type SalesRecorder interface {
	RecordSales(ctx context.Context, observations []domain.SalesObservation) (int, error)
}

// Importer loads sales files from disk or object storage into a SalesRecorder.
type Importer struct {
	recorder  SalesRecorder
	objects   storage.ObjectStorage
	batchSize int
}

// NewImporter creates an importer. objects may be nil when only local files are imported.
func NewImporter(recorder SalesRecorder, objects storage.ObjectStorage) *Importer {
	return &Importer{
		recorder:  recorder,
		objects:   objects,
		batchSize: defaultBatchSize,
	}
}

// ImportFile parses a local CSV/XLSX file and records its observations.
func (im *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	observations, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	return im.Record(ctx, observations)
}

// Record stores observations in batches and returns how many were written.
func (im *Importer) Record(ctx context.Context, observations []domain.SalesObservation) (int, error) {
	total := 0
	for start := 0; start < len(observations); start += im.batchSize {
		end := start + im.batchSize
		if end > len(observations) {
			end = len(observations)
		}
		n, err := im.recorder.RecordSales(ctx, observations[start:end])
		total += n
		if err != nil {
			return total, fmt.Errorf("record batch %d-%d: %w", start, end, err)
		}
	}
	return total, nil
}

// ImportPrefix imports every CSV/XLSX object under prefix, oldest first, so a
// re-uploaded day overwrites the earlier quantities.
func (im *Importer) ImportPrefix(ctx context.Context, prefix string) (int, error) {
	if im.objects == nil {
		return 0, fmt.Errorf("object storage is not configured")
	}

	objects, err := im.objects.ListObjects(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list objects under %s: %w", prefix, err)
	}
	storage.SortOldestFirst(objects)

	tmpDir, err := os.MkdirTemp("", "sales-import-*")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	total := 0
	for _, obj := range objects {
		if _, err := FormatFromPath(obj.Key); err != nil {
			log.Debug().Str("key", obj.Key).Msg("skipping non-sales object")
			continue
		}

		dest := filepath.Join(tmpDir, filepath.Base(obj.Key))
		if err := im.objects.DownloadObject(ctx, obj.Key, dest); err != nil {
			return total, fmt.Errorf("download %s: %w", obj.Key, err)
		}

		n, err := im.ImportFile(ctx, dest)
		total += n
		if err != nil {
			return total, fmt.Errorf("import %s: %w", obj.Key, err)
		}
		log.Info().Str("key", obj.Key).Int("observations", n).Msg("sales object imported")
	}
	return total, nil
}
