package ingest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/storage"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReadSales_CSV(t *testing.T) {
	input := "tanggal,sto_id,total_barang_terjual\n" +
		"2024-03-01,A1,4\n" +
		"02/03/2024,A1,\"5,5\"\n" +
		",,\n" +
		"2024-03-03T08:00:00Z,B2,0\n"

	obs, err := ReadSales(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	require.Len(t, obs, 3)

	assert.Equal(t, domain.SalesObservation{EntityID: "A1", Date: day(2024, 3, 1), Quantity: 4}, obs[0])
	assert.Equal(t, domain.SalesObservation{EntityID: "A1", Date: day(2024, 3, 2), Quantity: 5.5}, obs[1])
	assert.Equal(t, domain.SalesObservation{EntityID: "B2", Date: day(2024, 3, 3), Quantity: 0}, obs[2])
}

func TestReadSales_EnglishHeaders(t *testing.T) {
	input := "Date, STO_ID, Quantity\n2024-03-01, A1, 7\n"

	obs, err := ReadSales(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 7.0, obs[0].Quantity)
}

func TestReadSales_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing column", "tanggal,sto_id\n2024-03-01,A1\n"},
		{"bad date", "tanggal,sto_id,quantity\nyesterday,A1,3\n"},
		{"negative quantity", "tanggal,sto_id,quantity\n2024-03-01,A1,-3\n"},
		{"bad quantity", "tanggal,sto_id,quantity\n2024-03-01,A1,many\n"},
		{"missing entity", "tanggal,sto_id,quantity\n2024-03-01,,3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSales(strings.NewReader(tt.input), FormatCSV)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestReadSales_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"sto_id", "tanggal", "total_barang_terjual"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"A1", "2024-03-01", 4}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"A1", "2024-03-02", 6}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	obs, err := ReadSales(bytes.NewReader(buf.Bytes()), FormatXLSX)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, domain.SalesObservation{EntityID: "A1", Date: day(2024, 3, 2), Quantity: 6}, obs[1])
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("exports/sales_harian.CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = FormatFromPath("sales.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = FormatFromPath("sales.json")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

type recorderFunc func(ctx context.Context, obs []domain.SalesObservation) (int, error)

func (f recorderFunc) RecordSales(ctx context.Context, obs []domain.SalesObservation) (int, error) {
	return f(ctx, obs)
}

func TestImporter_RecordsInBatches(t *testing.T) {
	var batches []int
	rec := recorderFunc(func(_ context.Context, obs []domain.SalesObservation) (int, error) {
		batches = append(batches, len(obs))
		return len(obs), nil
	})

	im := NewImporter(rec, nil)
	im.batchSize = 2

	obs := make([]domain.SalesObservation, 5)
	n, err := im.Record(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{2, 2, 1}, batches)
}

func TestImporter_ImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte("tanggal,sto_id,quantity\n2024-03-01,A1,3\n2024-03-02,A1,4\n"), 0o644))

	var got []domain.SalesObservation
	im := NewImporter(recorderFunc(func(_ context.Context, obs []domain.SalesObservation) (int, error) {
		got = append(got, obs...)
		return len(obs), nil
	}), nil)

	n, err := im.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, got, 2)
}

type fakeObjects struct {
	files    map[string][]byte
	modified map[string]time.Time
}

func (f *fakeObjects) ListObjects(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for k, v := range f.files {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v)), LastModified: f.modified[k]})
		}
	}
	return out, nil
}

func (f *fakeObjects) DownloadObject(_ context.Context, key, destPath string) error {
	return os.WriteFile(destPath, f.files[key], 0o644)
}

func (f *fakeObjects) UploadObject(_ context.Context, key string, data []byte) error {
	f.files[key] = data
	return nil
}

func TestImporter_ImportPrefix(t *testing.T) {
	objects := &fakeObjects{files: map[string][]byte{
		"sales/2024-03-01.csv": []byte("tanggal,sto_id,quantity\n2024-03-01,A1,3\n"),
		"sales/readme.txt":     []byte("not a sales file"),
		"other/2024-03-02.csv": []byte("tanggal,sto_id,quantity\n2024-03-02,A1,3\n"),
	}}

	count := 0
	im := NewImporter(recorderFunc(func(_ context.Context, obs []domain.SalesObservation) (int, error) {
		count += len(obs)
		return len(obs), nil
	}), objects)

	n, err := im.ImportPrefix(context.Background(), "sales/")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, count)

	_, err = NewImporter(im.recorder, nil).ImportPrefix(context.Background(), "sales/")
	assert.Error(t, err)
}

func TestImporter_ImportPrefixAppliesOldestFirst(t *testing.T) {
	t0 := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	objects := &fakeObjects{
		files: map[string][]byte{
			"sales/a_revised.csv": []byte("tanggal,sto_id,quantity\n2024-03-01,A1,7\n"),
			"sales/b_initial.csv": []byte("tanggal,sto_id,quantity\n2024-03-01,A1,3\n"),
		},
		modified: map[string]time.Time{
			"sales/a_revised.csv": t0.Add(time.Hour),
			"sales/b_initial.csv": t0,
		},
	}

	var applied []float64
	im := NewImporter(recorderFunc(func(_ context.Context, obs []domain.SalesObservation) (int, error) {
		for _, o := range obs {
			applied = append(applied, o.Quantity)
		}
		return len(obs), nil
	}), objects)

	_, err := im.ImportPrefix(context.Background(), "sales/")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 7}, applied)
}
