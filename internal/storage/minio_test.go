package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/config"
)

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		useSSL   bool
		endpoint string
		secure   bool
	}{
		{"https://s3.example.com/", false, "s3.example.com", true},
		{"http://localhost:9000", true, "localhost:9000", false},
		{"localhost:9000", true, "localhost:9000", true},
		{"//minio:9000", false, "minio:9000", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			endpoint, secure := splitEndpoint(tt.in, tt.useSSL)
			assert.Equal(t, tt.endpoint, endpoint)
			assert.Equal(t, tt.secure, secure)
		})
	}
}

func TestNewMinioClient_RequiresSettings(t *testing.T) {
	_, err := NewMinioClient(config.StorageConfig{})
	assert.Error(t, err)

	_, err = NewMinioClient(config.StorageConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	assert.Error(t, err)

	c, err := NewMinioClient(config.StorageConfig{
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "forecast",
	})
	require.NoError(t, err)
	assert.Equal(t, "forecast", c.bucket)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("exports/predictions.CSV"))
	assert.Equal(t, "application/octet-stream", contentType("blob"))
}

func TestSortOldestFirst(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	objects := []ObjectInfo{
		{Key: "sales/c.csv", LastModified: t0.Add(time.Hour)},
		{Key: "sales/b.csv", LastModified: t0},
		{Key: "sales/a.csv", LastModified: t0},
	}

	SortOldestFirst(objects)

	keys := make([]string, len(objects))
	for i, o := range objects {
		keys[i] = o.Key
	}
	assert.Equal(t, []string{"sales/a.csv", "sales/b.csv", "sales/c.csv"}, keys)
}
