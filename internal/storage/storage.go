package storage

import (
	"context"
	"sort"
	"time"
)

// ObjectInfo describes one stored sales or export file.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage is the bucket used for sales imports and prediction exports.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, destPath string) error
	UploadObject(ctx context.Context, key string, data []byte) error
}

// SortOldestFirst orders objects by modification time, then key.
func SortOldestFirst(objects []ObjectInfo) {
	sort.SliceStable(objects, func(i, j int) bool {
		if !objects[i].LastModified.Equal(objects[j].LastModified) {
			return objects[i].LastModified.Before(objects[j].LastModified)
		}
		return objects[i].Key < objects[j].Key
	})
}
