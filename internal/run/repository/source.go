package repository

import (
	"context"
	"errors"
	"io"
	"strings"

	"judgegate/internal/common/storage"
	pkgrepo "judgegate/pkg/repository"
)

const sourceKeyPrefix = "submissions/"

// SourceRepository keeps submission sources as objects keyed by guid.
type SourceRepository struct {
	objects storage.ObjectStorage
	bucket  string
}

// NewSourceRepository creates a source repository.
func NewSourceRepository(objects storage.ObjectStorage, bucket string) (*SourceRepository, error) {
	if objects == nil {
		return nil, errors.New("object storage is required")
	}
	if bucket == "" {
		return nil, errors.New("source bucket is required")
	}
	return &SourceRepository{objects: objects, bucket: bucket}, nil
}

func sourceKey(guid string) string {
	return sourceKeyPrefix + guid
}

// Put stores the source of a submission.
func (r *SourceRepository) Put(ctx context.Context, guid, source string) error {
	if guid == "" {
		return pkgrepo.ErrInvalidInput
	}
	return r.objects.PutObject(ctx, r.bucket, sourceKey(guid), strings.NewReader(source), int64(len(source)), "text/plain; charset=utf-8")
}

// Get reads the source of a submission.
func (r *SourceRepository) Get(ctx context.Context, guid string) (string, error) {
	reader, _, err := r.objects.GetObject(ctx, r.bucket, sourceKey(guid))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", pkgrepo.ErrNotFound
		}
		return "", err
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Delete removes the source of a submission. A missing object is not an error.
func (r *SourceRepository) Delete(ctx context.Context, guid string) error {
	return r.objects.RemoveObject(ctx, r.bucket, sourceKey(guid))
}
