package testutil

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"judgegate/internal/common/storage"
)

// MemoryStorage is an in-memory storage.ObjectStorage.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	Gets    int
	Lists   int
	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// Put stores data under bucket/key.
func (m *MemoryStorage) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectID(bucket, key)] = append([]byte(nil), data...)
}

// Has reports whether bucket/key exists.
func (m *MemoryStorage) Has(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[objectID(bucket, key)]
	return ok
}

func (m *MemoryStorage) GetObject(ctx context.Context, bucket, objectKey string) (storage.ObjectReader, storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.Err != nil {
		return nil, storage.ObjectStat{}, m.Err
	}
	data, ok := m.objects[objectID(bucket, objectKey)]
	if !ok {
		return nil, storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

func (m *MemoryStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if m.Err != nil {
		return m.Err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.Put(bucket, objectKey, data)
	return nil
}

func (m *MemoryStorage) StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return storage.ObjectStat{}, m.Err
	}
	data, ok := m.objects[objectID(bucket, objectKey)]
	if !ok {
		return storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

func (m *MemoryStorage) ListObjects(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lists++
	if m.Err != nil {
		return nil, m.Err
	}
	var out []storage.ObjectInfo
	full := objectID(bucket, prefix)
	for id, data := range m.objects {
		if strings.HasPrefix(id, full) {
			out = append(out, storage.ObjectInfo{Key: strings.TrimPrefix(id, bucket+"/"), SizeBytes: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStorage) RemoveObject(ctx context.Context, bucket, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.objects, objectID(bucket, objectKey))
	return nil
}
