package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"judgegate/internal/common/cache"
	"judgegate/internal/common/storage"
	"judgegate/internal/run/model"

	"github.com/zeromicro/go-zero/core/syncx"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCaseCacheTTL    = 24 * time.Hour
	defaultReadConcurrency = 8
	defaultLoadTimeout     = 30 * time.Second

	caseFilesKeyPrefix    = "run:case_files:"
	caseContentsKeyPrefix = "run:case_contents:"
)

// CaseStoreConfig configures problem case artifact access.
type CaseStoreConfig struct {
	Bucket          string        `yaml:"bucket"`
	CacheTTL        time.Duration `yaml:"cacheTTL"`
	ReadConcurrency int           `yaml:"readConcurrency"`
	// LoadTimeout bounds a shared cache fill, independent of the caller
	// that started it.
	LoadTimeout time.Duration `yaml:"loadTimeout"`
}

// CaseStore lists and reads test case files of a published problem revision.
// Object keys follow "{alias}/{revision}/{directory}/{file}".
type CaseStore struct {
	objects     storage.ObjectStorage
	cache       cache.Cache
	bucket      string
	ttl         time.Duration
	concurrency int
	loadTimeout time.Duration
	flight      syncx.SingleFlight
}

// NewCaseStore creates a case store.
func NewCaseStore(objects storage.ObjectStorage, c cache.Cache, cfg CaseStoreConfig) *CaseStore {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCaseCacheTTL
	}
	concurrency := cfg.ReadConcurrency
	if concurrency <= 0 {
		concurrency = defaultReadConcurrency
	}
	loadTimeout := cfg.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}
	return &CaseStore{
		objects:     objects,
		cache:       c,
		bucket:      cfg.Bucket,
		ttl:         ttl,
		concurrency: concurrency,
		loadTimeout: loadTimeout,
		flight:      syncx.NewSingleFlight(),
	}
}

// CacheKey identifies a cached listing or content bundle.
func CacheKey(alias, revision, directory string) string {
	return fmt.Sprintf("%s-%s-%s", alias, revision, directory)
}

// ListCaseFiles returns the files under directory for the given revision.
func (s *CaseStore) ListCaseFiles(ctx context.Context, alias, revision, directory string) ([]model.CaseFile, error) {
	key := caseFilesKeyPrefix + CacheKey(alias, revision, directory)
	return cachedJSON(ctx, s, key, func(ctx context.Context) ([]model.CaseFile, error) {
		return s.listCaseFiles(ctx, alias, revision, directory)
	})
}

// ReadCaseContents returns the input and expected output of every case under
// directory, keyed by case name. Files other than .in and .out are skipped.
func (s *CaseStore) ReadCaseContents(ctx context.Context, alias, revision, directory string) (map[string]model.CaseContents, error) {
	key := caseContentsKeyPrefix + CacheKey(alias, revision, directory)
	return cachedJSON(ctx, s, key, func(ctx context.Context) (map[string]model.CaseContents, error) {
		return s.readCaseContents(ctx, alias, revision, directory)
	})
}

// TotalSize sums the sizes reported by the listings of the given directories.
func (s *CaseStore) TotalSize(ctx context.Context, alias, revision string, directories ...string) (int64, error) {
	var total int64
	for _, dir := range directories {
		files, err := s.ListCaseFiles(ctx, alias, revision, dir)
		if err != nil {
			return 0, err
		}
		for _, f := range files {
			total += f.Size
		}
	}
	return total, nil
}

func (s *CaseStore) prefix(alias, revision, directory string) string {
	return path.Join(alias, revision, directory) + "/"
}

func (s *CaseStore) listCaseFiles(ctx context.Context, alias, revision, directory string) ([]model.CaseFile, error) {
	prefix := s.prefix(alias, revision, directory)
	objects, err := s.objects.ListObjects(ctx, s.bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	files := make([]model.CaseFile, 0, len(objects))
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, path.Join(alias, revision)+"/")
		files = append(files, model.CaseFile{Path: rel, Size: obj.SizeBytes})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *CaseStore) readCaseContents(ctx context.Context, alias, revision, directory string) (map[string]model.CaseContents, error) {
	files, err := s.ListCaseFiles(ctx, alias, revision, directory)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out = make(map[string]model.CaseContents)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, f := range files {
		name := path.Base(f.Path)
		ext := path.Ext(name)
		if ext != ".in" && ext != ".out" {
			continue
		}
		caseName := strings.TrimSuffix(name, ext)
		key := path.Join(alias, revision, f.Path)
		g.Go(func() error {
			data, err := s.readObject(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			c := out[caseName]
			if ext == ".in" {
				c.In = data
			} else {
				c.Out = data
			}
			out[caseName] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CaseStore) readObject(ctx context.Context, key string) (string, error) {
	reader, _, err := s.objects.GetObject(ctx, s.bucket, key)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), nil
}

// cachedJSON serves key from the cache, collapsing concurrent misses into a
// single computation. Cache failures fall through to compute. The shared
// computation outlives the caller that started it, up to the load timeout.
func cachedJSON[T any](ctx context.Context, s *CaseStore, key string, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil && raw != "" {
			var cached T
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
		}
	}

	v, err := s.flight.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if encoded, err := json.Marshal(value); err == nil {
				_ = s.cache.Set(ctx, key, string(encoded), s.ttl)
			}
		}
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
