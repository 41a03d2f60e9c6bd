// Package artifact resolves run and problem artifacts from the grading
// backend, falling back to a signed object store fetch for cold run resources.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"judgegate/internal/common/storage"
	"judgegate/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultFetchTimeout = 10 * time.Second

// RunResources is the grading backend's store of per-run resources.
// A missing resource is reported as storage.ErrObjectNotFound.
type RunResources interface {
	OpenRunResource(ctx context.Context, runID int64, filename string) (io.ReadCloser, error)
}

// FallbackObserver is notified of the outcome of each cold fetch.
type FallbackObserver interface {
	ObserveFallback(outcome string)
}

// ResolverConfig configures the signed object store fallback.
type ResolverConfig struct {
	S3 SignerConfig `yaml:"s3"`
	// BaseURL overrides https://{host}; used against non-AWS endpoints.
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// Resolver looks up run resources through the grading backend first and the
// remote archive second.
type Resolver struct {
	backend  RunResources
	signer   *Signer
	client   *http.Client
	baseURL  string
	timeout  time.Duration
	observer FallbackObserver
	now      func() time.Time
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient sets the client used for remote fetches.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) { r.client = client }
}

// WithClock overrides the signing clock.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithFallbackObserver records cold fetch outcomes.
func WithFallbackObserver(o FallbackObserver) ResolverOption {
	return func(r *Resolver) { r.observer = o }
}

// NewResolver creates a resolver.
func NewResolver(backend RunResources, cfg ResolverConfig, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		backend: backend,
		signer:  NewSigner(cfg.S3),
		client:  http.DefaultClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		now:     time.Now,
	}
	if r.timeout <= 0 {
		r.timeout = defaultFetchTimeout
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the contents of a run resource. ok is false when neither
// the grading backend nor the archive holds it.
func (r *Resolver) Resolve(ctx context.Context, runID int64, filename string) ([]byte, bool) {
	rc, ok := r.Open(ctx, runID, filename)
	if !ok {
		return nil, false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		logger.Warn(ctx, "failed to read run resource",
			zap.Int64("run_id", runID), zap.String("filename", filename), zap.Error(err))
		return nil, false
	}
	return data, true
}

// Open streams a run resource. The caller must close the returned reader.
func (r *Resolver) Open(ctx context.Context, runID int64, filename string) (io.ReadCloser, bool) {
	if r.backend != nil {
		rc, err := r.backend.OpenRunResource(ctx, runID, filename)
		if err == nil {
			return rc, true
		}
		if !errors.Is(err, storage.ErrObjectNotFound) {
			logger.Warn(ctx, "grader resource lookup failed, trying archive",
				zap.Int64("run_id", runID), zap.String("filename", filename), zap.Error(err))
		}
	}
	return r.openRemote(ctx, runID, filename)
}

func (r *Resolver) openRemote(ctx context.Context, runID int64, filename string) (io.ReadCloser, bool) {
	if !r.signer.Enabled() {
		r.observe("disabled")
		return nil, false
	}

	signed := r.signer.Sign(fmt.Sprintf("/%d/%s", runID, filename), r.now())
	base := r.baseURL
	if base == "" {
		base = "https://" + signed.Host
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, base+signed.Path, nil)
	if err != nil {
		cancel()
		logger.Warn(ctx, "failed to build archive request", zap.Int64("run_id", runID), zap.Error(err))
		r.observe("error")
		return nil, false
	}
	for _, h := range signed.Headers {
		if h.Name == "Host" {
			req.Host = h.Value
			continue
		}
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		cancel()
		logger.Warn(ctx, "archive fetch failed",
			zap.Int64("run_id", runID), zap.String("filename", filename), zap.Error(err))
		r.observe("error")
		return nil, false
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		logger.Warn(ctx, "archive fetch returned non-200",
			zap.Int64("run_id", runID),
			zap.String("filename", filename),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", bytes.TrimSpace(body)),
		)
		r.observe("miss")
		return nil, false
	}
	r.observe("hit")
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, true
}

func (r *Resolver) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveFallback(outcome)
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
