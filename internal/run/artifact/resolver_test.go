package artifact_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"judgegate/internal/common/storage"
	"judgegate/internal/run/artifact"
	"judgegate/internal/testutil"
)

type fakeBackend struct {
	files map[string]string
	err   error
	calls int
}

func (f *fakeBackend) OpenRunResource(ctx context.Context, runID int64, filename string) (io.ReadCloser, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.files[filename]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

type outcomes []string

func (o *outcomes) ObserveFallback(outcome string) { *o = append(*o, outcome) }

var fixedClock = func() time.Time { return time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC) }

func archiveConfig(baseURL string) artifact.ResolverConfig {
	return artifact.ResolverConfig{
		S3: artifact.SignerConfig{
			AccessKey: "AKIDEXAMPLE",
			SecretKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
			Region:    "us-east-1",
			Bucket:    "judgegate-runs",
			Service:   "s3",
		},
		BaseURL: baseURL,
		Timeout: time.Second,
	}
}

func TestResolvePrefersGradingBackend(t *testing.T) {
	backend := &fakeBackend{files: map[string]string{"details.json": `{"verdict":"AC"}`}}
	r := artifact.NewResolver(backend, artifact.ResolverConfig{})

	data, ok := r.Resolve(context.Background(), 42, "details.json")
	testutil.AssertTrue(t, ok, "resource should resolve")
	testutil.AssertEqual(t, string(data), `{"verdict":"AC"}`)
}

func TestResolveFallsBackToSignedArchive(t *testing.T) {
	var gotAuth, gotHost, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotHost = r.Host
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("archived"))
	}))
	defer srv.Close()

	var seen outcomes
	r := artifact.NewResolver(&fakeBackend{}, archiveConfig(srv.URL),
		artifact.WithClock(fixedClock), artifact.WithFallbackObserver(&seen))

	data, ok := r.Resolve(context.Background(), 42, "details.json")
	testutil.AssertTrue(t, ok, "archive should serve the resource")
	testutil.AssertEqual(t, string(data), "archived")
	testutil.AssertEqual(t, gotPath, "/42/details.json")
	testutil.AssertEqual(t, gotHost, "judgegate-runs.s3.amazonaws.com")
	testutil.AssertTrue(t, strings.HasSuffix(gotAuth, "Signature=06ec0b0b14af1b82fe85ad4f1ba3506e6533671276896b577b3f6c4c0f6825e8"), "unexpected authorization "+gotAuth)
	testutil.AssertEqual(t, []string(seen), []string{"hit"})
}

func TestResolveArchiveFailuresAreAbsent(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name:    "not found",
			handler: func(w http.ResponseWriter, r *http.Request) { http.Error(w, "NoSuchKey", http.StatusNotFound) },
			want:    "miss",
		},
		{
			name:    "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			want:    "miss",
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			want: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cfg := archiveConfig(srv.URL)
			cfg.Timeout = 100 * time.Millisecond
			var seen outcomes
			r := artifact.NewResolver(&fakeBackend{}, cfg, artifact.WithFallbackObserver(&seen))

			data, ok := r.Resolve(context.Background(), 7, "logs.txt.gz")
			testutil.AssertFalse(t, ok, "failed fetch must be absent")
			testutil.AssertNil(t, data)
			testutil.AssertEqual(t, []string(seen), []string{tt.want})
		})
	}
}

func TestResolveWithoutCredentialsSkipsArchive(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	r := artifact.NewResolver(&fakeBackend{}, artifact.ResolverConfig{BaseURL: srv.URL})

	_, ok := r.Resolve(context.Background(), 1, "details.json")
	testutil.AssertFalse(t, ok, "resource should be absent")
	testutil.AssertFalse(t, called, "archive must not be contacted without credentials")
}

func TestResolveBackendErrorStillFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("from archive"))
	}))
	defer srv.Close()

	backend := &fakeBackend{err: errors.New("connection refused")}
	r := artifact.NewResolver(backend, archiveConfig(srv.URL))

	data, ok := r.Resolve(context.Background(), 3, "files.zip")
	testutil.AssertTrue(t, ok, "archive should serve the resource")
	testutil.AssertEqual(t, string(data), "from archive")
	testutil.AssertEqual(t, backend.calls, 1)
}
