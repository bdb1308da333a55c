package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mccutchen/go-httpbin/httpbin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builderkit/modloader/activation"
	"github.com/builderkit/modloader/jsruntime"
	"github.com/builderkit/modloader/log"
	"github.com/builderkit/modloader/storage"
)

const flashcardsBundle = `
window.initializeFlashcards = function (cfg) {
	window.flashcardsView = cfg.viewKey;
};
`

func bundleServer(t *testing.T, bundles map[string]string) (*httptest.Server, *int64) {
	t.Helper()

	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		src, ok := bundles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = fmt.Fprint(w, src)
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func TestLoaderLoad(t *testing.T) {
	t.Parallel()

	srv, _ := bundleServer(t, map[string]string{
		"/flashcards.js": flashcardsBundle,
		"/silent.js":     `var silent = true;`,
		"/throws.js":     `window.initializeThrows = function () { throw new Error("bad deck"); };`,
		"/broken.js":     `function (`,
	})
	actx := activation.NewContext("scene_1206", "view_3005")

	tests := []struct {
		name            string
		desc            *activation.Descriptor
		wantErr         bool
		wantInitialized bool
		check           func(t *testing.T, r *jsruntime.Runner)
	}{
		{
			name:            "initializer_called_with_config",
			desc:            &activation.Descriptor{ID: "flashcards", SourceURL: srv.URL + "/flashcards.js"},
			wantInitialized: true,
			check: func(t *testing.T, r *jsruntime.Runner) {
				t.Helper()
				assert.Equal(t, "view_3005", r.Global("flashcardsView"))
			},
		},
		{
			name: "no_initializer",
			desc: &activation.Descriptor{ID: "silent", SourceURL: srv.URL + "/silent.js"},
			check: func(t *testing.T, r *jsruntime.Runner) {
				t.Helper()
				assert.Equal(t, true, r.Global("silent"))
			},
		},
		{
			name:            "initializer_throws",
			desc:            &activation.Descriptor{ID: "throws", SourceURL: srv.URL + "/throws.js"},
			wantInitialized: true,
		},
		{
			name:    "not_found",
			desc:    &activation.Descriptor{ID: "missing", SourceURL: srv.URL + "/missing.js"},
			wantErr: true,
		},
		{
			name:    "syntax_error",
			desc:    &activation.Descriptor{ID: "broken", SourceURL: srv.URL + "/broken.js"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runner := jsruntime.New(log.NewNullLogger())
			l := New(runner, log.NewNullLogger())

			res := l.Load(context.Background(), tt.desc, actx)
			assert.Equal(t, tt.desc.ID, res.Module)
			if tt.wantErr {
				require.Error(t, res.Err)
				assert.False(t, res.OK())
				return
			}
			require.NoError(t, res.Err)
			assert.Equal(t, tt.wantInitialized, res.Initialized)
			if tt.check != nil {
				tt.check(t, runner)
			}
		})
	}
}

func TestLoaderUpstreamFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(httpbin.New().Handler())
	t.Cleanup(srv.Close)

	tests := []struct {
		name    string
		path    string
		timeout time.Duration
		wantIs  error
	}{
		{name: "unavailable", path: "/status/503", wantIs: ErrUnexpectedStatus},
		{name: "not_found", path: "/status/404", wantIs: ErrUnexpectedStatus},
		{name: "server_error", path: "/status/500", wantIs: ErrUnexpectedStatus},
		{name: "timeout", path: "/delay/1", timeout: 100 * time.Millisecond},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runner := &countingRunner{}
			var opts []Option
			if tt.timeout > 0 {
				opts = append(opts, WithHTTPClient(&http.Client{Timeout: tt.timeout}))
			}
			l := New(runner, log.NewNullLogger(), opts...)

			res := l.Load(context.Background(),
				&activation.Descriptor{ID: "report", SourceURL: srv.URL + tt.path},
				activation.NewContext("scene_1", ""))
			require.Error(t, res.Err)
			assert.False(t, res.OK())
			if tt.wantIs != nil {
				assert.ErrorIs(t, res.Err, tt.wantIs)
			}
			assert.Zero(t, atomic.LoadInt64(&runner.runs), "failed fetches never reach the runner")
		})
	}
}

func TestLoaderConfigMissing(t *testing.T) {
	t.Parallel()

	srv, hits := bundleServer(t, map[string]string{"/flashcards.js": flashcardsBundle})
	l := New(jsruntime.New(log.NewNullLogger()), log.NewNullLogger())

	desc := &activation.Descriptor{
		ID:        "flashcards",
		SourceURL: srv.URL + "/flashcards.js",
		BuildConfig: func(activation.Context) (activation.Config, error) {
			return nil, fmt.Errorf("host config of flashcards: %w", activation.ErrConfigMissing)
		},
	}
	res := l.Load(context.Background(), desc, activation.NewContext("scene_1206", "view_3005"))
	require.ErrorIs(t, res.Err, activation.ErrConfigMissing)
	assert.Zero(t, atomic.LoadInt64(hits), "bundle must not be fetched without config")
}

type countingRunner struct {
	runs  int64
	inits int64
}

func (r *countingRunner) Run(context.Context, string, []byte) error {
	atomic.AddInt64(&r.runs, 1)
	return nil
}

func (r *countingRunner) Initialize(context.Context, string, activation.Config) (bool, error) {
	atomic.AddInt64(&r.inits, 1)
	return true, nil
}

func TestLoaderSharesInFlightLoads(t *testing.T) {
	t.Parallel()

	var (
		hits    int64
		started = make(chan struct{})
		release = make(chan struct{})
		once    sync.Once
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		once.Do(func() { close(started) })
		<-release
		_, _ = fmt.Fprint(w, flashcardsBundle)
	}))
	t.Cleanup(srv.Close)

	runner := &countingRunner{}
	l := New(runner, log.NewNullLogger())
	desc := &activation.Descriptor{ID: "flashcards", SourceURL: srv.URL + "/flashcards.js"}
	actx := activation.NewContext("scene_1206", "view_3005")

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan activation.LoadResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Load(context.Background(), desc, actx)
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for res := range results {
		assert.NoError(t, res.Err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))
	assert.EqualValues(t, 1, atomic.LoadInt64(&runner.runs))
	assert.EqualValues(t, 1, atomic.LoadInt64(&runner.inits))
}

func TestLoaderCacheRevalidation(t *testing.T) {
	t.Parallel()

	const etag = `"deck-v1"`
	var (
		mu          sync.Mutex
		ifNoneMatch []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ifNoneMatch = append(ifNoneMatch, r.Header.Get("If-None-Match"))
		mu.Unlock()

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		_, _ = fmt.Fprint(w, flashcardsBundle)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	desc := &activation.Descriptor{ID: "flashcards", SourceURL: srv.URL + "/flashcards.js"}
	actx := activation.NewContext("scene_1206", "view_3005")

	first := New(jsruntime.New(log.NewNullLogger()), log.NewNullLogger(),
		WithCache(&storage.LocalFilePersister{}, dir))
	require.NoError(t, first.Load(context.Background(), desc, actx).Err)

	runner := jsruntime.New(log.NewNullLogger())
	second := New(runner, log.NewNullLogger(),
		WithCache(&storage.LocalFilePersister{}, dir))
	res := second.Load(context.Background(), desc, actx)
	require.NoError(t, res.Err)
	assert.True(t, res.Initialized)
	assert.Equal(t, "view_3005", runner.Global("flashcardsView"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", etag}, ifNoneMatch)
}

type failingRunner struct{ countingRunner }

func (r *failingRunner) Initialize(context.Context, string, activation.Config) (bool, error) {
	return true, errors.New("initializer exploded")
}

func TestLoaderInitializerErrorIsSuccess(t *testing.T) {
	t.Parallel()

	srv, _ := bundleServer(t, map[string]string{"/flashcards.js": flashcardsBundle})
	l := New(&failingRunner{}, log.NewNullLogger())

	res := l.Load(context.Background(),
		&activation.Descriptor{ID: "flashcards", SourceURL: srv.URL + "/flashcards.js"},
		activation.NewContext("scene_1206", "view_3005"))
	assert.True(t, res.OK())
	assert.True(t, res.Initialized)
}
