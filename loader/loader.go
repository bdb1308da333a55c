// Package loader fetches module bundles, executes them and invokes their
// initializers.
package loader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oxtoacart/bpool"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/builderkit/modloader/activation"
	"github.com/builderkit/modloader/log"
	"github.com/builderkit/modloader/otel"
	"github.com/builderkit/modloader/storage"
)

const (
	defaultFetchTimeout = 30 * time.Second
	bufferPoolSize      = 16
)

// ErrUnexpectedStatus is returned when a bundle request does not succeed.
var ErrUnexpectedStatus = errors.New("unexpected bundle response status")

// Runner executes bundle sources and calls their global initializers.
type Runner interface {
	Run(ctx context.Context, name string, src []byte) error
	Initialize(ctx context.Context, fn string, cfg activation.Config) (bool, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client bundles are fetched with.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		l.client = c
	}
}

// WithCache keeps fetched bundles under dir and revalidates them with
// If-None-Match on later fetches.
func WithCache(p storage.FilePersister, dir string) Option {
	return func(l *Loader) {
		l.cache = p
		l.cacheDir = dir
	}
}

// Loader loads module bundles. Concurrent loads of the same module for the
// same activation key share a single fetch and execution.
type Loader struct {
	runner   Runner
	client   *http.Client
	cache    storage.FilePersister
	cacheDir string
	bufs     *bpool.BufferPool
	group    singleflight.Group
	logger   *log.Logger
}

// New returns a loader executing bundles with runner.
func New(runner Runner, logger *log.Logger, opts ...Option) *Loader {
	l := &Loader{
		runner: runner,
		client: &http.Client{Timeout: defaultFetchTimeout},
		bufs:   bpool.NewBufferPool(bufferPoolSize),
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches and executes the bundle of desc, then calls its initializer
// with the configuration built for actx. An initializer that throws is
// logged and the load still counts as a success.
func (l *Loader) Load(ctx context.Context, desc *activation.Descriptor, actx activation.Context) activation.LoadResult {
	ctx, span := otel.TraceActivation(ctx, "loader.Load", actx, desc.ID)
	defer span.End()

	v, _, shared := l.group.Do(actx.Key()+"|"+desc.ID, func() (interface{}, error) {
		return l.load(ctx, desc, actx), nil
	})
	if shared {
		l.logger.Debugf("Loader:Load", "key:%s module:%s shared in-flight load", actx.Key(), desc.ID)
	}

	res := v.(activation.LoadResult) //nolint:forcetypeassert
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func (l *Loader) load(ctx context.Context, desc *activation.Descriptor, actx activation.Context) activation.LoadResult {
	cfg, err := desc.Config(actx)
	if err != nil {
		return activation.Failure(desc.ID, fmt.Errorf("building config of %q for %s: %w", desc.ID, actx, err))
	}

	src, err := l.fetch(ctx, desc)
	if err != nil {
		return activation.Failure(desc.ID, err)
	}

	if err := l.runner.Run(ctx, desc.SourceURL, src); err != nil {
		return activation.Failure(desc.ID, fmt.Errorf("executing bundle of %q: %w", desc.ID, err))
	}

	fn := desc.InitializerName()
	initialized, err := l.runner.Initialize(ctx, fn, cfg)
	switch {
	case err != nil:
		l.logger.Errorf("Loader:Load", "key:%s module:%s initializer %s failed: %v", actx.Key(), desc.ID, fn, err)
	case !initialized:
		l.logger.Warnf("Loader:Load", "key:%s module:%s bundle did not define %s", actx.Key(), desc.ID, fn)
	default:
		l.logger.Debugf("Loader:Load", "key:%s module:%s initialized", actx.Key(), desc.ID)
	}

	return activation.Success(desc.ID, initialized)
}

func (l *Loader) fetch(ctx context.Context, desc *activation.Descriptor) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.SourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %q: %w", desc.SourceURL, err)
	}

	bundlePath, etagPath := l.cachePaths(desc)
	etag := l.cachedETag(ctx, etagPath)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	l.logger.Debugf("Loader:fetch", "module:%s GET %s etag:%q", desc.ID, desc.SourceURL, etag)
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", desc.SourceURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotModified && etag != "" {
		src, err := l.readCache(ctx, bundlePath)
		if err == nil {
			return src, nil
		}
		return nil, fmt.Errorf("reading cached bundle of %q: %w", desc.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %q: %w: %d", desc.SourceURL, ErrUnexpectedStatus, resp.StatusCode)
	}

	buf := l.bufs.Get()
	defer l.bufs.Put(buf)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, fmt.Errorf("reading %q: %w", desc.SourceURL, err)
	}
	src := make([]byte, buf.Len())
	copy(src, buf.Bytes())

	if newTag := resp.Header.Get("ETag"); newTag != "" && l.cache != nil {
		l.store(ctx, desc.ID, bundlePath, etagPath, src, newTag)
	}

	return src, nil
}

func (l *Loader) cachePaths(desc *activation.Descriptor) (bundle, etag string) {
	if l.cache == nil {
		return "", ""
	}
	sum := sha256.Sum256([]byte(desc.SourceURL))
	base := filepath.Join(l.cacheDir, desc.ID, hex.EncodeToString(sum[:8]))
	return base + ".js", base + ".etag"
}

func (l *Loader) cachedETag(ctx context.Context, path string) string {
	if l.cache == nil {
		return ""
	}
	b, err := l.readCache(ctx, path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warnf("Loader:cache", "reading %q: %v", path, err)
		}
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (l *Loader) readCache(ctx context.Context, path string) ([]byte, error) {
	rc, err := l.cache.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck
	return io.ReadAll(rc)
}

func (l *Loader) store(ctx context.Context, id, bundlePath, etagPath string, src []byte, etag string) {
	if err := l.cache.Persist(ctx, bundlePath, bytes.NewReader(src)); err != nil {
		l.logger.Warnf("Loader:cache", "module:%s persisting bundle: %v", id, err)
		return
	}
	if err := l.cache.Persist(ctx, etagPath, strings.NewReader(etag)); err != nil {
		l.logger.Warnf("Loader:cache", "module:%s persisting etag: %v", id, err)
	}
}
