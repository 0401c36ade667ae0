package service

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/akedrou/textdiff"

	"github.com/jsbundle/jsbundle/internal/builder"
	"github.com/jsbundle/jsbundle/internal/config"
	"github.com/jsbundle/jsbundle/internal/logging"
	"github.com/jsbundle/jsbundle/internal/metrics"
	"github.com/jsbundle/jsbundle/internal/minify"
	"github.com/jsbundle/jsbundle/internal/s3"
)

var (
	defaultInterval = 30 * time.Second
	errorInterval   = 30 * time.Second
)

var errOutOfDate = errors.New("bundle is out of date")

// BundleWorker builds one bundle: it discovers the input modules, decides
// whether the target is stale, runs the builder, writes the target and
// publishes it to object storage. In continuous mode the pool calls Execute
// every rebuild interval.
type BundleWorker struct {
	mu       sync.Mutex
	config   *config.Bundle
	storage  s3.ObjectStorage
	removed  bool
	dirty    bool
	status   Status
	done     chan struct{}
	force    bool
	check    io.Writer
	log      *logging.Logger
	interval time.Duration
}

func NewBundleWorker(b *config.Bundle, logger *logging.Logger) *BundleWorker {
	return &BundleWorker{
		config:   b,
		log:      logger.With("bundle", b.Name),
		done:     make(chan struct{}),
		interval: cmp.Or(time.Duration(b.Interval), defaultInterval),
	}
}

func (w *BundleWorker) WithStorage(storage s3.ObjectStorage) *BundleWorker {
	w.storage = storage
	return w
}

// WithForce disables the staleness check.
func (w *BundleWorker) WithForce(force bool) *BundleWorker {
	w.force = force
	return w
}

// WithCheck turns the worker into a checker: bundles are built in memory and
// compared with the existing target, differences are written to out as a
// unified diff and nothing is written or published.
func (w *BundleWorker) WithCheck(out io.Writer) *BundleWorker {
	w.check = out
	return w
}

func (w *BundleWorker) Config() *config.Bundle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

func (w *BundleWorker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// UpdateConfig replaces the bundle configuration. The next run uses it and
// rebuilds the target even if it is up to date.
func (w *BundleWorker) UpdateConfig(b *config.Bundle, storage s3.ObjectStorage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = b
	w.storage = storage
	w.removed = false
	w.dirty = true
	w.interval = cmp.Or(time.Duration(b.Interval), defaultInterval)
}

// Remove asks the worker to leave the pool on its next run.
func (w *BundleWorker) Remove() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removed = true
}

func (w *BundleWorker) Done() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Execute runs one build for the pool and returns the time of the next one.
// A removed worker returns the zero time, which takes it out of the pool.
func (w *BundleWorker) Execute(ctx context.Context) time.Time {
	w.mu.Lock()
	removed, interval := w.removed, w.interval
	w.mu.Unlock()

	if removed {
		if !w.Done() {
			close(w.done)
		}
		return time.Time{}
	}

	if _, err := w.Build(ctx); err != nil {
		interval = errorInterval
	}

	return time.Now().Add(interval)
}

// Build runs the bundle pipeline once.
func (w *BundleWorker) Build(ctx context.Context) (BuildState, error) {
	w.mu.Lock()
	b, storage, dirty := w.config, w.storage, w.dirty
	w.mu.Unlock()

	startTime := time.Now()
	metrics.BundleBuildStarted(b.Name, startTime)

	files, err := discover(b, w.log)
	if err != nil {
		w.log.Warnf("failed to discover modules: %v", err)
		return w.report(b, BuildStateDiscoveryFailed, err)
	}

	if !w.force && !dirty && w.check == nil {
		stale, err := Stale(b.Target, files)
		if err != nil {
			w.log.Warnf("failed to check %s: %v", b.Target, err)
			return w.report(b, BuildStateDiscoveryFailed, err)
		}
		if !stale {
			w.log.Debugf("%s is up to date", b.Target)
			metrics.BundleBuildSkipped.WithLabelValues(b.Name).Inc()
			return w.report(b, BuildStateSkipped, nil)
		}
	}

	bundle, err := newBuilder(b, files).Build()
	if err != nil {
		w.log.Warnf("failed to build: %v", err)
		return w.report(b, BuildStateBuildFailed, err)
	}

	for _, cycle := range bundle.Warnings {
		w.log.Warnf("%s", cycle)
	}

	contents := bundle.Contents
	if b.Minify {
		var warnings []string
		contents, warnings, err = minify.Minify(bundle.Name, contents)
		if err != nil {
			w.log.Warnf("failed to minify: %v", err)
			return w.report(b, BuildStateBuildFailed, err)
		}
		for _, msg := range warnings {
			w.log.Debugf("minify: %s", msg)
		}
	}

	if w.check != nil {
		return w.compare(b, contents)
	}

	if err := writeFile(b.Target, contents); err != nil {
		w.log.Warnf("failed to write %s: %v", b.Target, err)
		return w.report(b, BuildStateWriteFailed, err)
	}

	if storage != nil {
		revision, err := newest(files)
		if err != nil {
			return w.report(b, BuildStatePushFailed, err)
		}

		backend := s3.Backend(b.ObjectStorage)
		uploadStart := time.Now()
		err = storage.Upload(ctx, bytes.NewReader(contents), revision.UTC().Format(time.RFC3339))
		metrics.BundleUploaded(b.Name, backend, uploadStart, err)
		if err != nil {
			w.log.Warnf("failed to upload: %v", err)
			return w.report(b, BuildStatePushFailed, err)
		}
	}

	metrics.BundleBuildSucceeded(b.Name, startTime, len(bundle.Nodes), len(bundle.Warnings))
	w.log.Debugf("built %s from %d modules", b.Target, len(bundle.Nodes))
	return w.report(b, BuildStateSuccess, nil)
}

func (w *BundleWorker) compare(b *config.Bundle, contents []byte) (BuildState, error) {
	existing, err := os.ReadFile(b.Target)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return w.report(b, BuildStateCheckFailed, err)
	}

	if bytes.Equal(existing, contents) {
		return w.report(b, BuildStateSuccess, nil)
	}

	fmt.Fprint(w.check, textdiff.Unified(b.Target, b.Target+" (rebuilt)", string(existing), string(contents)))
	return w.report(b, BuildStateCheckFailed, errOutOfDate)
}

func (w *BundleWorker) report(b *config.Bundle, state BuildState, err error) (BuildState, error) {
	status := Status{State: state}
	if err != nil {
		status.Message = err.Error()
		metrics.BundleBuildFailure(b.Name, state.String())
		err = &BuildError{Bundle: b.Name, State: state, Err: err}
	}

	w.mu.Lock()
	w.status = status
	if state == BuildStateSuccess && w.config == b {
		w.dirty = false
	}
	w.mu.Unlock()

	return state, err
}

// Inspect builds b in memory and returns the result. Nothing is written.
func Inspect(b *config.Bundle, log *logging.Logger) (*builder.Bundle, error) {
	files, err := discover(b, log)
	if err != nil {
		return nil, err
	}
	return newBuilder(b, files).Build()
}

func newBuilder(b *config.Bundle, files []builder.File) *builder.Builder {
	return builder.New().
		WithFiles(files).
		WithTarget(b.Target).
		WithSourceDir(b.SourceDir).
		WithNamespaces(b.Namespaces).
		WithAllowedPrefixes(b.AllowedPrefixes).
		WithOverrideDir(b.Override()).
		WithGlobal(b.GlobalObject())
}
