package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jsbundle/jsbundle/internal/config"
	"github.com/jsbundle/jsbundle/internal/logging"
	"github.com/jsbundle/jsbundle/internal/pool"
	"github.com/jsbundle/jsbundle/internal/progress"
	"github.com/jsbundle/jsbundle/internal/s3"
)

type Service struct {
	config      *config.Root
	configFiles []string
	log         *logging.Logger
	names       []string
	force       bool
	check       io.Writer
	progress    io.Writer
	workers     int
	newStorage  func(context.Context, config.ObjectStorage) (s3.ObjectStorage, error)

	mu      sync.Mutex
	pool    *pool.Pool
	running map[string]*BundleWorker
}

func New() *Service {
	return &Service{
		log:        logging.NewNop(),
		newStorage: s3.New,
		running:    make(map[string]*BundleWorker),
	}
}

func (s *Service) WithConfig(root *config.Root) *Service {
	s.config = root
	return s
}

// WithConfigFiles sets the configuration files Reload reads.
func (s *Service) WithConfigFiles(paths []string) *Service {
	s.configFiles = paths
	return s
}

func (s *Service) WithLogger(log *logging.Logger) *Service {
	s.log = log
	return s
}

// WithBundles restricts the service to the named bundles. All bundles are
// built by default.
func (s *Service) WithBundles(names []string) *Service {
	s.names = names
	return s
}

func (s *Service) WithForce(force bool) *Service {
	s.force = force
	return s
}

func (s *Service) WithCheck(out io.Writer) *Service {
	s.check = out
	return s
}

// WithProgress shows a progress bar on w during single-shot builds.
func (s *Service) WithProgress(w io.Writer) *Service {
	s.progress = w
	return s
}

// WithWorkers overrides the number of concurrent builds from the
// configuration.
func (s *Service) WithWorkers(n int) *Service {
	s.workers = n
	return s
}

func (s *Service) WithStorageFactory(f func(context.Context, config.ObjectStorage) (s3.ObjectStorage, error)) *Service {
	s.newStorage = f
	return s
}

// Build builds the selected bundles once, concurrently. A failing bundle
// does not stop the others; all failures are returned joined, in bundle name
// order.
func (s *Service) Build(ctx context.Context) error {
	bundles, err := s.selected(s.config)
	if err != nil {
		return err
	}

	var bar *progress.Bar
	if s.progress != nil {
		bar = progress.New(s.progress, len(bundles), "building bundles")
	}

	errs := make([]error, len(bundles))

	var g errgroup.Group
	g.SetLimit(s.concurrency())

	for i, b := range bundles {
		g.Go(func() error {
			defer bar.Add(1)

			w, err := s.newWorker(ctx, b)
			if err != nil {
				errs[i] = &BuildError{Bundle: b.Name, State: BuildStatePushFailed, Err: err}
				return nil
			}

			state, err := w.Build(ctx)
			if err != nil {
				errs[i] = err
				return nil
			}

			s.log.Infof("bundle %s: %s", b.Name, state)
			return nil
		})
	}

	_ = g.Wait()
	bar.Finish()

	return errors.Join(errs...)
}

// Run rebuilds the selected bundles every rebuild interval until ctx is
// done.
func (s *Service) Run(ctx context.Context) error {
	bundles, err := s.selected(s.config)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pool = pool.New(ctx, s.concurrency())
	for _, b := range bundles {
		if err := s.start(ctx, b); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	s.log.Infof("watching %d bundles", len(bundles))

	<-ctx.Done()
	s.pool.Wait()
	return nil
}

// Reload re-reads the configuration files. Workers of changed bundles pick
// up the new configuration and rebuild, removed bundles leave the pool and
// new bundles join it. Every remaining bundle is checked for stale inputs
// right away instead of waiting for its interval.
func (s *Service) Reload(ctx context.Context) error {
	root, err := config.Load(s.configFiles)
	if err != nil {
		return err
	}

	bundles, err := s.selected(root)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		return errors.New("service is not running")
	}

	for name, w := range s.running {
		if w.Done() {
			delete(s.running, name)
		}
	}

	keep := make(map[string]struct{}, len(bundles))
	var errs []error

	for _, b := range bundles {
		keep[b.Name] = struct{}{}

		w, ok := s.running[b.Name]
		if !ok {
			if err := s.start(ctx, b); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if w.Config().Equal(b) {
			continue
		}

		storage, err := s.storage(ctx, b)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		s.log.Infof("bundle %s: configuration changed", b.Name)
		w.UpdateConfig(b, storage)
	}

	for name, w := range s.running {
		if _, ok := keep[name]; !ok {
			s.log.Infof("bundle %s: removed", name)
			w.Remove()
		}
	}

	s.pool.TriggerAll()

	s.config = root
	return errors.Join(errs...)
}

// Status returns the status of the last build of every running bundle.
func (s *Service) Status() map[string]Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]Status, len(s.running))
	for name, w := range s.running {
		result[name] = w.Status()
	}
	return result
}

// start adds a worker for b to the pool. Callers hold s.mu.
func (s *Service) start(ctx context.Context, b *config.Bundle) error {
	w, err := s.newWorker(ctx, b)
	if err != nil {
		return err
	}

	s.running[b.Name] = w
	s.pool.Add(b.Name, w.Execute)
	return nil
}

func (s *Service) newWorker(ctx context.Context, b *config.Bundle) (*BundleWorker, error) {
	storage, err := s.storage(ctx, b)
	if err != nil {
		return nil, err
	}

	w := NewBundleWorker(b, s.log).
		WithForce(s.force)
	if storage != nil {
		w = w.WithStorage(storage)
	}
	if s.check != nil {
		w = w.WithCheck(s.check)
	}
	return w, nil
}

func (s *Service) storage(ctx context.Context, b *config.Bundle) (s3.ObjectStorage, error) {
	if !b.ObjectStorage.Configured() {
		return nil, nil
	}

	storage, err := s.newStorage(ctx, b.ObjectStorage)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", b.Name, err)
	}
	return storage, nil
}

func (s *Service) selected(root *config.Root) ([]*config.Bundle, error) {
	if root == nil {
		return nil, errors.New("no configuration")
	}

	if len(s.names) == 0 {
		var bundles []*config.Bundle
		for _, b := range root.SortedBundles() {
			bundles = append(bundles, b)
		}
		return bundles, nil
	}

	bundles := make([]*config.Bundle, 0, len(s.names))
	for _, name := range s.names {
		b, ok := root.Bundles[name]
		if !ok {
			return nil, fmt.Errorf("unknown bundle %q", name)
		}
		bundles = append(bundles, b)
	}
	return bundles, nil
}

func (s *Service) concurrency() int {
	if s.workers > 0 {
		return s.workers
	}
	return s.config.Workers()
}
