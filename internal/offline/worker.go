// Package offline implements an offline-first caching proxy with service
// worker semantics: a versioned named store is filled from a fixed asset
// manifest on install, stale stores are purged on activate, and requests are
// served network-first (navigations) or cache-first (static assets).
package offline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/errors"
	"github.com/tphakala/shoppinglist/internal/logger"
)

var (
	ErrNotInstalled = errors.NewStd("worker not installed")
	ErrAssetStatus  = errors.NewStd("asset fetch returned non-2xx status")
	ErrInvalidScope = errors.NewStd("invalid scope URL")
)

// State is the worker lifecycle state.
type State int32

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Fetcher performs network requests. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config describes one deployed cache version.
type Config struct {
	Version       string
	Assets        []string
	Fallback      string
	BackendDomain string
	// Scope is the base URL that relative asset paths and origin-form
	// requests resolve against.
	Scope *url.URL
}

// ConfigFromSettings builds a Config from cache settings and the upstream scope URL.
func ConfigFromSettings(c conf.CacheSettings, scope string) (Config, error) {
	u, err := url.Parse(scope)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return Config{}, errors.Newf("%q: %w", scope, ErrInvalidScope).
			Component("offline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return Config{
		Version:       c.Version,
		Assets:        c.Assets,
		Fallback:      c.Fallback,
		BackendDomain: c.BackendDomain,
		Scope:         u,
	}, nil
}

// Worker is the offline proxy. It is an http.Handler once activated; before
// that every request goes to the network untouched.
type Worker struct {
	cfg        Config
	scope      *url.URL
	assets     []*url.URL
	fallback   string
	storage    Storage
	client     Fetcher
	classifier Classifier
	log        logger.Logger
	metrics    *Metrics

	state     atomic.Int32
	current   atomic.Pointer[storeRef]
	lifecycle sync.Mutex
}

type storeRef struct{ Store }

// Option configures a Worker.
type Option func(*Worker)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// NewWorker creates a worker for cfg. Asset paths are resolved against the
// scope up front so a malformed manifest fails here rather than on install.
func NewWorker(cfg Config, storage Storage, client Fetcher, log logger.Logger, opts ...Option) (*Worker, error) {
	if cfg.Scope == nil {
		return nil, errors.Newf("nil scope: %w", ErrInvalidScope).
			Component("offline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	scope := *cfg.Scope
	if !strings.HasSuffix(scope.Path, "/") {
		scope.Path += "/"
	}

	w := &Worker{
		cfg:        cfg,
		scope:      &scope,
		storage:    storage,
		client:     client,
		classifier: Classifier{BackendDomain: cfg.BackendDomain},
		log:        log.Module("offline").With(logger.String("version", cfg.Version)),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, asset := range cfg.Assets {
		u, err := w.resolve(asset)
		if err != nil {
			return nil, err
		}
		w.assets = append(w.assets, u)
	}
	fb, err := w.resolve(cfg.Fallback)
	if err != nil {
		return nil, err
	}
	w.fallback = CacheKey(fb)
	return w, nil
}

func (w *Worker) resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, errors.Newf("parse asset %q: %w", ref, err).
			Component("offline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return w.scope.ResolveReference(u), nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.log.Debug("state changed", logger.String("state", s.String()))
}

// Install fetches every manifest asset and stores them in the versioned
// store. Either all assets are stored or none are; on failure the worker
// becomes redundant and Install may be called again.
func (w *Worker) Install(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.setState(StateInstalling)
	start := time.Now()

	entries := make([]*Entry, len(w.assets))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range w.assets {
		g.Go(func() error {
			e, err := w.precache(gctx, u)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return w.installFailed(err)
	}

	store, err := w.storage.Open(ctx, w.cfg.Version)
	if err != nil {
		return w.installFailed(err)
	}
	if err := store.PutAll(ctx, entries); err != nil {
		return w.installFailed(err)
	}

	w.current.Store(&storeRef{store})
	w.setState(StateInstalled)
	w.metrics.install(true)
	w.log.Info("installed",
		logger.Int("assets", len(entries)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

func (w *Worker) installFailed(err error) error {
	w.setState(StateRedundant)
	w.metrics.install(false)
	return errors.Newf("install %s: %w", w.cfg.Version, err).
		Component("offline").
		Category(errors.CategoryCache).
		Context("version", w.cfg.Version).
		Build()
}

func (w *Worker) precache(ctx context.Context, u *url.URL) (*Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	e := newEntry(CacheKey(u), resp, body)
	if !e.OK() {
		return nil, fmt.Errorf("fetch %s: status %d: %w", u, resp.StatusCode, ErrAssetStatus)
	}
	return e, nil
}

// Activate deletes every store whose name differs from the current version.
// It requires a successful Install.
func (w *Worker) Activate(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if w.State() != StateInstalled {
		return errors.Newf("activate in state %s: %w", w.State(), ErrNotInstalled).
			Component("offline").
			Category(errors.CategoryCache).
			Build()
	}
	w.setState(StateActivating)

	keys, err := w.storage.Keys(ctx)
	if err != nil {
		w.setState(StateInstalled)
		return w.activateFailed(err)
	}
	evicted := 0
	for _, name := range keys {
		if name == w.cfg.Version {
			continue
		}
		ok, err := w.storage.Delete(ctx, name)
		if err != nil {
			w.setState(StateInstalled)
			return w.activateFailed(err)
		}
		if ok {
			evicted++
			w.log.Info("deleted stale store", logger.String("store", name))
		}
	}
	w.metrics.evict(evicted)

	w.setState(StateActivated)
	w.log.Info("activated", logger.Int("evicted", evicted))
	return nil
}

func (w *Worker) activateFailed(err error) error {
	return errors.Newf("activate %s: %w", w.cfg.Version, err).
		Component("offline").
		Category(errors.CategoryCache).
		Build()
}

// Start installs and activates the worker, retrying a failed install every
// retryEvery until it succeeds or ctx is done.
func (w *Worker) Start(ctx context.Context, retryEvery time.Duration) error {
	limiter := rate.NewLimiter(rate.Every(retryEvery), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// Wait fails early when the deadline falls before the next token.
			<-ctx.Done()
			return ctx.Err()
		}
		err := w.Install(ctx)
		if err == nil {
			return w.Activate(ctx)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn("install failed, retrying",
			logger.Error(err),
			logger.Duration("retry_in", retryEvery))
	}
}
