package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/magictunnel/magictunnel/pkg/logger"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/cache"
)

// Identity is the minimal identity shape the registry needs to key
// per-identity lazy discovery; it mirrors pkg/vmcp/auth.Identity without
// importing it, keeping the registry decoupled from the auth package.
type Identity struct {
	Subject string
}

// BackendDiscoverer fetches a dynamic catalog (tools/list, resources/list,
// prompts/list) from one backend. The client pool (pkg/vmcp/client)
// implements this.
type BackendDiscoverer interface {
	Discover(ctx context.Context, backend vmcp.Backend) (Source, error)
}

// Manager owns the Registry, the static directory it was loaded from, and
// the set of configured dynamic backends; it drives reloads (both
// filesystem-triggered and explicit) and folds in per-identity lazy
// discovery (SPEC_FULL.md §C.1).
type Manager struct {
	registry    *Registry
	staticDir   string
	env         EnvReader
	discoverer  BackendDiscoverer
	backends    []vmcp.Backend
	watcher     *fsnotify.Watcher

	identityMu sync.Mutex
	identityTTL *cache.TTLCache[string, bool]
}

// NewManager builds a Manager that loads static tools from staticDir and
// merges in catalogs discovered from backends via discoverer.
func NewManager(staticDir string, backends []vmcp.Backend, discoverer BackendDiscoverer, env EnvReader) (*Manager, error) {
	identityCache, err := cache.New[string, bool](1024, 10*time.Minute, nil)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		registry:    New(),
		staticDir:   staticDir,
		env:         env,
		discoverer:  discoverer,
		backends:    backends,
		identityTTL: identityCache,
	}
	return m, nil
}

// Registry returns the underlying Registry for readers (router, server).
func (m *Manager) Registry() *Registry { return m.registry }

// LoadAll performs a full load: static tools plus every configured
// backend's catalog, eagerly. Used at startup when lazy per-identity
// discovery is disabled, or to seed the registry before the first request.
func (m *Manager) LoadAll(ctx context.Context) error {
	sources, diagnostics := m.collectSources(ctx, m.backends)
	logInvalid(diagnostics)

	snap, mergeDiags := Merge(sources)
	logInvalid(mergeDiags)

	m.registry.Swap(snap)
	m.identityTTL.Purge()
	return nil
}

// EnsureLoaded implements SPEC_FULL.md §C.1's per-user lazy capability
// discovery: the first call for a given identity triggers a full dynamic
// discovery pass; subsequent calls within the TTL are no-ops. This keeps
// startup cheap when many backends are configured but few are ever used by
// a given caller's identity, while eagerly-loaded static tools are always
// present regardless of identity.
func (m *Manager) EnsureLoaded(ctx context.Context, identity Identity) error {
	if identity.Subject == "" {
		return m.LoadAll(ctx)
	}

	m.identityMu.Lock()
	_, loaded := m.identityTTL.Get(identity.Subject)
	if loaded {
		m.identityMu.Unlock()
		return nil
	}
	m.identityTTL.Set(identity.Subject, true)
	m.identityMu.Unlock()

	return m.LoadAll(ctx)
}

func (m *Manager) collectSources(ctx context.Context, backends []vmcp.Backend) ([]Source, []error) {
	var sources []Source
	var diagnostics []error

	if m.staticDir != "" {
		staticSrc, diags := LoadStaticDir(m.staticDir, m.env)
		sources = append(sources, staticSrc)
		diagnostics = append(diagnostics, diags...)
	}

	for _, b := range backends {
		src, err := m.discoverer.Discover(ctx, b)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Errorf("registry: discover backend %q: %w", b.Name, err))
			continue
		}
		src.BackendID = b.ID
		src.BackendName = b.Name
		sources = append(sources, src)
	}
	return sources, diagnostics
}

// WatchStatic starts an fsnotify watch on the static tool directory,
// calling LoadAll on every write/create/remove/rename event. If any static
// file then fails to load (parse error or unresolved environment variable),
// the change is not applied: the previous snapshot stays published and the
// diagnostics are logged (spec.md §4.3).
func (m *Manager) WatchStatic(ctx context.Context) error {
	if m.staticDir == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("registry: start watcher: %w", err)
	}
	if err := w.Add(m.staticDir); err != nil {
		w.Close()
		return fmt.Errorf("registry: watch %q: %w", m.staticDir, err)
	}
	m.watcher = w

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if _, diags := LoadStaticDir(m.staticDir, m.env); len(diags) > 0 {
					logInvalid(diags)
					logger.Errorw("registry: hot reload failed, keeping previous snapshot", "diagnostics", len(diags))
					continue
				}
				if err := m.LoadAll(ctx); err != nil {
					logger.Errorw("registry: hot reload failed, keeping previous snapshot", "error", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Errorw("registry: watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the static-directory watcher, if running.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
