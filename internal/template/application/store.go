package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NaruseNia/progest/internal/cachemanager"
	"github.com/NaruseNia/progest/internal/log"
	"github.com/NaruseNia/progest/internal/pubsub"
	"github.com/NaruseNia/progest/internal/template/domain"
	"github.com/NaruseNia/progest/internal/watcher"
)

// BuiltinPrefix marks the source of embedded templates.
const BuiltinPrefix = "builtin:"

// Warning is a non-fatal discovery problem such as a duplicate name or an
// invalid template that was skipped.
type Warning struct {
	Source  string
	Message string
}

func (w Warning) String() string {
	return w.Source + ": " + w.Message
}

// candidate is one template directory found during discovery.
type candidate struct {
	fsys    fs.FS
	source  string
	builtin bool
	dirName string
}

// discovered is a candidate after loading; exactly one of tmpl and err is set.
type discovered struct {
	candidate
	name string
	tmpl *domain.Template
	err  error
}

// Store discovers templates in the configured search paths and the
// built-in set. Search paths always take precedence over built-ins.
type Store struct {
	searchPaths []string
	builtins    fs.FS
	cacheTTL    time.Duration
	cache       cachemanager.CacheManager[string, *domain.Template]
	loader      *cachemanager.ReadThroughCache[string, *domain.Template, candidate]
	broker      *pubsub.Broker[string]

	mu      sync.Mutex
	watcher *watcher.Watcher
}

// Option configures the Store.
type Option func(*Store)

// WithBuiltins sets the filesystem of embedded templates. Nil disables them.
func WithBuiltins(fsys fs.FS) Option {
	return func(s *Store) {
		s.builtins = fsys
	}
}

// WithCache replaces the default in-memory template cache.
func WithCache(cache cachemanager.CacheManager[string, *domain.Template]) Option {
	return func(s *Store) {
		s.cache = cache
	}
}

// WithCacheTTL sets how long loaded templates stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.cacheTTL = ttl
	}
}

// NewStore creates a store over searchPaths. Relative paths and a leading
// "~" are resolved now so the search order is stable.
func NewStore(searchPaths []string, opts ...Option) *Store {
	s := &Store{
		cacheTTL: cachemanager.DefaultExpiration,
		broker:   pubsub.NewBroker[string](),
	}
	for _, p := range searchPaths {
		if abs, err := ExpandPath(p); err == nil {
			s.searchPaths = append(s.searchPaths, abs)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cachemanager.NewInMemoryCacheManager[string, *domain.Template]("templates",
			s.cacheTTL, cachemanager.DefaultCleanupInterval)
	}
	s.loader = cachemanager.NewReadThroughCache[string, *domain.Template, candidate](
		s.cache,
		func(_ context.Context, c candidate) (*domain.Template, error) {
			return LoadFromFS(c.fsys, c.source, c.builtin, c.dirName)
		},
		false,
	)
	return s
}

// SearchPaths returns the resolved search paths in priority order.
func (s *Store) SearchPaths() []string {
	return append([]string(nil), s.searchPaths...)
}

// List returns every valid template, first occurrence of each name only.
// Invalid templates and shadowed duplicates are reported as warnings.
func (s *Store) List(ctx context.Context) ([]*domain.Template, []Warning, error) {
	found, warnings, err := s.discover(ctx)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]string)
	var templates []*domain.Template
	for _, d := range found {
		if d.err != nil {
			warnings = append(warnings, Warning{Source: d.source, Message: d.err.Error()})
			log.Warn(log.CatTemplate, "Skipping invalid template", "source", d.source, "error", d.err)
			continue
		}
		if first, dup := seen[d.name]; dup {
			msg := fmt.Sprintf("duplicate template %q ignored, %s takes precedence", d.name, first)
			warnings = append(warnings, Warning{Source: d.source, Message: msg})
			log.Warn(log.CatTemplate, "Duplicate template name", "name", d.name, "source", d.source, "winner", first)
			continue
		}
		seen[d.name] = d.source
		templates = append(templates, d.tmpl)
	}
	return templates, warnings, nil
}

// Load returns the template named identity, or the template in the
// directory identity when it looks like a path. A name resolves to the
// template List shows for it.
func (s *Store) Load(ctx context.Context, identity string) (*domain.Template, error) {
	if looksLikePath(identity) {
		return s.LoadDir(ctx, identity)
	}

	found, _, err := s.discover(ctx)
	if err != nil {
		return nil, err
	}
	// Same precedence as List: the first valid template of the name wins.
	// An invalid one only surfaces when nothing valid carries the name.
	var invalid error
	for _, d := range found {
		if d.name != identity {
			continue
		}
		if d.err != nil {
			if invalid == nil {
				invalid = d.err
			}
			log.Warn(log.CatTemplate, "Skipping invalid template", "name", identity, "source", d.source, "error", d.err)
			continue
		}
		return d.tmpl, nil
	}
	if invalid != nil {
		return nil, invalid
	}
	return nil, &domain.TemplateNotFoundError{Identity: identity}
}

// LoadDir loads the template in dir regardless of the search paths.
func (s *Store) LoadDir(ctx context.Context, dir string) (*domain.Template, error) {
	abs, err := ExpandPath(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve template path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, &domain.TemplateNotFoundError{Identity: dir}
	}
	c := candidate{fsys: os.DirFS(abs), source: abs, dirName: filepath.Base(abs)}
	// A template named by path is usually being edited, so it is always reread.
	if err := s.loader.Forget(ctx, c.source); err != nil {
		log.ErrorErr(log.CatCache, "Failed to drop cached template", err, "source", c.source)
	}
	return s.loader.Get(ctx, c.source, c, s.cacheTTL)
}

// Invalidate drops every cached template.
func (s *Store) Invalidate(ctx context.Context) {
	if err := s.loader.Invalidate(ctx); err != nil {
		log.ErrorErr(log.CatCache, "Failed to flush template cache", err)
	}
}

// Subscribe streams a ReloadedEvent whenever watched templates change.
func (s *Store) Subscribe(ctx context.Context) <-chan pubsub.Event[string] {
	return s.broker.Subscribe(ctx)
}

// Watch invalidates the cache and notifies subscribers whenever files under
// the search paths change, until ctx is cancelled. Calling Watch twice is a no-op.
func (s *Store) Watch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return nil
	}

	w, err := watcher.New(watcher.DefaultConfig(s.searchPaths...))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}
	s.watcher = w
	log.Info(log.CatWatcher, "Watching template search paths", "paths", strings.Join(s.searchPaths, ","))

	go func() {
		for {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				_ = s.watcher.Stop()
				s.watcher = nil
				s.mu.Unlock()
				return
			case <-changes:
				s.Invalidate(ctx)
				s.broker.Publish(pubsub.ReloadedEvent, "templates")
			}
		}
	}()
	return nil
}

// Close stops notifications.
func (s *Store) Close() {
	s.broker.Close()
}

// discover finds candidates in priority order: search path directories
// sorted by absolute path, then built-ins sorted by name.
func (s *Store) discover(ctx context.Context) ([]discovered, []Warning, error) {
	var candidates []candidate
	var warnings []Warning

	for _, root := range s.searchPaths {
		dirEntries, err := os.ReadDir(root)
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug(log.CatTemplate, "Search path does not exist", "path", root)
			continue
		}
		if err != nil {
			warnings = append(warnings, Warning{Source: root, Message: err.Error()})
			continue
		}
		for _, e := range dirEntries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(root, e.Name())
			if _, err := os.Stat(filepath.Join(dir, domain.ManifestFile)); err != nil {
				continue
			}
			candidates = append(candidates, candidate{fsys: os.DirFS(dir), source: dir, dirName: e.Name()})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].source < candidates[j].source })

	if s.builtins != nil {
		dirEntries, err := fs.ReadDir(s.builtins, ".")
		if err != nil {
			return nil, nil, fmt.Errorf("read builtin templates: %w", err)
		}
		for _, e := range dirEntries {
			if !e.IsDir() {
				continue
			}
			sub, err := fs.Sub(s.builtins, e.Name())
			if err != nil {
				return nil, nil, fmt.Errorf("open builtin template %s: %w", e.Name(), err)
			}
			candidates = append(candidates, candidate{fsys: sub, source: BuiltinPrefix + e.Name(), builtin: true, dirName: e.Name()})
		}
	}

	found := make([]discovered, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		d := discovered{candidate: c, name: c.dirName}
		d.tmpl, d.err = s.loader.Get(ctx, c.source, c, s.cacheTTL)
		if d.tmpl != nil {
			d.name = d.tmpl.Name()
		}
		found = append(found, d)
	}
	return found, warnings, nil
}

// ExpandPath resolves "~" and makes p absolute.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

func looksLikePath(identity string) bool {
	return filepath.IsAbs(identity) ||
		strings.HasPrefix(identity, ".") ||
		strings.HasPrefix(identity, "~") ||
		strings.ContainsRune(identity, '/') ||
		strings.ContainsRune(identity, filepath.Separator)
}
