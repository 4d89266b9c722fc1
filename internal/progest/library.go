// Package progest is the library both front-ends call. It composes the
// template store, variable resolver, instantiation engine and project
// registry into the operations a user performs: listing templates,
// creating projects from them and keeping track of those projects.
package progest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/NaruseNia/progest/internal/config"
	"github.com/NaruseNia/progest/internal/engine"
	"github.com/NaruseNia/progest/internal/flags"
	"github.com/NaruseNia/progest/internal/infrastructure/memory"
	"github.com/NaruseNia/progest/internal/infrastructure/sqlite"
	"github.com/NaruseNia/progest/internal/log"
	projectapp "github.com/NaruseNia/progest/internal/project/application"
	"github.com/NaruseNia/progest/internal/project/domain"
	tmplapp "github.com/NaruseNia/progest/internal/template/application"
	"github.com/NaruseNia/progest/internal/templates"
	"github.com/NaruseNia/progest/internal/tracing"
)

// MemoryRegistryPath keeps the registry in memory instead of on disk.
const MemoryRegistryPath = ":memory:"

// Library is the Progest engine. It is safe for concurrent use.
type Library struct {
	cfg      config.Config
	flags    *flags.Registry
	store    *tmplapp.Store
	engine   *engine.Engine
	registry *projectapp.Registry
	repo     domain.Repository
	db       *sqlite.DB
	tracer   trace.Tracer
	provider *tracing.Provider

	stopWatch context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	repo         domain.Repository
	tracer       trace.Tracer
	builtins     fs.FS
	builtinsSet  bool
	engineOpts   []engine.Option
	registryOpts []projectapp.Option
}

// Option configures New.
type Option func(*options)

// WithRepository stores records in repo instead of the configured database.
// The library closes repo on Close.
func WithRepository(repo domain.Repository) Option {
	return func(o *options) {
		o.repo = repo
	}
}

// WithTracer records spans on tracer instead of the configured provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithBuiltins replaces the embedded templates. Nil disables them.
func WithBuiltins(fsys fs.FS) Option {
	return func(o *options) {
		o.builtins = fsys
		o.builtinsSet = true
	}
}

// WithEngineOptions passes options to the instantiation engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// WithRegistryOptions passes options to the project registry.
func WithRegistryOptions(opts ...projectapp.Option) Option {
	return func(o *options) {
		o.registryOpts = append(o.registryOpts, opts...)
	}
}

// New opens the registry and template store described by cfg.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Library, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.repo != nil && cfg.Registry.Path == "" {
		cfg.Registry.Path = MemoryRegistryPath
	}
	resolved, err := cfg.Resolved()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config: %w", err)
	}
	if err := config.Validate(resolved); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	lib := &Library{
		cfg:    resolved,
		flags:  flags.NewWithDefaults(resolved.Flags),
		engine: engine.New(o.engineOpts...),
		tracer: o.tracer,
	}

	if lib.tracer == nil {
		provider, err := tracing.NewProvider(ctx, tracing.Config{
			Enabled:      resolved.Tracing.Enabled,
			Exporter:     resolved.Tracing.Exporter,
			FilePath:     resolved.Tracing.FilePath,
			OTLPEndpoint: resolved.Tracing.OTLPEndpoint,
			SampleRate:   resolved.Tracing.SampleRate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create tracing provider: %w", err)
		}
		lib.provider = provider
		lib.tracer = provider.Tracer()
	}

	switch {
	case o.repo != nil:
		lib.repo = o.repo
	case resolved.Registry.Path == MemoryRegistryPath:
		lib.repo = memory.NewProjectRepository()
	default:
		db, err := sqlite.NewDB(resolved.Registry.Path)
		if err != nil {
			lib.shutdownTracing(ctx)
			return nil, fmt.Errorf("failed to open registry: %w", err)
		}
		lib.db = db
		lib.repo = db.ProjectRepository()
	}

	builtins := o.builtins
	if !o.builtinsSet && resolved.Templates.Builtin {
		builtins = templates.BuiltinFS()
	}
	lib.store = tmplapp.NewStore(resolved.Templates.Paths,
		tmplapp.WithBuiltins(builtins),
		tmplapp.WithCacheTTL(resolved.Templates.CacheTTL),
	)

	registryOpts := append([]projectapp.Option{
		projectapp.WithPendingTimeout(resolved.Registry.PendingTimeout),
	}, o.registryOpts...)
	lib.registry = projectapp.NewRegistry(lib.repo, registryOpts...)

	if lib.flags.Enabled(flags.FlagTemplateWatch) {
		watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		if err := lib.store.Watch(watchCtx); err != nil {
			cancel()
			log.Warn(log.CatWatcher, "Template watching unavailable", "error", err)
		} else {
			lib.stopWatch = cancel
		}
	}

	log.Info(log.CatRegistry, "Library ready",
		"registry", resolved.Registry.Path,
		"search_paths", len(lib.store.SearchPaths()),
		"provisional", lib.flags.Enabled(flags.FlagProvisionalRecords))
	return lib, nil
}

// Config returns the resolved configuration.
func (l *Library) Config() config.Config {
	return l.cfg
}

// Close stops watching, releases the registry and flushes traces.
// It is safe to call more than once.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		if l.stopWatch != nil {
			l.stopWatch()
		}
		l.store.Close()
		l.registry.Close()

		var errs []error
		if err := l.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close registry: %w", err))
		}
		if l.db != nil {
			if err := l.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close database: %w", err))
			}
		}
		if l.provider != nil {
			if err := l.provider.Shutdown(context.Background()); err != nil {
				errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
			}
		}
		l.closeErr = errors.Join(errs...)
	})
	return l.closeErr
}

func (l *Library) shutdownTracing(ctx context.Context) {
	if l.provider == nil {
		return
	}
	if err := l.provider.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to shut down tracing", err)
	}
}
