// Package engine materializes templates on disk.
//
// Instantiation is all-or-nothing. A dry run renders every destination in
// memory and checks that none of them exists. Directories are then created
// parents first, followed by files, and any failure removes everything the
// call created in reverse order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/NaruseNia/progest/internal/log"
	"github.com/NaruseNia/progest/internal/template/domain"
	"github.com/NaruseNia/progest/internal/variables"
)

// Engine plans and performs instantiations.
type Engine struct {
	fs FileSystem
}

// Option configures the Engine.
type Option func(*Engine)

// WithFileSystem replaces the filesystem the engine writes to.
func WithFileSystem(fsys FileSystem) Option {
	return func(e *Engine) {
		e.fs = fsys
	}
}

// New creates an engine writing to the real filesystem by default.
func New(opts ...Option) *Engine {
	e := &Engine{fs: OSFileSystem{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result describes a completed instantiation.
type Result struct {
	Root    string
	Target  string
	Plan    *Plan
	created []string
	fs      FileSystem
}

// Created lists every path the instantiation created in creation order,
// including target directories that did not exist before.
func (r *Result) Created() []string {
	return append([]string(nil), r.created...)
}

// Remove deletes everything the instantiation created, newest first.
// It is used when a later step such as registration fails.
func (r *Result) Remove() error {
	return removeAll(r.fs, r.created)
}

// Plan renders tmpl with vars into target without writing anything.
func (e *Engine) Plan(ctx context.Context, tmpl *domain.Template, vars variables.Context, target string) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve target %s: %w", target, err)
	}

	actions, err := render(tmpl, vars)
	if err != nil {
		return nil, err
	}

	if info, err := e.fs.Lstat(abs); err == nil && !info.IsDir() {
		return nil, &PathConflictError{Path: abs, Reason: "target is not a directory"}
	}

	for _, a := range actions {
		dest := filepath.Join(abs, filepath.FromSlash(a.Path))
		_, err := e.fs.Lstat(dest)
		if err == nil {
			return nil, &DestinationExistsError{Path: dest}
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, &InstantiationIOError{Path: dest, Cause: err}
		}
	}

	return &Plan{Target: abs, Root: projectRoot(abs, actions), Actions: actions}, nil
}

// Instantiate plans and then materializes tmpl under target, returning the
// project root.
func (e *Engine) Instantiate(ctx context.Context, tmpl *domain.Template, vars variables.Context, target string) (*Result, error) {
	plan, err := e.Plan(ctx, tmpl, vars, target)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, plan)
}

// Apply materializes a plan produced by Plan. A destination that appeared
// since the dry run fails the call like any other write error.
func (e *Engine) Apply(ctx context.Context, plan *Plan) (*Result, error) {
	start := time.Now()
	res := &Result{Root: plan.Root, Target: plan.Target, Plan: plan, fs: e.fs}

	fail := func(p string, cause error) (*Result, error) {
		if rbErr := removeAll(e.fs, res.created); rbErr != nil {
			log.ErrorErr(log.CatEngine, "Rollback incomplete", rbErr, "target", plan.Target)
		} else {
			log.Warn(log.CatEngine, "Rolled back instantiation", "target", plan.Target, "removed", len(res.created), "cause", cause)
		}
		return nil, &InstantiationIOError{Path: p, Cause: cause}
	}

	created, err := e.ensureDir(plan.Target)
	res.created = append(res.created, created...)
	if err != nil {
		return fail(plan.Target, err)
	}

	for _, a := range plan.Actions {
		dest := filepath.Join(plan.Target, filepath.FromSlash(a.Path))
		if err := ctx.Err(); err != nil {
			return fail(dest, err)
		}
		if a.IsDir {
			err = e.fs.Mkdir(dest, a.Mode)
		} else {
			err = e.fs.CreateFile(dest, a.Content, a.Mode)
		}
		if err != nil {
			return fail(dest, err)
		}
		res.created = append(res.created, dest)
	}

	log.Info(log.CatEngine, "Instantiated template",
		"root", plan.Root, "dirs", plan.Dirs(), "files", plan.Files(), "duration", time.Since(start))
	return res, nil
}

// Preview renders tmpl with vars into target like Plan but skips the
// destination checks. It is used to compare an existing project with a fresh
// rendering.
func (e *Engine) Preview(tmpl *domain.Template, vars variables.Context, target string) (*Plan, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve target %s: %w", target, err)
	}
	actions, err := render(tmpl, vars)
	if err != nil {
		return nil, err
	}
	return &Plan{Target: abs, Root: projectRoot(abs, actions), Actions: actions}, nil
}

// Render returns the content of every file tmpl produces with vars, keyed by
// slash-separated path relative to the target.
func (e *Engine) Render(tmpl *domain.Template, vars variables.Context) (map[string][]byte, error) {
	actions, err := render(tmpl, vars)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	for _, a := range actions {
		if !a.IsDir {
			out[a.Path] = a.Content
		}
	}
	return out, nil
}

// ensureDir creates dir and any missing ancestors, returning what it created
// outermost first.
func (e *Engine) ensureDir(dir string) ([]string, error) {
	var missing []string
	for p := dir; ; p = filepath.Dir(p) {
		info, err := e.fs.Lstat(p)
		if err == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("%s is not a directory", p)
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		missing = append(missing, p)
		if filepath.Dir(p) == p {
			break
		}
	}

	var created []string
	for i := len(missing) - 1; i >= 0; i-- {
		if err := e.fs.Mkdir(missing[i], dirMode); err != nil {
			return created, err
		}
		created = append(created, missing[i])
	}
	return created, nil
}

func removeAll(fsys FileSystem, created []string) error {
	var errs []error
	for i := len(created) - 1; i >= 0; i-- {
		if err := fsys.Remove(created[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", created[i], err))
		}
	}
	return errors.Join(errs...)
}
