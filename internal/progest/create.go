package progest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NaruseNia/progest/internal/config"
	"github.com/NaruseNia/progest/internal/engine"
	"github.com/NaruseNia/progest/internal/flags"
	"github.com/NaruseNia/progest/internal/log"
	"github.com/NaruseNia/progest/internal/project/domain"
	tmpldomain "github.com/NaruseNia/progest/internal/template/domain"
	"github.com/NaruseNia/progest/internal/tracing"
	"github.com/NaruseNia/progest/internal/variables"
)

// ProjectNameVariable is filled from CreateRequest.Name when the template
// declares it and the caller did not supply it.
const ProjectNameVariable = "project_name"

// CreateRequest describes a project to create.
type CreateRequest struct {
	// Template is a template name or a path to a template directory.
	Template string
	// Name is the record name. It defaults to the project_name variable.
	Name string
	// Target is the directory the template is instantiated into. Empty
	// means the working directory.
	Target      string
	Description string
	Tags        []string
	Variables   map[string]string
}

// ProjectPlan is what CreateProject would do for a request.
type ProjectPlan struct {
	Template  *tmpldomain.Template
	Name      string
	Variables variables.Context
	Plan      *engine.Plan
}

// MissingVariables loads the requested template and lists the required
// variables the request leaves without a value, for interactive prompting.
func (l *Library) MissingVariables(ctx context.Context, req CreateRequest) (*tmpldomain.Template, []tmpldomain.Variable, error) {
	tmpl, err := l.store.Load(ctx, req.Template)
	if err != nil {
		return nil, nil, err
	}
	return tmpl, variables.Missing(tmpl.Manifest(), suppliedValues(tmpl, req)), nil
}

// PlanProject performs the dry run of CreateProject. Nothing is written.
func (l *Library) PlanProject(ctx context.Context, req CreateRequest) (*ProjectPlan, error) {
	var plan *ProjectPlan
	err := tracing.Run(ctx, l.tracer, tracing.SpanPlanProject, func(ctx context.Context, span trace.Span) error {
		var err error
		plan, err = l.prepare(ctx, req)
		if err != nil {
			return err
		}
		span.SetAttributes(
			attribute.String(tracing.AttrTemplateName, plan.Template.Name()),
			attribute.String(tracing.AttrProjectRoot, plan.Plan.Root),
			attribute.Int(tracing.AttrPlanDirs, plan.Plan.Dirs()),
			attribute.Int(tracing.AttrPlanFiles, plan.Plan.Files()),
		)
		return nil
	}, attribute.String(tracing.AttrTemplateName, req.Template))
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// CreateProject instantiates a template and records the new project.
//
// With provisional records enabled a pending record reserves the root path
// before anything is written, so a concurrent creation of the same project
// fails with a DuplicatePathError instead of racing on disk. The record is
// promoted to active once the files exist and discarded if they cannot be
// written. Otherwise the record is registered after instantiation and the
// files are removed again if registration fails.
func (l *Library) CreateProject(ctx context.Context, req CreateRequest) (*domain.Project, error) {
	var created *domain.Project
	err := tracing.Run(ctx, l.tracer, tracing.SpanCreateProject, func(ctx context.Context, span trace.Span) error {
		plan, err := l.prepare(ctx, req)
		if err != nil {
			return err
		}
		span.SetAttributes(
			attribute.String(tracing.AttrTemplateName, plan.Template.Name()),
			attribute.String(tracing.AttrTemplateSource, plan.Template.Source()),
			attribute.String(tracing.AttrProjectRoot, plan.Plan.Root),
		)

		draft := domain.Draft{
			Name:           plan.Name,
			Description:    req.Description,
			RootPath:       plan.Plan.Root,
			TemplateName:   plan.Template.Name(),
			TemplatePath:   plan.Template.Source(),
			TemplateDigest: plan.Template.Digest(),
			Variables:      plan.Variables,
			Tags:           req.Tags,
		}

		if l.flags.Enabled(flags.FlagProvisionalRecords) {
			created, err = l.createProvisional(ctx, span, plan, draft)
		} else {
			created, err = l.createDirect(ctx, span, plan, draft)
		}
		if err != nil {
			return err
		}
		span.SetAttributes(
			attribute.String(tracing.AttrProjectID, created.ID()),
			attribute.String(tracing.AttrProjectStatus, created.Status().String()),
		)
		return nil
	}, attribute.String(tracing.AttrTemplateName, req.Template))
	if err != nil {
		return nil, err
	}

	log.Info(log.CatRegistry, "Created project",
		"id", created.ID(), "name", created.Name(), "root", created.RootPath(), "template", created.TemplateName())
	return created, nil
}

func (l *Library) createProvisional(ctx context.Context, span trace.Span, plan *ProjectPlan, draft domain.Draft) (*domain.Project, error) {
	draft.Status = domain.StatusPending
	pending, err := l.registry.Register(ctx, draft)
	if err != nil {
		return nil, err
	}
	span.AddEvent(tracing.EventPathReserved, trace.WithAttributes(attribute.String(tracing.AttrProjectID, pending.ID())))

	// Cleanup must run even when ctx is what aborted the instantiation.
	cleanupCtx := context.WithoutCancel(ctx)

	res, err := l.apply(ctx, span, plan.Plan)
	if err != nil {
		if discardErr := l.registry.Discard(cleanupCtx, pending.ID()); discardErr != nil {
			log.ErrorErr(log.CatRegistry, "Failed to discard pending record", discardErr, "id", pending.ID())
		}
		return nil, err
	}

	active, err := l.registry.UpdateStatus(cleanupCtx, pending.ID(), domain.StatusActive)
	if err != nil {
		var errs []error
		errs = append(errs, fmt.Errorf("failed to promote project %s: %w", pending.ID(), err))
		if rmErr := res.Remove(); rmErr != nil {
			errs = append(errs, rmErr)
		}
		if discardErr := l.registry.Discard(cleanupCtx, pending.ID()); discardErr != nil {
			errs = append(errs, discardErr)
		}
		return nil, errors.Join(errs...)
	}
	span.AddEvent(tracing.EventPromoted)
	return active, nil
}

func (l *Library) createDirect(ctx context.Context, span trace.Span, plan *ProjectPlan, draft domain.Draft) (*domain.Project, error) {
	res, err := l.apply(ctx, span, plan.Plan)
	if err != nil {
		return nil, err
	}
	draft.Status = domain.StatusActive
	project, err := l.registry.Register(context.WithoutCancel(ctx), draft)
	if err != nil {
		if rmErr := res.Remove(); rmErr != nil {
			log.ErrorErr(log.CatEngine, "Failed to remove unregistered project", rmErr, "root", res.Root)
			return nil, errors.Join(err, rmErr)
		}
		span.AddEvent(tracing.EventRolledBack)
		return nil, err
	}
	return project, nil
}

func (l *Library) apply(ctx context.Context, parent trace.Span, plan *engine.Plan) (*engine.Result, error) {
	var res *engine.Result
	err := tracing.Run(ctx, l.tracer, tracing.SpanInstantiate, func(ctx context.Context, span trace.Span) error {
		var err error
		res, err = l.engine.Apply(ctx, plan)
		if errors.Is(err, engine.ErrInstantiationIO) {
			parent.AddEvent(tracing.EventRolledBack)
		}
		return err
	},
		attribute.String(tracing.AttrProjectRoot, plan.Root),
		attribute.Int(tracing.AttrPlanDirs, plan.Dirs()),
		attribute.Int(tracing.AttrPlanFiles, plan.Files()),
	)
	return res, err
}

// prepare loads the template, resolves the variables and runs the dry run.
func (l *Library) prepare(ctx context.Context, req CreateRequest) (*ProjectPlan, error) {
	if strings.TrimSpace(req.Template) == "" {
		return nil, fmt.Errorf("%w: template is required", domain.ErrInvalidProject)
	}
	tmpl, err := l.store.Load(ctx, req.Template)
	if err != nil {
		return nil, err
	}

	supplied := suppliedValues(tmpl, req)
	vars, err := variables.Resolve(tmpl.Manifest(), supplied)
	if err != nil {
		return nil, err
	}

	target := req.Target
	if target == "" {
		if target, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
	}
	target, err = expandTarget(target)
	if err != nil {
		return nil, err
	}

	plan, err := l.engine.Plan(ctx, tmpl, vars, target)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = vars[ProjectNameVariable]
	}
	if name == "" {
		name = filepath.Base(plan.Root)
	}
	return &ProjectPlan{Template: tmpl, Name: name, Variables: vars, Plan: plan}, nil
}

// suppliedValues copies the request variables and fills project_name from
// the request name when the template declares it.
func suppliedValues(tmpl *tmpldomain.Template, req CreateRequest) map[string]string {
	supplied := make(map[string]string, len(req.Variables)+1)
	for k, v := range req.Variables {
		supplied[k] = v
	}
	if _, declared := tmpl.Manifest().Variable(ProjectNameVariable); declared {
		if _, ok := supplied[ProjectNameVariable]; !ok && strings.TrimSpace(req.Name) != "" {
			supplied[ProjectNameVariable] = strings.TrimSpace(req.Name)
		}
	}
	return supplied
}

func expandTarget(target string) (string, error) {
	expanded, err := config.ExpandHome(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target %s: %w", target, err)
	}
	return abs, nil
}
