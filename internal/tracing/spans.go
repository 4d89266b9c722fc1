package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrTemplateName   = "template.name"
	AttrTemplateSource = "template.source"

	AttrProjectID     = "project.id"
	AttrProjectRoot   = "project.root"
	AttrProjectStatus = "project.status"

	AttrPlanDirs  = "plan.dirs"
	AttrPlanFiles = "plan.files"

	AttrReconcileChanges = "reconcile.changes"

	AttrErrorType = "error.type"
)

// Span names.
const (
	SpanCreateProject     = "progest.create_project"
	SpanPlanProject       = "progest.plan_project"
	SpanInstantiate       = "engine.instantiate"
	SpanReconcileProjects = "progest.reconcile_projects"
	SpanDiffProject       = "progest.diff_project"
)

// Event names.
const (
	EventPathReserved = "registry.path_reserved"
	EventRolledBack   = "engine.rolled_back"
	EventPromoted     = "registry.promoted"
)

// Run starts a span named name, runs fn inside it and records fn's error
// on the span. A nil tracer runs fn without a span.
func Run(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context, trace.Span) error, attrs ...attribute.KeyValue) error {
	if tracer == nil {
		return fn(ctx, trace.SpanFromContext(ctx))
	}

	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	err := fn(ctx, span)
	Finish(span, err)
	return err
}

// Finish sets the span status from err.
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String(AttrErrorType, fmt.Sprintf("%T", err)))
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// TraceIDFromContext returns the trace id of the span in ctx, or "" when
// ctx carries no recording span.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
