package progest

import (
	"context"

	"github.com/NaruseNia/progest/internal/pubsub"
	tmplapp "github.com/NaruseNia/progest/internal/template/application"
	tmpldomain "github.com/NaruseNia/progest/internal/template/domain"
)

// TemplateSummary describes a discovered template.
type TemplateSummary struct {
	Name        string
	Description string
	Version     string
	Source      string
	Builtin     bool
	Variables   []string
}

// Summarize reduces a loaded template to its summary.
func Summarize(t *tmpldomain.Template) TemplateSummary {
	return TemplateSummary{
		Name:        t.Name(),
		Description: t.Description(),
		Version:     t.Version(),
		Source:      t.Source(),
		Builtin:     t.Builtin(),
		Variables:   t.Manifest().VariableNames(),
	}
}

// ListTemplates returns every usable template in discovery order. Invalid
// templates and shadowed duplicates are returned as warnings.
func (l *Library) ListTemplates(ctx context.Context) ([]TemplateSummary, []tmplapp.Warning, error) {
	found, warnings, err := l.store.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	out := make([]TemplateSummary, 0, len(found))
	for _, t := range found {
		out = append(out, Summarize(t))
	}
	return out, warnings, nil
}

// ShowTemplate loads one template by name or directory path.
func (l *Library) ShowTemplate(ctx context.Context, identity string) (*tmpldomain.Template, error) {
	return l.store.Load(ctx, identity)
}

// TemplateSearchPaths returns the directories searched for templates.
func (l *Library) TemplateSearchPaths() []string {
	return l.store.SearchPaths()
}

// ReloadTemplates drops cached templates so the next call rereads the disk.
func (l *Library) ReloadTemplates(ctx context.Context) {
	l.store.Invalidate(ctx)
}

// SubscribeTemplates streams an event whenever watched templates change.
func (l *Library) SubscribeTemplates(ctx context.Context) <-chan pubsub.Event[string] {
	return l.store.Subscribe(ctx)
}
