package presentation

import (
	"time"

	"github.com/NaruseNia/progest/internal/progest"
	projectapp "github.com/NaruseNia/progest/internal/project/application"
	"github.com/NaruseNia/progest/internal/project/domain"
	tmplapp "github.com/NaruseNia/progest/internal/template/application"
	tmpldomain "github.com/NaruseNia/progest/internal/template/domain"
)

// TemplateDTO represents a discovered template for presentation
type TemplateDTO struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version,omitempty"`
	Source      string   `json:"source"`
	Builtin     bool     `json:"builtin"`
	Variables   []string `json:"variables"`
}

// WarningDTO represents a non-fatal template discovery problem
type WarningDTO struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// TemplateListDTO is the output of template:list
type TemplateListDTO struct {
	Templates []TemplateDTO `json:"templates"`
	Warnings  []WarningDTO  `json:"warnings,omitempty"`
}

// VariableDTO represents a manifest variable declaration
type VariableDTO struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Default     *string  `json:"default,omitempty"`
	Options     []string `json:"options,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Convention  string   `json:"convention,omitempty"`
}

// RuleDTO represents a conditional inclusion rule
type RuleDTO struct {
	Path string `json:"path"`
	When string `json:"when"`
}

// TemplateDetailDTO is the output of template:show
type TemplateDetailDTO struct {
	TemplateDTO
	Digest     string        `json:"digest"`
	Delimiters [2]string     `json:"delimiters"`
	Variables  []VariableDTO `json:"variables"`
	Rules      []RuleDTO     `json:"rules,omitempty"`
	Raw        []string      `json:"raw,omitempty"`
	Exclude    []string      `json:"exclude,omitempty"`
	Entries    []string      `json:"entries"`
}

// ProjectDTO represents a project record for presentation
type ProjectDTO struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	RootPath       string            `json:"root_path"`
	Status         string            `json:"status"`
	TemplateName   string            `json:"template_name,omitempty"`
	TemplatePath   string            `json:"template_path,omitempty"`
	TemplateDigest string            `json:"template_digest,omitempty"`
	Variables      map[string]string `json:"variables"`
	Tags           []string          `json:"tags"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ChangeDTO represents one reconciliation transition
type ChangeDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RootPath  string `json:"root_path"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// ActionDTO represents one directory or file a plan creates
type ActionDTO struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Mode  string `json:"mode"`
	Size  int    `json:"size,omitempty"`
}

// PlanDTO is the output of project:create --dry-run
type PlanDTO struct {
	Template  string            `json:"template"`
	Name      string            `json:"name"`
	Target    string            `json:"target"`
	Root      string            `json:"root"`
	Variables map[string]string `json:"variables"`
	Actions   []ActionDTO       `json:"actions"`
}

// FileDriftDTO represents one file that differs from the template
type FileDriftDTO struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Diff    string `json:"diff,omitempty"`
	Added   int    `json:"added,omitempty"`
	Removed int    `json:"removed,omitempty"`
}

// DriftDTO is the output of project:diff
type DriftDTO struct {
	ProjectID       string         `json:"project_id"`
	Name            string         `json:"name"`
	RootPath        string         `json:"root_path"`
	TemplateChanged bool           `json:"template_changed"`
	Clean           bool           `json:"clean"`
	Files           []FileDriftDTO `json:"files"`
}

// FromTemplateSummary converts a template summary to a DTO
func FromTemplateSummary(s progest.TemplateSummary) TemplateDTO {
	vars := s.Variables
	if vars == nil {
		vars = []string{}
	}
	return TemplateDTO{
		Name:        s.Name,
		Description: s.Description,
		Version:     s.Version,
		Source:      s.Source,
		Builtin:     s.Builtin,
		Variables:   vars,
	}
}

// FromTemplateList converts a template listing to a DTO
func FromTemplateList(summaries []progest.TemplateSummary, warnings []tmplapp.Warning) TemplateListDTO {
	out := TemplateListDTO{Templates: make([]TemplateDTO, len(summaries))}
	for i, s := range summaries {
		out.Templates[i] = FromTemplateSummary(s)
	}
	for _, w := range warnings {
		out.Warnings = append(out.Warnings, WarningDTO{Source: w.Source, Message: w.Message})
	}
	return out
}

// FromTemplate converts a loaded template to a detail DTO
func FromTemplate(t *tmpldomain.Template) TemplateDetailDTO {
	m := t.Manifest()
	out := TemplateDetailDTO{
		TemplateDTO: FromTemplateSummary(progest.Summarize(t)),
		Digest:      t.Digest(),
		Delimiters:  [2]string{m.Delimiters.Open, m.Delimiters.Close},
		Variables:   make([]VariableDTO, len(m.Variables)),
		Raw:         m.Raw,
		Exclude:     m.Exclude,
		Entries:     make([]string, 0, len(t.Entries())),
	}
	for i, v := range m.Variables {
		dto := VariableDTO{
			Name:        v.Name,
			Description: v.Description,
			Type:        string(v.Type),
			Required:    v.Required(),
			Default:     v.Default,
			Options:     v.Options,
			Convention:  string(v.Convention),
		}
		if v.Pattern != nil {
			dto.Pattern = v.Pattern.String()
		}
		out.Variables[i] = dto
	}
	for _, r := range m.Rules {
		when := r.When
		if r.Negate {
			when = "!" + when
		}
		out.Rules = append(out.Rules, RuleDTO{Path: r.Path, When: when})
	}
	for _, e := range t.Entries() {
		p := e.Path
		if e.IsDir {
			p += "/"
		}
		out.Entries = append(out.Entries, p)
	}
	return out
}

// FromProject converts a project record to a DTO
func FromProject(p *domain.Project) ProjectDTO {
	tags := p.Tags()
	if tags == nil {
		tags = []string{}
	}
	return ProjectDTO{
		ID:             p.ID(),
		Name:           p.Name(),
		Description:    p.Description(),
		RootPath:       p.RootPath(),
		Status:         p.Status().String(),
		TemplateName:   p.TemplateName(),
		TemplatePath:   p.TemplatePath(),
		TemplateDigest: p.TemplateDigest(),
		Variables:      p.Variables(),
		Tags:           tags,
		CreatedAt:      p.CreatedAt().UTC(),
		UpdatedAt:      p.UpdatedAt().UTC(),
	}
}

// FromProjects converts a slice of project records to DTOs
func FromProjects(projects []*domain.Project) []ProjectDTO {
	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		dtos[i] = FromProject(p)
	}
	return dtos
}

// FromChanges converts reconciliation changes to DTOs
func FromChanges(changes []projectapp.Change) []ChangeDTO {
	dtos := make([]ChangeDTO, len(changes))
	for i, c := range changes {
		dtos[i] = ChangeDTO{
			ID:        c.ID,
			Name:      c.Name,
			RootPath:  c.RootPath,
			OldStatus: c.Old.String(),
			NewStatus: c.New.String(),
		}
	}
	return dtos
}

// FromPlan converts a dry run to a DTO
func FromPlan(p *progest.ProjectPlan) PlanDTO {
	out := PlanDTO{
		Template:  p.Template.Name(),
		Name:      p.Name,
		Target:    p.Plan.Target,
		Root:      p.Plan.Root,
		Variables: map[string]string(p.Variables.Clone()),
		Actions:   make([]ActionDTO, len(p.Plan.Actions)),
	}
	for i, a := range p.Plan.Actions {
		out.Actions[i] = ActionDTO{Path: a.Path, IsDir: a.IsDir, Mode: a.Mode.Perm().String(), Size: len(a.Content)}
	}
	return out
}

// FromDrift converts a drift report to a DTO
func FromDrift(d *progest.Drift) DriftDTO {
	out := DriftDTO{
		ProjectID:       d.Project.ID(),
		Name:            d.Project.Name(),
		RootPath:        d.Project.RootPath(),
		TemplateChanged: d.TemplateChanged(),
		Clean:           d.Clean(),
		Files:           make([]FileDriftDTO, len(d.Files)),
	}
	for i, f := range d.Files {
		out.Files[i] = FileDriftDTO{Path: f.Path, Kind: string(f.Kind), Diff: f.Diff, Added: f.Added, Removed: f.Removed}
	}
	return out
}
