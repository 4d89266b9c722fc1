package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/NaruseNia/progest/internal/project/domain"
)

// ProjectModel represents the database row for the projects table.
// Fields map directly to SQL columns with Unix millisecond timestamps.
type ProjectModel struct {
	ID             string
	Name           string
	Description    *string // nullable
	RootPath       string
	TemplateName   string
	TemplatePath   string
	TemplateDigest *string // nullable
	Variables      string  // JSON object
	Tags           *string // nullable, JSON encoded

	Status string

	// Timestamps
	CreatedAt int64 // Unix milliseconds
	UpdatedAt int64 // Unix milliseconds
}

// toProjectModel converts a domain Project entity to a database ProjectModel.
func toProjectModel(p *domain.Project) (*ProjectModel, error) {
	vars, err := json.Marshal(p.Variables())
	if err != nil {
		return nil, fmt.Errorf("failed to encode variables: %w", err)
	}

	m := &ProjectModel{
		ID:           p.ID(),
		Name:         p.Name(),
		RootPath:     p.RootPath(),
		TemplateName: p.TemplateName(),
		TemplatePath: p.TemplatePath(),
		Variables:    string(vars),
		Status:       string(p.Status()),
		CreatedAt:    p.CreatedAt().UnixMilli(),
		UpdatedAt:    p.UpdatedAt().UnixMilli(),
	}
	if p.Description() != "" {
		description := p.Description()
		m.Description = &description
	}
	if p.TemplateDigest() != "" {
		digest := p.TemplateDigest()
		m.TemplateDigest = &digest
	}
	if tags := p.Tags(); len(tags) > 0 {
		encoded, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tags: %w", err)
		}
		s := string(encoded)
		m.Tags = &s
	}
	return m, nil
}

// toDomain converts a database ProjectModel to a domain Project entity.
func (m *ProjectModel) toDomain() (*domain.Project, error) {
	var vars map[string]string
	if err := json.Unmarshal([]byte(m.Variables), &vars); err != nil {
		return nil, fmt.Errorf("failed to decode variables of %s: %w", m.ID, err)
	}
	var tags []string
	if m.Tags != nil {
		if err := json.Unmarshal([]byte(*m.Tags), &tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of %s: %w", m.ID, err)
		}
	}

	return domain.ReconstituteProject(
		m.ID, m.Name, deref(m.Description), m.RootPath,
		m.TemplateName, m.TemplatePath, deref(m.TemplateDigest),
		vars,
		tags,
		domain.Status(m.Status),
		time.UnixMilli(m.CreatedAt),
		time.UnixMilli(m.UpdatedAt),
	), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
