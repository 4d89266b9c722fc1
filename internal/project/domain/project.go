// Package domain provides the project record entity, its lifecycle and the
// repository interface for persisting it. It has no infrastructure
// dependencies.
package domain

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Status represents the lifecycle status of a project record.
type Status string

const (
	// StatusPending marks a record that reserves a root path while the
	// project is being created.
	StatusPending Status = "pending"

	// StatusActive marks a project that exists on disk.
	StatusActive Status = "active"

	// StatusArchived marks a project the user no longer works on.
	StatusArchived Status = "archived"

	// StatusMissing marks a project whose root path is gone from disk.
	StatusMissing Status = "missing"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusActive, StatusArchived, StatusMissing}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized project status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusArchived, StatusMissing:
		return true
	default:
		return false
	}
}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", invalidProject("unknown status %q", s)
	}
	return status, nil
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusActive, StatusMissing},
	StatusActive:   {StatusArchived, StatusMissing},
	StatusArchived: {StatusActive, StatusMissing},
	StatusMissing:  {StatusActive, StatusArchived},
}

// CanTransitionTo reports whether a record may move from s to next.
// Staying in the same status is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsPath reports whether a record in this status reserves its root path.
func (s Status) HoldsPath() bool {
	return s != StatusMissing
}

// Draft carries the caller-supplied fields of a new record.
type Draft struct {
	Name           string
	Description    string
	RootPath       string
	TemplateName   string
	TemplatePath   string
	TemplateDigest string
	Variables      map[string]string
	Tags           []string
	// Status must be pending or active. Empty means active.
	Status Status
}

// Project is a project record. All fields are unexported to enforce
// encapsulation; records change only through the registry.
type Project struct {
	id             string
	name           string
	description    string
	rootPath       string
	templateName   string
	templatePath   string
	templateDigest string
	variables      map[string]string
	tags           []string
	status         Status
	createdAt      time.Time
	updatedAt      time.Time
}

// Timestamp is the precision records keep: UTC, whole milliseconds, no
// monotonic reading. Stores persist exactly this much.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// NewProject validates d and creates a record with the given id.
func NewProject(id string, d Draft, now time.Time) (*Project, error) {
	if id == "" {
		return nil, invalidProject("id is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return nil, invalidProject("name is required")
	}
	if !filepath.IsAbs(d.RootPath) {
		return nil, invalidProject("root path %q must be absolute", d.RootPath)
	}
	status := d.Status
	if status == "" {
		status = StatusActive
	}
	if status != StatusActive && status != StatusPending {
		return nil, invalidProject("new records must be pending or active, got %s", status)
	}

	return &Project{
		id:             id,
		name:           strings.TrimSpace(d.Name),
		description:    d.Description,
		rootPath:       filepath.Clean(d.RootPath),
		templateName:   d.TemplateName,
		templatePath:   d.TemplatePath,
		templateDigest: d.TemplateDigest,
		variables:      copyVars(d.Variables),
		tags:           normalizeTags(d.Tags),
		status:         status,
		createdAt:      Timestamp(now),
		updatedAt:      Timestamp(now),
	}, nil
}

// ReconstituteProject creates a Project from stored data, typically when
// hydrating from the database. All fields are provided explicitly.
func ReconstituteProject(
	id, name, description, rootPath string,
	templateName, templatePath, templateDigest string,
	variables map[string]string,
	tags []string,
	status Status,
	createdAt, updatedAt time.Time,
) *Project {
	return &Project{
		id:             id,
		name:           name,
		description:    description,
		rootPath:       rootPath,
		templateName:   templateName,
		templatePath:   templatePath,
		templateDigest: templateDigest,
		variables:      copyVars(variables),
		tags:           normalizeTags(tags),
		status:         status,
		createdAt:      Timestamp(createdAt),
		updatedAt:      Timestamp(updatedAt),
	}
}

// ID returns the record identifier.
func (p *Project) ID() string { return p.id }

// Name returns the display name.
func (p *Project) Name() string { return p.name }

// Description returns the free-form description.
func (p *Project) Description() string { return p.description }

// RootPath returns the absolute project root.
func (p *Project) RootPath() string { return p.rootPath }

// TemplateName returns the name of the template the project was created from.
func (p *Project) TemplateName() string { return p.templateName }

// TemplatePath returns the template source at creation time.
func (p *Project) TemplatePath() string { return p.templatePath }

// TemplateDigest returns the template content hash at creation time.
func (p *Project) TemplateDigest() string { return p.templateDigest }

// Variables returns a copy of the resolved variables used at creation.
func (p *Project) Variables() map[string]string { return copyVars(p.variables) }

// Tags returns the sorted tags.
func (p *Project) Tags() []string { return append([]string(nil), p.tags...) }

// Status returns the lifecycle status.
func (p *Project) Status() Status { return p.status }

// CreatedAt returns when the record was created.
func (p *Project) CreatedAt() time.Time { return p.createdAt }

// UpdatedAt returns when the record last changed.
func (p *Project) UpdatedAt() time.Time { return p.updatedAt }

// HasTag reports whether the record carries tag.
func (p *Project) HasTag(tag string) bool {
	tag = normalizeTag(tag)
	for _, t := range p.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TransitionTo moves the record to next.
func (p *Project) TransitionTo(next Status, now time.Time) error {
	if !next.IsValid() || !p.status.CanTransitionTo(next) {
		return &InvalidTransitionError{ID: p.id, From: p.status, To: next}
	}
	if p.status == next {
		return nil
	}
	p.status = next
	p.updatedAt = Timestamp(now)
	return nil
}

// Relocate points the record at a new root and marks it active.
func (p *Project) Relocate(root string, now time.Time) error {
	if !filepath.IsAbs(root) {
		return invalidProject("root path %q must be absolute", root)
	}
	if p.status == StatusPending {
		return &InvalidTransitionError{ID: p.id, From: p.status, To: StatusActive}
	}
	p.rootPath = filepath.Clean(root)
	p.status = StatusActive
	p.updatedAt = Timestamp(now)
	return nil
}

// AddTags adds tags and reports whether anything changed.
func (p *Project) AddTags(tags []string, now time.Time) bool {
	merged := normalizeTags(append(p.Tags(), tags...))
	if equalStrings(merged, p.tags) {
		return false
	}
	p.tags = merged
	p.updatedAt = Timestamp(now)
	return true
}

// RemoveTags removes tags and reports whether anything changed.
func (p *Project) RemoveTags(tags []string, now time.Time) bool {
	drop := make(map[string]bool, len(tags))
	for _, t := range tags {
		drop[normalizeTag(t)] = true
	}
	var kept []string
	for _, t := range p.tags {
		if !drop[t] {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(p.tags) {
		return false
	}
	p.tags = kept
	p.updatedAt = Timestamp(now)
	return true
}

// SetDescription replaces the description.
func (p *Project) SetDescription(description string, now time.Time) {
	if p.description == description {
		return
	}
	p.description = description
	p.updatedAt = Timestamp(now)
}

// Clone returns an independent copy.
func (p *Project) Clone() *Project {
	c := *p
	c.variables = copyVars(p.variables)
	c.tags = append([]string(nil), p.tags...)
	return &c
}

// SortProjects orders records by creation time, ties broken by id.
func SortProjects(projects []*Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		a, b := projects[i], projects[j]
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.Before(b.createdAt)
		}
		return a.id < b.id
	})
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = normalizeTag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func copyVars(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
