// Package flags provides feature flag support for controlled feature rollout.
// Flags are read-only after initialization and provide safe defaults for unknown flags.
package flags

import (
	"maps"
	"slices"
	"strings"

	"github.com/NaruseNia/progest/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagProvisionalRecords controls whether project creation reserves the
	// root path with a pending record before writing to disk. When disabled,
	// the record is registered only after instantiation succeeds.
	FlagProvisionalRecords = "provisional-records"

	// FlagTemplateWatch controls whether the template store watches its
	// search paths and reloads on change. Long-lived front-ends enable it.
	FlagTemplateWatch = "template-watch"
)

// Defaults returns the value of every known flag when the config is silent.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagProvisionalRecords: true,
		FlagTemplateWatch:      false,
	}
}

// Normalize lowercases name and accepts underscores for dashes, so
// "provisional_records" in a config file means FlagProvisionalRecords.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

// Registry holds feature flag state loaded from configuration.
// Flags are read-only after initialization.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map with normalized names.
// If flags is nil, an empty registry is created (all flags disabled).
func New(flags map[string]bool) *Registry {
	normalized := make(map[string]bool, len(flags))
	for name, enabled := range flags {
		normalized[Normalize(name)] = enabled
	}
	return &Registry{flags: normalized}
}

// NewWithDefaults creates a Registry from Defaults overlaid with overrides.
// Overrides naming no known flag are kept but logged.
func NewWithDefaults(overrides map[string]bool) *Registry {
	merged := Defaults()
	for name, enabled := range overrides {
		merged[Normalize(name)] = enabled
	}
	r := &Registry{flags: merged}
	if unknown := r.Unknown(); len(unknown) > 0 {
		log.Warn(log.CatConfig, "Unknown feature flags in config", "flags", strings.Join(unknown, ","))
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "flags", r.All())
	return r
}

// Enabled returns true if the named flag is enabled. Unknown flags and a nil
// registry report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[Normalize(name)]
}

// Unknown lists, sorted, the configured flags that progest does not define.
func (r *Registry) Unknown() []string {
	if r == nil {
		return nil
	}
	known := Defaults()
	var out []string
	for name := range r.flags {
		if _, ok := known[name]; !ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// All returns a copy of all flags. Returns an empty map if the registry is nil.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}
