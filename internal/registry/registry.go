// ABOUTME: Thread-safe registry of qualified tool names for the active profile.
// ABOUTME: Maps <backendId>_<toolName> entries to their owning backend.

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrToolNotFound indicates no entry exists for a qualified name.
var ErrToolNotFound = errors.New("tool not found")

// Entry is one tool exposed by the gateway. QualifiedName is what callers
// address; Name is what the owning backend knows the tool as.
type Entry struct {
	QualifiedName string
	Name          string
	BackendID     string
	Description   string
	InputSchema   json.RawMessage
}

// Qualify builds the caller-facing name for a backend's tool. Backend IDs
// are unique within a profile and the separator sits at a fixed position,
// so two distinct (backend, tool) pairs can never produce the same result.
func Qualify(backendID, toolName string) string {
	return backendID + "_" + toolName
}

// Decorate prefixes a tool description with its origin so callers can see
// which profile and backend a tool came from. Display only; it never
// feeds back into routing.
func Decorate(profileName, backendID, description string) string {
	return fmt.Sprintf("[%s/%s] %s", profileName, backendID, description)
}

// Registry holds the tool entries for the currently active profile. It is
// rebuilt from scratch on every profile activation and cleared on
// deactivation; entries never carry over between profiles.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds entries for every tool a backend reported, under their
// qualified names. Tools from one backend keep their listing order.
func (r *Registry) Register(backendID string, tools []ToolInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		q := Qualify(backendID, t.Name)
		r.entries[q] = &Entry{
			QualifiedName: q,
			Name:          t.Name,
			BackendID:     backendID,
			Description:   t.Description,
			InputSchema:   t.InputSchema,
		}
	}
}

// ToolInfo is the subset of a backend tool the registry records.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Rebuild atomically replaces the registry's contents with the tools of
// the given backends. Concurrent readers see either the previous state
// or the complete new one, never a half-built mix.
func (r *Registry) Rebuild(backends map[string][]ToolInfo) {
	entries := make(map[string]*Entry)
	for backendID, tools := range backends {
		for _, t := range tools {
			q := Qualify(backendID, t.Name)
			entries[q] = &Entry{
				QualifiedName: q,
				Name:          t.Name,
				BackendID:     backendID,
				Description:   t.Description,
				InputSchema:   t.InputSchema,
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
}

// Lookup resolves a qualified name to its entry.
func (r *Registry) Lookup(qualifiedName string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[qualifiedName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, qualifiedName)
	}
	return e, nil
}

// List returns every entry sorted by qualified name, with descriptions
// decorated for the given profile.
func (r *Registry) List(profileName string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, &Entry{
			QualifiedName: e.QualifiedName,
			Name:          e.Name,
			BackendID:     e.BackendID,
			Description:   Decorate(profileName, e.BackendID, e.Description),
			InputSchema:   e.InputSchema,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName < out[j].QualifiedName
	})
	return out
}

// Clear removes every entry. Called before a profile's backends are torn
// down so callers stop seeing tools that are about to disappear.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*Entry)
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
