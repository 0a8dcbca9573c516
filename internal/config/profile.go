// ABOUTME: Profile descriptor loading for mcp-hub
// ABOUTME: Parses and validates the named backend sets the gateway can activate

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// BackendSpec describes how to reach one backend tool server.
// Exactly one of Command or URL must be set: Command spawns a local
// subprocess speaking MCP over its standard streams, URL connects to a
// remote streaming endpoint.
type BackendSpec struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// Profile is a named, swappable set of backend specifications.
type Profile struct {
	Name     string                 `yaml:"name"`
	Backends map[string]BackendSpec `yaml:"backends"`
}

// LoadProfile reads a profile descriptor from the given YAML file.
// The profile name defaults to the file's base name when not set in the
// descriptor. Environment variables in ${VAR_NAME} form are expanded.
// Invalid backend specs fail here, at load time, rather than at connect time.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %q: %w", profileNameFromPath(path), err)
	}

	var p Profile
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &p); err != nil {
		return nil, fmt.Errorf("parsing profile %q: %w", profileNameFromPath(path), err)
	}

	if p.Name == "" {
		p.Name = profileNameFromPath(path)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validating profile %q: %w", p.Name, err)
	}

	return &p, nil
}

// LoadProfileByName loads <name>.yaml (or <name>.yml) from the profiles directory.
func LoadProfileByName(dir, name string) (*Profile, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadProfile(path)
		}
	}
	return nil, fmt.Errorf("profile %q not found in %s", name, dir)
}

// ListProfiles returns the names of all profile descriptors in the directory, sorted.
func ListProfiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading profiles directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Validate checks every backend spec in the profile. A profile with no
// backends is valid; it activates with an empty tool registry.
func (p *Profile) Validate() error {
	for id, spec := range p.Backends {
		if id == "" {
			return fmt.Errorf("backend id must not be empty")
		}
		if strings.ContainsAny(id, " \t\n") {
			return fmt.Errorf("backend id %q must not contain whitespace", id)
		}
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("backend %q: %w", id, err)
		}
	}
	return nil
}

// Validate enforces the exactly-one-form rule for a backend spec.
func (s BackendSpec) Validate() error {
	switch {
	case s.Command == "" && s.URL == "":
		return fmt.Errorf("either command or url is required")
	case s.Command != "" && s.URL != "":
		return fmt.Errorf("command and url are mutually exclusive")
	case s.Command == "" && len(s.Args) > 0:
		return fmt.Errorf("args require a command")
	}
	return nil
}

// BackendIDs returns the profile's backend ids sorted for deterministic activation order.
func (p *Profile) BackendIDs() []string {
	ids := make([]string, 0, len(p.Backends))
	for id := range p.Backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// profileNameFromPath derives a profile name from a descriptor file path.
func profileNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
