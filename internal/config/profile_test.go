// ABOUTME: Tests for profile descriptor loading and validation
// ABOUTME: Covers the exactly-one-of command/url rule and name derivation

package config

import (
	"strings"
	"testing"
)

func TestLoadProfile(t *testing.T) {
	t.Run("loads valid profile", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := writeFile(t, tmpDir, "dev.yaml", `
backends:
  kubernetes:
    command: "uvx"
    args: ["mcp-kubernetes"]
  docs:
    url: "https://docs.example.com/mcp"
`)

		p, err := LoadProfile(path)
		if err != nil {
			t.Fatalf("LoadProfile() error = %v", err)
		}

		if p.Name != "dev" {
			t.Errorf("Name = %q, want %q (derived from filename)", p.Name, "dev")
		}
		if len(p.Backends) != 2 {
			t.Fatalf("expected 2 backends, got %d", len(p.Backends))
		}
		k8s := p.Backends["kubernetes"]
		if k8s.Command != "uvx" || len(k8s.Args) != 1 {
			t.Errorf("unexpected kubernetes spec: %+v", k8s)
		}
		if p.Backends["docs"].URL == "" {
			t.Error("expected docs backend to carry a url")
		}
	})

	t.Run("explicit name wins over filename", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := writeFile(t, tmpDir, "file.yaml", `
name: production
backends:
  db:
    command: "mcp-db"
`)

		p, err := LoadProfile(path)
		if err != nil {
			t.Fatalf("LoadProfile() error = %v", err)
		}
		if p.Name != "production" {
			t.Errorf("Name = %q, want %q", p.Name, "production")
		}
	})

	t.Run("rejects spec with neither command nor url", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := writeFile(t, tmpDir, "broken.yaml", `
backends:
  ghost: {}
`)

		_, err := LoadProfile(path)
		if err == nil {
			t.Fatal("expected validation error")
		}
		if !strings.Contains(err.Error(), "broken") {
			t.Errorf("error should name the profile, got %v", err)
		}
		if !strings.Contains(err.Error(), "ghost") {
			t.Errorf("error should name the backend, got %v", err)
		}
	})

	t.Run("rejects spec with both command and url", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := writeFile(t, tmpDir, "both.yaml", `
backends:
  dual:
    command: "mcp-x"
    url: "https://x.example.com/mcp"
`)

		if _, err := LoadProfile(path); err == nil {
			t.Fatal("expected validation error for mutually exclusive forms")
		}
	})

	t.Run("accepts empty profile", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := writeFile(t, tmpDir, "empty.yaml", "backends: {}\n")

		p, err := LoadProfile(path)
		if err != nil {
			t.Fatalf("LoadProfile() error = %v, want empty profile to load", err)
		}
		if len(p.Backends) != 0 {
			t.Errorf("expected no backends, got %d", len(p.Backends))
		}
	})
}

func TestLoadProfileByName(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "staging.yaml", `
backends:
  search:
    command: "mcp-search"
`)

	p, err := LoadProfileByName(tmpDir, "staging")
	if err != nil {
		t.Fatalf("LoadProfileByName() error = %v", err)
	}
	if p.Name != "staging" {
		t.Errorf("Name = %q, want %q", p.Name, "staging")
	}

	_, err = LoadProfileByName(tmpDir, "missing")
	if err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("error should name the profile, got %v", err)
	}
}

func TestListProfiles(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "b.yaml", "backends: {x: {command: c}}\n")
	writeFile(t, tmpDir, "a.yml", "backends: {x: {command: c}}\n")
	writeFile(t, tmpDir, "notes.txt", "ignored\n")

	names, err := ListProfiles(tmpDir)
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("names = %v, want [a b]", names)
	}
}

func TestBackendIDsSorted(t *testing.T) {
	p := &Profile{
		Name: "p",
		Backends: map[string]BackendSpec{
			"zeta":  {Command: "z"},
			"alpha": {Command: "a"},
			"mid":   {Command: "m"},
		},
	}

	ids := p.BackendIDs()
	if len(ids) != 3 || ids[0] != "alpha" || ids[1] != "mid" || ids[2] != "zeta" {
		t.Errorf("BackendIDs() = %v, want sorted order", ids)
	}
}
