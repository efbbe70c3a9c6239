package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmatter/openmatter/pkg/engine"
)

const customRego = `# Forbids single-letter type names
package custom.policies.names

import rego.v1

deny contains violation if {
	def := input.definition
	count(def.name) == 1
	violation := {
		"message": sprintf("type name '%s' is too short", [def.name]),
		"severity": "error",
		"type": def.name,
	}
}`

func TestLoadFromPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short-names.rego")
	if err := os.WriteFile(path, []byte(customRego), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	l := NewLoader(testLogger())
	policies, err := l.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}

	p := policies[0]
	if p.Name != "short-names" {
		t.Errorf("expected name from filename, got %s", p.Name)
	}
	if p.Description != "Forbids single-letter type names" {
		t.Errorf("expected description from leading comment, got %q", p.Description)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("expected default severity warning, got %s", p.Severity)
	}
}

func TestLoadedPolicyFires(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "short-names.rego"), []byte(customRego), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	e := newTestEngine(t)
	if err := e.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	def := engine.TypeDefinition{
		Name:   "X",
		Kind:   engine.KindProduct,
		Fields: []engine.FieldSpec{{Name: "v", Tag: engine.IntTag()}},
	}

	result, err := e.Lint(context.Background(), def)
	if err != nil {
		t.Fatalf("Lint failed: %v", err)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "short-names" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected loaded policy to fire, got %v", result.Violations)
	}
}

func TestLoaderIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a policy"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	l := NewLoader(testLogger())
	policies, err := l.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 0 {
		t.Errorf("expected no policies, got %d", len(policies))
	}
}
