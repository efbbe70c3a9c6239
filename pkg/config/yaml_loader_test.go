package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openmatter/openmatter/pkg/engine"
)

const sampleYAMLSchema = `
types:
  Point:
    kind: product
    fields:
      x: int
      y: int
  Tree:
    kind: sum
    variants:
      Node:
        fields:
          value: int
          children: seq:self
      Leaf: {}
`

func TestYAMLLoadInline(t *testing.T) {
	l := NewYAMLLoader()

	parsed, err := l.LoadInline(sampleYAMLSchema)
	if err != nil {
		t.Fatalf("LoadInline failed: %v", err)
	}
	if len(parsed.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", parsed.Errors)
	}
	if len(parsed.Definitions) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(parsed.Definitions))
	}

	tree := parsed.Definitions[1]
	if tree.Name != "Tree" || tree.Kind != engine.KindSum {
		t.Fatalf("unexpected definition: %+v", tree)
	}
	node, ok := tree.Variant("Node")
	if !ok {
		t.Fatal("Node variant missing")
	}
	var children *engine.FieldSpec
	for i := range node.Fields {
		if node.Fields[i].Name == "children" {
			children = &node.Fields[i]
		}
	}
	if children == nil {
		t.Fatal("children field missing")
	}
	if children.Tag.Kind != engine.TagSeq || children.Tag.Elem.Kind != engine.TagSelf {
		t.Errorf("expected seq:self tag, got %+v", children.Tag)
	}
}

func TestYAMLLoadInlineBadDocument(t *testing.T) {
	l := NewYAMLLoader()

	parsed, err := l.LoadInline("types: [not, a, map]")
	if err != nil {
		t.Fatalf("LoadInline returned hard error: %v", err)
	}
	if len(parsed.Errors) == 0 {
		t.Fatal("expected decode errors to be collected")
	}
}

func TestYAMLLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(sampleYAMLSchema), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	extra := `
types:
  Flag:
    kind: product
    fields:
      on: bool
`
	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte(extra), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}

	l := NewYAMLLoader()
	parsed, err := l.Load([]string{dir})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(parsed.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", parsed.Errors)
	}
	if len(parsed.Definitions) != 3 {
		t.Errorf("expected 3 definitions across files, got %d", len(parsed.Definitions))
	}
}

func TestYAMLLoadRejectsMissingKind(t *testing.T) {
	l := NewYAMLLoader()

	parsed, err := l.LoadInline(`
types:
  Bad:
    fields:
      x: int
`)
	if err != nil {
		t.Fatalf("LoadInline failed: %v", err)
	}
	if len(parsed.Errors) == 0 {
		t.Fatal("expected missing kind to be reported")
	}
}
