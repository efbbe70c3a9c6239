package config

import (
	"testing"

	"github.com/openmatter/openmatter/pkg/engine"
)

func TestParseTagScalars(t *testing.T) {
	cases := map[string]engine.TagKind{
		"string": engine.TagString,
		"int":    engine.TagInt,
		"float":  engine.TagFloat,
		"bool":   engine.TagBool,
		"self":   engine.TagSelf,
	}
	for expr, want := range cases {
		tag, err := ParseTag(expr)
		if err != nil {
			t.Errorf("ParseTag(%q) failed: %v", expr, err)
			continue
		}
		if tag.Kind != want {
			t.Errorf("ParseTag(%q) = %s, want %s", expr, tag.Kind, want)
		}
	}
}

func TestParseTagComposite(t *testing.T) {
	tag, err := ParseTag("seq:map:ref:Point")
	if err != nil {
		t.Fatalf("ParseTag failed: %v", err)
	}
	if tag.Kind != engine.TagSeq {
		t.Fatalf("expected seq, got %s", tag.Kind)
	}
	if tag.Elem.Kind != engine.TagMap {
		t.Fatalf("expected map element, got %s", tag.Elem.Kind)
	}
	if tag.Elem.Value.Kind != engine.TagRef || tag.Elem.Value.Ref != "Point" {
		t.Errorf("expected ref:Point value, got %+v", tag.Elem.Value)
	}
}

func TestParseTagRejectsGarbage(t *testing.T) {
	for _, expr := range []string{"", "integer", "seq:", "ref:", "list:int"} {
		if _, err := ParseTag(expr); err == nil {
			t.Errorf("ParseTag(%q) should fail", expr)
		}
	}
}

func TestToDefinitionProduct(t *testing.T) {
	decl := TypeDecl{
		Kind:   "product",
		Fields: map[string]string{"y": "int", "x": "int"},
	}

	def, err := decl.ToDefinition("Point")
	if err != nil {
		t.Fatalf("ToDefinition failed: %v", err)
	}
	if def.Kind != engine.KindProduct {
		t.Errorf("expected product, got %s", def.Kind)
	}
	// Fields come out sorted for deterministic conversion.
	if len(def.Fields) != 2 || def.Fields[0].Name != "x" || def.Fields[1].Name != "y" {
		t.Errorf("unexpected fields: %+v", def.Fields)
	}
}

func TestToDefinitionSum(t *testing.T) {
	decl := TypeDecl{
		Kind: "sum",
		Variants: map[string]VariantDecl{
			"Some": {Fields: map[string]string{"value": "int"}},
			"None": {},
		},
	}

	def, err := decl.ToDefinition("Option")
	if err != nil {
		t.Fatalf("ToDefinition failed: %v", err)
	}
	if def.Kind != engine.KindSum || len(def.Variants) != 2 {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if err := def.Validate(); err != nil {
		t.Errorf("converted definition invalid: %v", err)
	}
}

func TestToDefinitionRejectsMixedShape(t *testing.T) {
	decl := TypeDecl{
		Kind:     "product",
		Fields:   map[string]string{"x": "int"},
		Variants: map[string]VariantDecl{"A": {}},
	}
	if _, err := decl.ToDefinition("Bad"); err == nil {
		t.Error("expected product with variants to be rejected")
	}

	decl = TypeDecl{
		Kind:     "sum",
		Fields:   map[string]string{"x": "int"},
		Variants: map[string]VariantDecl{"A": {}},
	}
	if _, err := decl.ToDefinition("Bad"); err == nil {
		t.Error("expected sum with top-level fields to be rejected")
	}
}

func TestInstall(t *testing.T) {
	doc := SchemaDoc{Types: map[string]TypeDecl{
		"Point": {Kind: "product", Fields: map[string]string{"x": "int", "y": "int"}},
		"Option": {Kind: "sum", Variants: map[string]VariantDecl{
			"Some": {Fields: map[string]string{"value": "int"}},
			"None": {},
		}},
	}}

	defs, errs := doc.ToDefinitions()
	if len(errs) > 0 {
		t.Fatalf("unexpected conversion errors: %v", errs)
	}

	parsed := &ParsedSchema{Definitions: defs}
	reg := engine.NewRegistry(testLogger(), nil)
	if err := parsed.Install(reg); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 installed types, got %d", reg.Len())
	}
}

func TestInstallRefusesBrokenSchema(t *testing.T) {
	parsed := &ParsedSchema{
		Errors: []ValidationError{{Message: "broken", Severity: "error"}},
	}
	reg := engine.NewRegistry(testLogger(), nil)
	if err := parsed.Install(reg); err == nil {
		t.Error("expected install of a broken schema to fail")
	}
}
