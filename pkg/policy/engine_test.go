package policy

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openmatter/openmatter/pkg/engine"
	"github.com/openmatter/openmatter/pkg/telemetry"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(testLogger(), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func wellFormedOption() engine.TypeDefinition {
	return engine.TypeDefinition{
		Name: "Option",
		Kind: engine.KindSum,
		Variants: []engine.VariantSpec{
			{Name: "Some", Fields: []engine.FieldSpec{{Name: "value", Tag: engine.IntTag()}}},
			{Name: "None"},
		},
	}
}

func TestLintAcceptsWellFormedDefinition(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Lint(context.Background(), wellFormedOption())
	if err != nil {
		t.Fatalf("Lint failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected definition to pass, violations: %v", result.Violations)
	}
}

func TestLintRejectsBadTypeName(t *testing.T) {
	e := newTestEngine(t)

	def := engine.TypeDefinition{
		Name:   "bad_name",
		Kind:   engine.KindProduct,
		Fields: []engine.FieldSpec{{Name: "x", Tag: engine.IntTag()}},
	}

	result, err := e.Lint(context.Background(), def)
	if err != nil {
		t.Fatalf("Lint failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected lowercase type name to be rejected")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "type-naming" && v.Type == "bad_name" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a type-naming violation, got %v", result.Violations)
	}
}

func TestLintRejectsBadFieldName(t *testing.T) {
	e := newTestEngine(t)

	def := engine.TypeDefinition{
		Name: "Point",
		Kind: engine.KindProduct,
		Fields: []engine.FieldSpec{
			{Name: "X_Coord", Tag: engine.IntTag()},
		},
	}

	result, err := e.Lint(context.Background(), def)
	if err != nil {
		t.Fatalf("Lint failed: %v", err)
	}
	if result.Allowed {
		t.Error("expected non-lowerCamelCase field name to be rejected")
	}
}

func TestLintRejectsEmptySum(t *testing.T) {
	e := newTestEngine(t)

	def := engine.TypeDefinition{Name: "Void", Kind: engine.KindSum}

	result, err := e.Lint(context.Background(), def)
	if err != nil {
		t.Fatalf("Lint failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected variant-less sum to be rejected")
	}
}

func TestLintWarnsOnRecursiveSumWithoutBase(t *testing.T) {
	e := newTestEngine(t)

	def := engine.TypeDefinition{
		Name: "Stream",
		Kind: engine.KindSum,
		Variants: []engine.VariantSpec{
			{Name: "Cons", Fields: []engine.FieldSpec{
				{Name: "head", Tag: engine.IntTag()},
				{Name: "tail", Tag: engine.SelfTag()},
			}},
		},
	}

	result, err := e.Lint(context.Background(), def)
	if err != nil {
		t.Fatalf("Lint failed: %v", err)
	}

	// A warning is reported but does not block.
	if !result.Allowed {
		t.Errorf("warnings should not block, violations: %v", result.Violations)
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "recursion-base" && v.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a recursion-base warning, got %v", result.Violations)
	}
}

func TestLintRecursiveSumWithBasePasses(t *testing.T) {
	e := newTestEngine(t)

	def := engine.TypeDefinition{
		Name: "List",
		Kind: engine.KindSum,
		Variants: []engine.VariantSpec{
			{Name: "Cons", Fields: []engine.FieldSpec{
				{Name: "head", Tag: engine.IntTag()},
				{Name: "tail", Tag: engine.SelfTag()},
			}},
			{Name: "Nil"},
		},
	}

	result, err := e.Lint(context.Background(), def)
	if err != nil {
		t.Fatalf("Lint failed: %v", err)
	}
	if len(result.Violations) != 0 {
		t.Errorf("expected no violations, got %v", result.Violations)
	}
}

func TestLintAndDefine(t *testing.T) {
	e := newTestEngine(t)
	reg := engine.NewRegistry(testLogger(), nil)

	if _, err := e.LintAndDefine(context.Background(), reg, wellFormedOption()); err != nil {
		t.Fatalf("LintAndDefine failed: %v", err)
	}
	if _, err := reg.Lookup("Option"); err != nil {
		t.Errorf("Option not installed: %v", err)
	}

	bad := engine.TypeDefinition{
		Name:   "bad",
		Kind:   engine.KindProduct,
		Fields: []engine.FieldSpec{{Name: "x", Tag: engine.IntTag()}},
	}
	if _, err := e.LintAndDefine(context.Background(), reg, bad); err == nil {
		t.Fatal("expected failing lint to block Define")
	}
	if _, err := reg.Lookup("bad"); err == nil {
		t.Error("rejected definition must not be installed")
	}
}

func TestLintPublishesViolationEvents(t *testing.T) {
	ep, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}
	var count int
	ep.Subscribe(func(e telemetry.Event) { count++ },
		telemetry.KindFilter(telemetry.EventKindPolicyViolation))

	e, err := NewEngine(testLogger(), ep)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	def := engine.TypeDefinition{Name: "Void", Kind: engine.KindSum}
	if _, err := e.Lint(context.Background(), def); err != nil {
		t.Fatalf("Lint failed: %v", err)
	}

	if count == 0 {
		t.Error("expected policy.violation events to be published")
	}
}

func TestDisablePolicy(t *testing.T) {
	e := newTestEngine(t)

	if err := e.DisablePolicy("sum-shape"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}

	def := engine.TypeDefinition{Name: "Void", Kind: engine.KindSum}
	result, err := e.Lint(context.Background(), def)
	if err != nil {
		t.Fatalf("Lint failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("disabled policy should not fire, violations: %v", result.Violations)
	}

	if err := e.EnablePolicy("sum-shape"); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	result, _ = e.Lint(context.Background(), def)
	if result.Allowed {
		t.Error("re-enabled policy should fire again")
	}
}

func TestGetAndListPolicies(t *testing.T) {
	e := newTestEngine(t)

	if len(e.ListPolicies()) != 5 {
		t.Errorf("expected 5 built-in policies, got %d", len(e.ListPolicies()))
	}
	if _, err := e.GetPolicy("type-naming"); err != nil {
		t.Errorf("GetPolicy failed: %v", err)
	}
	if _, err := e.GetPolicy("missing"); err == nil {
		t.Error("expected unknown policy lookup to fail")
	}
}

func TestLintWarnsOnOversizedFieldSet(t *testing.T) {
	e := newTestEngine(t)

	fields := make([]engine.FieldSpec, 33)
	for i := range fields {
		fields[i] = engine.FieldSpec{Name: fmt.Sprintf("f%d", i), Tag: engine.IntTag()}
	}
	def := engine.TypeDefinition{Name: "Wide", Kind: engine.KindProduct, Fields: fields}

	result, err := e.Lint(context.Background(), def)
	if err != nil {
		t.Fatalf("Lint failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("field-count is a warning, expected allowed, violations: %v", result.Violations)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "field-count" && v.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a field-count warning, got %v", result.Violations)
	}
}

func TestLintRejectsReservedFieldName(t *testing.T) {
	e := newTestEngine(t)

	def := engine.TypeDefinition{
		Name: "Envelope",
		Kind: engine.KindProduct,
		Fields: []engine.FieldSpec{
			{Name: "type", Tag: engine.StringTag()},
			{Name: "payload", Tag: engine.StringTag()},
		},
	}

	result, err := e.Lint(context.Background(), def)
	if err != nil {
		t.Fatalf("Lint failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected reserved field name to be rejected")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "reserved-names" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a reserved-names violation, got %v", result.Violations)
	}
}
