package config

import (
	"testing"
	"time"
)

func TestCompileGuard(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	guard, err := se.CompileGuard(`
def guard(fields):
    return fields["radius"] > 1.0
`)
	if err != nil {
		t.Fatalf("CompileGuard failed: %v", err)
	}

	ok, err := guard(map[string]interface{}{"radius": 2.5})
	if err != nil {
		t.Fatalf("guard call failed: %v", err)
	}
	if !ok {
		t.Error("expected guard to accept radius 2.5")
	}

	ok, err = guard(map[string]interface{}{"radius": 0.5})
	if err != nil {
		t.Fatalf("guard call failed: %v", err)
	}
	if ok {
		t.Error("expected guard to reject radius 0.5")
	}
}

func TestCompileGuardRejectsNonBool(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	guard, err := se.CompileGuard(`
def guard(fields):
    return "yes"
`)
	if err != nil {
		t.Fatalf("CompileGuard failed: %v", err)
	}

	if _, err := guard(nil); err == nil {
		t.Error("expected a non-bool guard result to fail")
	}
}

func TestCompileGuardMissingFunction(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	if _, err := se.CompileGuard(`x = 1`); err == nil {
		t.Error("expected a script without guard() to fail compilation")
	}
}

func TestCompileGuardSyntaxError(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	if _, err := se.CompileGuard(`def guard(fields`); err == nil {
		t.Error("expected a syntax error to fail compilation")
	}
}

func TestCompilePredicate(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	accept, err := se.CompilePredicate(`
def accept(input):
    return type(input) == "int"
`)
	if err != nil {
		t.Fatalf("CompilePredicate failed: %v", err)
	}

	ok, err := accept(42)
	if err != nil {
		t.Fatalf("predicate call failed: %v", err)
	}
	if !ok {
		t.Error("expected predicate to accept an int")
	}

	ok, err = accept("hello")
	if err != nil {
		t.Fatalf("predicate call failed: %v", err)
	}
	if ok {
		t.Error("expected predicate to reject a string")
	}
}

func TestCompileBuilder(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	build, err := se.CompileBuilder(`
def build(input):
    return {"value": input * 2}
`)
	if err != nil {
		t.Fatalf("CompileBuilder failed: %v", err)
	}

	fields, err := build(21)
	if err != nil {
		t.Fatalf("builder call failed: %v", err)
	}
	if fields["value"] != int64(42) {
		t.Errorf("expected value 42, got %v (%T)", fields["value"], fields["value"])
	}
}

func TestCompileBuilderRejectsNonDict(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	build, err := se.CompileBuilder(`
def build(input):
    return [1, 2, 3]
`)
	if err != nil {
		t.Fatalf("CompileBuilder failed: %v", err)
	}

	if _, err := build(0); err == nil {
		t.Error("expected a non-dict build result to fail")
	}
}

func TestStarlarkBuiltins(t *testing.T) {
	se := NewStarlarkEvaluator(5 * time.Second)

	build, err := se.CompileBuilder(`
def build(input):
    pairs = {}
    for i, x in enumerate(["a", "b", "c"]):
        pairs[x] = i
    return {"pairs": pairs, "total": len(range(input))}
`)
	if err != nil {
		t.Fatalf("CompileBuilder failed: %v", err)
	}

	fields, err := build(4)
	if err != nil {
		t.Fatalf("builder call failed: %v", err)
	}
	if fields["total"] != int64(4) {
		t.Errorf("expected total 4, got %v", fields["total"])
	}
	pairs := fields["pairs"].(map[string]interface{})
	if pairs["b"] != int64(1) {
		t.Errorf("expected pairs[b] = 1, got %v", pairs["b"])
	}
}

func TestStarlarkTimeout(t *testing.T) {
	se := NewStarlarkEvaluator(100 * time.Millisecond)

	guard, err := se.CompileGuard(`
def guard(fields):
    n = 0
    for i in range(10000):
        for j in range(10000):
            n += j
    return True
`)
	if err != nil {
		t.Fatalf("CompileGuard failed: %v", err)
	}

	if _, err := guard(nil); err == nil {
		t.Error("expected a runaway guard to be cancelled")
	}
}
