package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/openmatter/openmatter/pkg/telemetry"
)

func shapeDefinition() TypeDefinition {
	return TypeDefinition{
		Name: "Shape",
		Kind: KindSum,
		Variants: []VariantSpec{
			{Name: "Circle", Fields: []FieldSpec{{Name: "radius", Tag: FloatTag()}}},
			{Name: "Rect", Fields: []FieldSpec{
				{Name: "w", Tag: FloatTag()},
				{Name: "h", Tag: FloatTag()},
			}},
			{Name: "Empty"},
		},
	}
}

func newTestCompiler(t *testing.T, ep *telemetry.EventPublisher, defs ...TypeDefinition) (*Compiler, *Validator) {
	t.Helper()
	reg := NewRegistry(testLogger(), ep)
	for _, def := range defs {
		if err := reg.Define(def); err != nil {
			t.Fatalf("Define %s failed: %v", def.Name, err)
		}
	}
	return NewCompiler(reg, testLogger(), ep), NewValidator(reg, testLogger(), ep)
}

func describeShape(fields map[string]interface{}) (interface{}, error) {
	return "shape", nil
}

func TestCompileExhaustiveMatch(t *testing.T) {
	c, _ := newTestCompiler(t, nil, shapeDefinition())

	cp, err := c.Compile("Shape", []Clause{
		{Variant: "Circle", Handler: describeShape},
		{Variant: "Rect", Handler: describeShape},
		{Variant: "Empty", Handler: describeShape},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !cp.Exhaustive {
		t.Error("expected pattern to be exhaustive")
	}
}

func TestCompileNamesMissingVariants(t *testing.T) {
	c, _ := newTestCompiler(t, nil, shapeDefinition())

	_, err := c.Compile("Shape", []Clause{
		{Variant: "Circle", Handler: describeShape},
	})
	if err == nil {
		t.Fatal("expected non-exhaustive match to be rejected")
	}
	if CodeOf(err) != CodeNonExhaustiveMatch {
		t.Fatalf("expected code %s, got %s", CodeNonExhaustiveMatch, CodeOf(err))
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected a classified error")
	}
	if !reflect.DeepEqual(e.Missing, []string{"Empty", "Rect"}) {
		t.Errorf("expected missing variants [Empty Rect], got %v", e.Missing)
	}
}

func TestGuardedClauseDoesNotCountTowardExhaustiveness(t *testing.T) {
	c, _ := newTestCompiler(t, nil, shapeDefinition())

	big := func(fields map[string]interface{}) (bool, error) {
		return fields["radius"].(float64) > 1, nil
	}

	_, err := c.Compile("Shape", []Clause{
		{Variant: "Circle", Guard: big, Handler: describeShape},
		{Variant: "Rect", Handler: describeShape},
		{Variant: "Empty", Handler: describeShape},
	})
	if err == nil {
		t.Fatal("expected guarded-only coverage of Circle to be non-exhaustive")
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected a classified error")
	}
	if !reflect.DeepEqual(e.Missing, []string{"Circle"}) {
		t.Errorf("expected missing variants [Circle], got %v", e.Missing)
	}
}

func TestWildcardSatisfiesExhaustiveness(t *testing.T) {
	c, _ := newTestCompiler(t, nil, shapeDefinition())

	cp, err := c.Compile("Shape", []Clause{
		{Variant: "Circle", Handler: describeShape},
		{Wildcard: true, Handler: describeShape},
	})
	if err != nil {
		t.Fatalf("Compile with wildcard failed: %v", err)
	}
	if !cp.Exhaustive {
		t.Error("expected wildcard to make the pattern exhaustive")
	}
}

func TestGuardedWildcardDoesNotSatisfyExhaustiveness(t *testing.T) {
	c, _ := newTestCompiler(t, nil, shapeDefinition())

	always := func(fields map[string]interface{}) (bool, error) { return true, nil }

	_, err := c.Compile("Shape", []Clause{
		{Variant: "Circle", Handler: describeShape},
		{Wildcard: true, Guard: always, Handler: describeShape},
	})
	if err == nil {
		t.Fatal("expected guarded wildcard not to count toward exhaustiveness")
	}
	if CodeOf(err) != CodeNonExhaustiveMatch {
		t.Errorf("expected code %s, got %s", CodeNonExhaustiveMatch, CodeOf(err))
	}
}

func TestCompileRejectsDuplicateUnconditionalClause(t *testing.T) {
	c, _ := newTestCompiler(t, nil, shapeDefinition())

	_, err := c.Compile("Shape", []Clause{
		{Variant: "Circle", Handler: describeShape},
		{Variant: "Circle", Handler: describeShape},
		{Variant: "Rect", Handler: describeShape},
		{Variant: "Empty", Handler: describeShape},
	})
	if err == nil {
		t.Fatal("expected duplicate unconditional clause to be rejected")
	}
	if CodeOf(err) != CodeDuplicateVariant {
		t.Errorf("expected code %s, got %s", CodeDuplicateVariant, CodeOf(err))
	}
}

func TestCompileAllowsGuardedDuplicates(t *testing.T) {
	c, _ := newTestCompiler(t, nil, shapeDefinition())

	big := func(fields map[string]interface{}) (bool, error) {
		return fields["radius"].(float64) > 1, nil
	}

	_, err := c.Compile("Shape", []Clause{
		{Variant: "Circle", Guard: big, Handler: describeShape},
		{Variant: "Circle", Handler: describeShape},
		{Variant: "Rect", Handler: describeShape},
		{Variant: "Empty", Handler: describeShape},
	})
	if err != nil {
		t.Fatalf("guarded duplicate should compile: %v", err)
	}
}

func TestCompileRejectsUnknownVariantClause(t *testing.T) {
	c, _ := newTestCompiler(t, nil, shapeDefinition())

	_, err := c.Compile("Shape", []Clause{
		{Variant: "Triangle", Handler: describeShape},
	})
	if err == nil {
		t.Fatal("expected clause on undeclared variant to be rejected")
	}
	if CodeOf(err) != CodeUnknownVariant {
		t.Errorf("expected code %s, got %s", CodeUnknownVariant, CodeOf(err))
	}
}

func TestCompileRequiresSumType(t *testing.T) {
	c, _ := newTestCompiler(t, nil, pointDefinition())

	_, err := c.Compile("Point", []Clause{{Wildcard: true, Handler: describeShape}})
	if err == nil {
		t.Fatal("expected compiling against a product type to fail")
	}
	if KindOf(err) != ErrorKindCompile {
		t.Errorf("expected compile error, got %v", err)
	}
}

func TestCacheHitSkipsRecompile(t *testing.T) {
	ep := testPublisher(t)
	counter := newEventCounter(ep)
	c, _ := newTestCompiler(t, ep, shapeDefinition())

	clauses := []Clause{
		{Variant: "Circle", Handler: describeShape},
		{Variant: "Rect", Handler: describeShape},
		{Variant: "Empty", Handler: describeShape},
	}

	first, err := c.Compile("Shape", clauses)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	second, err := c.Compile("Shape", clauses)
	if err != nil {
		t.Fatalf("second Compile failed: %v", err)
	}

	if first != second {
		t.Error("expected cache hit to return the shared compiled pattern")
	}
	if c.CacheSize() != 1 {
		t.Errorf("expected 1 cached pattern, got %d", c.CacheSize())
	}
	if counter.counts[telemetry.EventKindPatternCompiled] != 1 {
		t.Errorf("expected 1 pattern.compiled event, got %d", counter.counts[telemetry.EventKindPatternCompiled])
	}
}

func TestDistinctGuardsGetDistinctCacheEntries(t *testing.T) {
	c, _ := newTestCompiler(t, nil, shapeDefinition())

	guardA := func(fields map[string]interface{}) (bool, error) { return true, nil }
	guardB := func(fields map[string]interface{}) (bool, error) { return false, nil }

	base := []Clause{
		{Variant: "Rect", Handler: describeShape},
		{Variant: "Empty", Handler: describeShape},
		{Variant: "Circle", Handler: describeShape},
	}

	if _, err := c.Compile("Shape", append([]Clause{{Variant: "Circle", Guard: guardA, Handler: describeShape}}, base...)); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := c.Compile("Shape", append([]Clause{{Variant: "Circle", Guard: guardB, Handler: describeShape}}, base...)); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if c.CacheSize() != 2 {
		t.Errorf("expected different guards to compile separately, cache size %d", c.CacheSize())
	}
}

func TestDispatchSelectsVariantClause(t *testing.T) {
	c, v := newTestCompiler(t, nil, shapeDefinition())

	cp, err := c.Compile("Shape", []Clause{
		{Variant: "Circle", Handler: func(fields map[string]interface{}) (interface{}, error) {
			return fields["radius"], nil
		}},
		{Wildcard: true, Handler: func(fields map[string]interface{}) (interface{}, error) {
			return "other", nil
		}},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	circle, err := v.ConstructVariant("Shape", "Circle", map[string]interface{}{"radius": 2.5})
	if err != nil {
		t.Fatalf("ConstructVariant failed: %v", err)
	}
	empty, err := v.ConstructVariant("Shape", "Empty", nil)
	if err != nil {
		t.Fatalf("ConstructVariant failed: %v", err)
	}

	got, err := c.Dispatch(cp, circle)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got != 2.5 {
		t.Errorf("expected 2.5, got %v", got)
	}

	got, err = c.Dispatch(cp, empty)
	if err != nil {
		t.Fatalf("Dispatch of wildcard variant failed: %v", err)
	}
	if got != "other" {
		t.Errorf("expected wildcard handler, got %v", got)
	}
}

func TestDispatchEvaluatesGuardsInOrder(t *testing.T) {
	c, v := newTestCompiler(t, nil, shapeDefinition())

	var order []string
	guard := func(name string, pass bool) GuardFunc {
		return func(fields map[string]interface{}) (bool, error) {
			order = append(order, name)
			return pass, nil
		}
	}

	cp, err := c.Compile("Shape", []Clause{
		{Variant: "Circle", Guard: guard("first", false), Handler: describeShape},
		{Variant: "Circle", Guard: guard("second", true), Handler: func(fields map[string]interface{}) (interface{}, error) {
			return "second", nil
		}},
		{Variant: "Circle", Handler: describeShape},
		{Variant: "Rect", Handler: describeShape},
		{Variant: "Empty", Handler: describeShape},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	circle, _ := v.ConstructVariant("Shape", "Circle", map[string]interface{}{"radius": 1.0})
	got, err := c.Dispatch(cp, circle)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got != "second" {
		t.Errorf("expected the second guard's handler, got %v", got)
	}
	if !reflect.DeepEqual(order, []string{"first", "second"}) {
		t.Errorf("guards evaluated out of order: %v", order)
	}
}

func TestDispatchGuardExhaustion(t *testing.T) {
	c, v := newTestCompiler(t, nil, shapeDefinition())

	small := func(fields map[string]interface{}) (bool, error) {
		return fields["radius"].(float64) < 1, nil
	}

	// A table whose only path for the variant is guarded cannot come out of
	// Compile, so build it directly: this is the dispatcher's recoverable
	// guard-exhaustion path.
	cp := &CompiledPattern{
		Type: "Shape",
		table: map[string][]compiledClause{
			"Circle": {{guard: small, handler: describeShape}},
		},
	}

	circle, _ := v.ConstructVariant("Shape", "Circle", map[string]interface{}{"radius": 5.0})
	_, err := c.Dispatch(cp, circle)
	if err == nil {
		t.Fatal("expected guard exhaustion")
	}
	if CodeOf(err) != CodeGuardExhaustion {
		t.Errorf("expected code %s, got %s", CodeGuardExhaustion, CodeOf(err))
	}
	if KindOf(err) != ErrorKindDispatch {
		t.Errorf("expected dispatch error, got %v", err)
	}
}

func TestDispatchRejectsTypeMismatch(t *testing.T) {
	c, v := newTestCompiler(t, nil, shapeDefinition(), optionDefinition())

	cp, err := c.Compile("Shape", []Clause{{Wildcard: true, Handler: describeShape}})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	some, _ := v.ConstructVariant("Option", "Some", map[string]interface{}{"value": 1})
	_, err = c.Dispatch(cp, some)
	if err == nil {
		t.Fatal("expected type mismatch")
	}
	if CodeOf(err) != CodeTypeMismatch {
		t.Errorf("expected code %s, got %s", CodeTypeMismatch, CodeOf(err))
	}
}

func TestDispatchPropagatesGuardError(t *testing.T) {
	c, v := newTestCompiler(t, nil, shapeDefinition())

	boom := errors.New("guard blew up")
	failing := func(fields map[string]interface{}) (bool, error) { return false, boom }

	cp, err := c.Compile("Shape", []Clause{
		{Variant: "Circle", Guard: failing, Handler: describeShape},
		{Variant: "Circle", Handler: describeShape},
		{Variant: "Rect", Handler: describeShape},
		{Variant: "Empty", Handler: describeShape},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	circle, _ := v.ConstructVariant("Shape", "Circle", map[string]interface{}{"radius": 1.0})
	_, err = c.Dispatch(cp, circle)
	if err == nil {
		t.Fatal("expected guard failure to surface")
	}
	if CodeOf(err) != CodeGuardFailed {
		t.Errorf("expected code %s, got %s", CodeGuardFailed, CodeOf(err))
	}
	if !errors.Is(err, boom) {
		t.Error("expected the guard's error to be wrapped")
	}
}

func TestDispatchEmitsEvent(t *testing.T) {
	ep := testPublisher(t)
	counter := newEventCounter(ep)
	c, v := newTestCompiler(t, ep, shapeDefinition())

	cp, err := c.Compile("Shape", []Clause{{Wildcard: true, Handler: describeShape}})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	empty, _ := v.ConstructVariant("Shape", "Empty", nil)
	if _, err := c.Dispatch(cp, empty); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if counter.counts[telemetry.EventKindPatternDispatched] != 1 {
		t.Errorf("expected 1 pattern.dispatched event, got %d", counter.counts[telemetry.EventKindPatternDispatched])
	}
}
