package engine

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmatter/openmatter/pkg/telemetry"
)

// GuardFunc refines a clause at the value level. It receives the variant's
// field values and reports whether the clause applies.
type GuardFunc func(fields map[string]interface{}) (bool, error)

// HandlerFunc is the body of a clause, run with the variant's fields bound.
type HandlerFunc func(fields map[string]interface{}) (interface{}, error)

// Clause is one (variant pattern, optional guard, handler) entry of a match
// block. A wildcard clause matches any variant not covered elsewhere.
type Clause struct {
	// Variant names the matched variant. Ignored for wildcard clauses.
	Variant string

	// Guard optionally refines the match. A guarded clause never counts
	// toward exhaustiveness by itself.
	Guard GuardFunc

	// Handler runs when the clause is selected.
	Handler HandlerFunc

	// Wildcard marks a clause that matches any remaining variant.
	Wildcard bool
}

// compiledClause is one dispatchable entry of a decision table.
type compiledClause struct {
	guard   GuardFunc
	handler HandlerFunc
}

// CompiledPattern is a directly-dispatchable decision table for one match
// block: per-variant clause lists in declaration order plus a wildcard
// fallback slot. Compiled patterns are cached for the process lifetime and
// shared across call sites with the same clause signature.
type CompiledPattern struct {
	// Type is the sum type the pattern was compiled against.
	Type string

	// Signature is the cache key derived from the clause shape.
	Signature string

	// Exhaustive reports whether every variant is covered unconditionally
	// (directly or through a wildcard).
	Exhaustive bool

	table     map[string][]compiledClause
	wildcards []compiledClause
}

// Compiler turns match clauses into cached decision tables and verifies
// exhaustiveness against the registry. It is safe for concurrent use; cache
// insertion is serialized so a reader never observes a half-built table.
type Compiler struct {
	reg    *Registry
	logger zerolog.Logger
	events *telemetry.EventPublisher

	mu    sync.RWMutex
	cache map[string]*CompiledPattern
}

// NewCompiler creates a pattern compiler over the given registry.
func NewCompiler(reg *Registry, logger zerolog.Logger, events *telemetry.EventPublisher) *Compiler {
	return &Compiler{
		reg:    reg,
		logger: logger.With().Str("component", "compiler").Logger(),
		events: events,
		cache:  make(map[string]*CompiledPattern),
	}
}

// Compile builds a decision table for the given clauses over a sum type.
//
// Exhaustiveness: every declared variant must appear in at least one
// guard-free clause, or a guard-free wildcard must be present; otherwise
// compilation fails naming exactly the missing variants. Guarded clauses for
// the same variant are kept in declaration order; duplicate guard-free
// clauses for one variant are ambiguous and refused.
//
// The result is cached per distinct clause signature. A cache hit returns
// the shared table without re-running the exhaustiveness analysis and
// without emitting a pattern.compiled event.
func (c *Compiler) Compile(typeName string, clauses []Clause) (*CompiledPattern, error) {
	signature := clauseSignature(typeName, clauses)

	c.mu.RLock()
	cached, ok := c.cache[signature]
	c.mu.RUnlock()
	if ok {
		c.logger.Debug().
			Str("type_name", typeName).
			Str("clause_signature", signature).
			Msg("Pattern cache hit")
		return cached, nil
	}

	start := time.Now()

	def, err := c.reg.Lookup(typeName)
	if err != nil {
		return nil, NewCompileError("cannot compile against unregistered type").
			WithType(typeName).
			WithCode(CodeNotFound).
			WithErr(err)
	}
	if def.Kind != KindSum {
		return nil, NewCompileError("pattern matching requires a sum type").
			WithType(typeName).
			WithCode(CodeNotASumType)
	}

	cp := &CompiledPattern{
		Type:      typeName,
		Signature: signature,
		table:     make(map[string][]compiledClause),
	}

	unconditional := make(map[string]bool, len(def.Variants))
	wildcardUnconditional := false

	for _, clause := range clauses {
		if clause.Handler == nil {
			return nil, NewCompileError("clause has no handler").
				WithType(typeName).
				WithVariant(clause.Variant)
		}

		if clause.Wildcard {
			if clause.Guard == nil {
				if wildcardUnconditional {
					return nil, NewCompileError("duplicate unconditional wildcard clause").
						WithType(typeName).
						WithCode(CodeDuplicateVariant)
				}
				wildcardUnconditional = true
			}
			cp.wildcards = append(cp.wildcards, compiledClause{guard: clause.Guard, handler: clause.Handler})
			continue
		}

		if _, ok := def.Variant(clause.Variant); !ok {
			return nil, NewCompileError("clause names an undeclared variant").
				WithType(typeName).
				WithVariant(clause.Variant).
				WithCode(CodeUnknownVariant)
		}

		if clause.Guard == nil {
			if unconditional[clause.Variant] {
				return nil, NewCompileError("duplicate unconditional clause for variant").
					WithType(typeName).
					WithVariant(clause.Variant).
					WithCode(CodeDuplicateVariant)
			}
			unconditional[clause.Variant] = true
		}

		cp.table[clause.Variant] = append(cp.table[clause.Variant], compiledClause{
			guard:   clause.Guard,
			handler: clause.Handler,
		})
	}

	var missing []string
	for _, v := range def.Variants {
		if !unconditional[v.Name] {
			missing = append(missing, v.Name)
		}
	}
	sort.Strings(missing)

	if len(missing) > 0 && !wildcardUnconditional {
		return nil, NewCompileError("match block does not cover every variant").
			WithType(typeName).
			WithCode(CodeNonExhaustiveMatch).
			WithMissing(missing)
	}
	cp.Exhaustive = true

	c.mu.Lock()
	// A racing compile of the same signature may have won; reuse its table
	// so call sites share one compiled pattern.
	if winner, ok := c.cache[signature]; ok {
		c.mu.Unlock()
		return winner, nil
	}
	c.cache[signature] = cp
	c.mu.Unlock()

	duration := time.Since(start)
	c.logger.Debug().
		Str("type_name", typeName).
		Str("clause_signature", signature).
		Bool("exhaustive", cp.Exhaustive).
		Dur("duration", duration).
		Msg("Pattern compiled")

	_ = c.events.PublishPatternCompiled(typeName, signature, duration, cp.Exhaustive)
	return cp, nil
}

// CacheSize returns the number of compiled patterns currently cached.
func (c *Compiler) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// clauseSignature derives the cache key from the type name and the ordered
// clause shape. Guards are fingerprinted by function identity, so two call
// sites sharing clause order, variants, and guard functions share one
// compiled table.
func clauseSignature(typeName string, clauses []Clause) string {
	var b strings.Builder
	b.WriteString(typeName)
	for _, clause := range clauses {
		b.WriteByte('|')
		if clause.Wildcard {
			b.WriteByte('_')
		} else {
			b.WriteString(clause.Variant)
		}
		if clause.Guard != nil {
			fmt.Fprintf(&b, "?%x", reflect.ValueOf(clause.Guard).Pointer())
		}
		if clause.Handler != nil {
			fmt.Fprintf(&b, "->%x", reflect.ValueOf(clause.Handler).Pointer())
		}
	}
	return b.String()
}
