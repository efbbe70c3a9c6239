package engine

import (
	"time"
)

// Dispatch executes a compiled decision table against an instance: it looks
// up the instance's variant, evaluates that variant's guards in declaration
// order, and runs the first matching handler with the variant's fields
// bound.
//
// Guards are a value-level refinement the compiler cannot verify statically:
// if every guarded clause for the variant misses and no unconditional clause
// or wildcard applies, the result is a guard-exhaustion dispatch error even
// though the compiler considered the match exhaustive. That case is
// recoverable and surfaced to the caller.
func (c *Compiler) Dispatch(cp *CompiledPattern, inst *Instance) (interface{}, error) {
	start := time.Now()

	if inst.Type != cp.Type {
		return nil, NewDispatchError("instance type does not match compiled pattern").
			WithType(cp.Type).
			WithVariant(inst.Variant).
			WithCode(CodeTypeMismatch)
	}

	fields := inst.Fields()

	for _, clause := range cp.table[inst.Variant] {
		selected, err := evalGuard(clause, fields)
		if err != nil {
			return nil, NewDispatchError("guard evaluation failed").
				WithType(cp.Type).
				WithVariant(inst.Variant).
				WithCode(CodeGuardFailed).
				WithErr(err)
		}
		if !selected {
			continue
		}
		return c.runHandler(cp, inst, clause, fields, start)
	}

	for _, clause := range cp.wildcards {
		selected, err := evalGuard(clause, fields)
		if err != nil {
			return nil, NewDispatchError("guard evaluation failed").
				WithType(cp.Type).
				WithVariant(inst.Variant).
				WithCode(CodeGuardFailed).
				WithErr(err)
		}
		if !selected {
			continue
		}
		return c.runHandler(cp, inst, clause, fields, start)
	}

	return nil, NewDispatchError("no clause matched: every guard for the variant declined").
		WithType(cp.Type).
		WithVariant(inst.Variant).
		WithCode(CodeGuardExhaustion)
}

// evalGuard runs a clause's guard, treating a missing guard as a match.
func evalGuard(clause compiledClause, fields map[string]interface{}) (bool, error) {
	if clause.guard == nil {
		return true, nil
	}
	return clause.guard(fields)
}

// runHandler executes the selected handler and publishes the dispatch event.
func (c *Compiler) runHandler(cp *CompiledPattern, inst *Instance, clause compiledClause, fields map[string]interface{}, start time.Time) (interface{}, error) {
	result, err := clause.handler(fields)
	if err != nil {
		return nil, err
	}

	duration := time.Since(start)
	c.logger.Trace().
		Str("type_name", cp.Type).
		Str("variant", inst.Variant).
		Dur("duration", duration).
		Msg("Pattern dispatched")

	_ = c.events.PublishPatternDispatched(cp.Type, inst.Variant, duration)
	return result, nil
}
