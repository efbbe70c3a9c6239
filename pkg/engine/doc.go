// Package engine implements the core of the OpenMatter algebraic-data-type
// system: a live type registry, instance validation, pattern compilation
// with exhaustiveness analysis, dispatch, synthesis, and the eager/lazy
// recursion cell model.
//
// # Overview
//
// Callers declare product types (fixed sets of named, typed fields) and sum
// types (closed sets of mutually exclusive variants), construct validated
// instances of them, pattern-match over sum types with enforced
// exhaustiveness, and model recursive occurrences of a type either eagerly
// or lazily.
//
// Data flows through the components in one direction:
//
//  1. Registry - declarations populate the registry (Define/Lookup)
//  2. Validator - construction checks field values against registry entries
//  3. Cell - recursive fields are wrapped in eager or lazy recursion cells
//  4. Compiler - match clauses become cached, exhaustiveness-checked
//     decision tables
//  5. Dispatch - compiled tables select a handler for an instance
//  6. Synthesizer - ordered predicate/builder rules map arbitrary inputs
//     onto variants
//
// Every step publishes events to a telemetry.EventPublisher; that event
// surface plus the plain Registry/Validator/Compiler calls is the only
// integration point external collaborators get.
//
// # Concurrency
//
// The engine is safe for concurrent callers operating on independent
// instances. Registry writes and pattern-cache insertion are serialized
// behind RW mutexes; forcing a lazy cell is serialized per cell so a
// concurrent first-force runs the computation exactly once. No operation
// performs I/O, and no cancellation primitive exists inside the core: a
// long-running lazy computation runs to completion or failure.
//
// # Errors
//
// All failures are classified *Error values: malformed definitions fail at
// Define, bad instance data at construction, bad match blocks at compile
// time, guard exhaustion at dispatch, and failed lazy computations at
// Force. Construction- and compile-time errors always surface to the
// immediate caller; the engine performs no retries itself.
package engine
