package engine

import (
	"github.com/rs/zerolog"

	"github.com/openmatter/openmatter/pkg/telemetry"
)

// PredicateFunc decides whether a synthesis rule applies to an input value.
type PredicateFunc func(input interface{}) (bool, error)

// BuildFunc derives the field values for a rule's target variant from the
// input value.
type BuildFunc func(input interface{}) (map[string]interface{}, error)

// Rule maps a class of inputs onto one variant of a sum type.
type Rule struct {
	// Name identifies the rule in logs and errors.
	Name string

	// Variant is the target variant the rule builds.
	Variant string

	// Predicate decides whether the rule applies.
	Predicate PredicateFunc

	// Build derives the variant's field values from the input.
	Build BuildFunc
}

// Synthesizer builds sum-type instances from arbitrary input values through
// ordered predicate/builder rules. It is the pattern compiler in reverse:
// dispatch selects a handler from a variant, synthesis selects a variant
// from an input.
type Synthesizer struct {
	validator *Validator
	logger    zerolog.Logger
	events    *telemetry.EventPublisher
}

// NewSynthesizer creates a synthesizer constructing through the given
// validator.
func NewSynthesizer(validator *Validator, logger zerolog.Logger, events *telemetry.EventPublisher) *Synthesizer {
	return &Synthesizer{
		validator: validator,
		logger:    logger.With().Str("component", "synthesizer").Logger(),
		events:    events,
	}
}

// Synthesize evaluates rules in order; the first rule whose predicate
// accepts the input builds field values that are fed into variant
// construction. Synthesis is not required to be exhaustive over the input
// domain, only over declared variants once a rule matches: an input no rule
// accepts is a synthesis error.
func (s *Synthesizer) Synthesize(typeName string, input interface{}, rules []Rule) (*Instance, error) {
	for _, rule := range rules {
		if rule.Predicate == nil || rule.Build == nil {
			return nil, NewSynthesisError("rule is missing a predicate or builder").
				WithType(typeName).
				WithVariant(rule.Variant)
		}

		accepted, err := rule.Predicate(input)
		if err != nil {
			return nil, NewSynthesisError("rule predicate failed").
				WithType(typeName).
				WithVariant(rule.Variant).
				WithErr(err)
		}
		if !accepted {
			continue
		}

		fields, err := rule.Build(input)
		if err != nil {
			return nil, NewSynthesisError("rule builder failed").
				WithType(typeName).
				WithVariant(rule.Variant).
				WithErr(err)
		}

		s.logger.Trace().
			Str("type_name", typeName).
			Str("variant", rule.Variant).
			Str("rule", rule.Name).
			Msg("Synthesis rule matched")

		return s.validator.ConstructVariant(typeName, rule.Variant, fields)
	}

	return nil, NewSynthesisError("no rule matched the input").
		WithType(typeName).
		WithCode(CodeNoMatchingRule)
}
