package engine

import (
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmatter/openmatter/pkg/telemetry"
)

// Validator checks proposed instance data against registry entries and
// constructs validated instances. It is safe for concurrent use.
type Validator struct {
	reg    *Registry
	logger zerolog.Logger
	events *telemetry.EventPublisher
}

// NewValidator creates a validator over the given registry.
func NewValidator(reg *Registry, logger zerolog.Logger, events *telemetry.EventPublisher) *Validator {
	return &Validator{
		reg:    reg,
		logger: logger.With().Str("component", "validator").Logger(),
		events: events,
	}
}

// ConstructProduct builds an instance of a product type from the given field
// values. Every declared field must be present with a value satisfying its
// tag; unknown keys are rejected rather than silently dropped.
func (v *Validator) ConstructProduct(typeName string, fieldValues map[string]interface{}) (*Instance, error) {
	start := time.Now()

	def, err := v.reg.Lookup(typeName)
	if err != nil {
		v.failed(typeName, err)
		return nil, err
	}
	if def.Kind != KindProduct {
		err := NewValidationError("type is not a product type").
			WithType(typeName).
			WithCode(CodeNotAProductType)
		v.failed(typeName, err)
		return nil, err
	}

	fields, err := v.checkFields(typeName, def.Fields, fieldValues)
	if err != nil {
		v.failed(typeName, err)
		return nil, err
	}

	inst := &Instance{Type: typeName, fields: fields}
	_ = v.events.PublishInstanceConstructed(typeName, "", time.Since(start))
	return inst, nil
}

// ConstructVariant builds an instance of one variant of a sum type. The
// contract matches ConstructProduct, scoped to the variant's field set.
func (v *Validator) ConstructVariant(typeName, variantName string, fieldValues map[string]interface{}) (*Instance, error) {
	start := time.Now()

	def, err := v.reg.Lookup(typeName)
	if err != nil {
		v.failed(typeName, err)
		return nil, err
	}
	if def.Kind != KindSum {
		err := NewValidationError("type is not a sum type").
			WithType(typeName).
			WithCode(CodeNotASumType)
		v.failed(typeName, err)
		return nil, err
	}

	variant, ok := def.Variant(variantName)
	if !ok {
		err := NewValidationError("unknown variant").
			WithType(typeName).
			WithVariant(variantName).
			WithCode(CodeUnknownVariant)
		v.failed(typeName, err)
		return nil, err
	}

	fields, err := v.checkFields(typeName, variant.Fields, fieldValues)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Variant = variantName
		}
		v.failed(typeName, err)
		return nil, err
	}

	inst := &Instance{Type: typeName, Variant: variantName, fields: fields}
	_ = v.events.PublishInstanceConstructed(typeName, variantName, time.Since(start))
	return inst, nil
}

// failed logs and publishes a validation failure.
func (v *Validator) failed(typeName string, err error) {
	v.logger.Debug().Err(err).Str("type_name", typeName).Msg("Validation failed")
	_ = v.events.PublishValidationFailed(typeName, CodeOf(err))
}

// checkFields validates a proposed field map against one declared field set
// and returns the instance's field map.
func (v *Validator) checkFields(typeName string, declared []FieldSpec, values map[string]interface{}) (map[string]interface{}, error) {
	declaredNames := make(map[string]bool, len(declared))
	out := make(map[string]interface{}, len(declared))

	for _, spec := range declared {
		declaredNames[spec.Name] = true

		val, present := values[spec.Name]
		if !present {
			return nil, NewValidationError("missing declared field").
				WithType(typeName).
				WithField(spec.Name).
				WithCode(CodeMissingField)
		}

		if err := v.checkValue(typeName, spec.Tag, val); err != nil {
			if e, ok := err.(*Error); ok && e.Field == "" {
				e.Field = spec.Name
			}
			return nil, err
		}
		out[spec.Name] = val
	}

	// Extra keys are rejected so typos never pass silently.
	for name := range values {
		if !declaredNames[name] {
			return nil, NewValidationError("unknown field").
				WithType(typeName).
				WithField(name).
				WithCode(CodeUnknownField)
		}
	}

	return out, nil
}

// checkValue structurally checks one runtime value against a declared tag.
// Checking is structural, not nominal coercion: no numeric widening, no
// string-to-number conversion.
func (v *Validator) checkValue(typeName string, tag TypeTag, val interface{}) error {
	switch tag.Kind {
	case TagString:
		if _, ok := val.(string); !ok {
			return v.mismatch(typeName, tag, val)
		}
		return nil

	case TagInt:
		switch val.(type) {
		case int, int8, int16, int32, int64:
			return nil
		}
		return v.mismatch(typeName, tag, val)

	case TagFloat:
		switch val.(type) {
		case float32, float64:
			return nil
		}
		return v.mismatch(typeName, tag, val)

	case TagBool:
		if _, ok := val.(bool); !ok {
			return v.mismatch(typeName, tag, val)
		}
		return nil

	case TagRef:
		inst, ok := val.(*Instance)
		if !ok || inst.Type != tag.Ref {
			return v.mismatch(typeName, tag, val)
		}
		return nil

	case TagSelf:
		cell, ok := val.(*Cell)
		if !ok {
			return v.mismatch(typeName, tag, val)
		}
		// An already-computed cell is checked now; a pending lazy cell is
		// deferred, since forcing it at construction would defeat laziness.
		if inner, forced := cell.Peek(); forced {
			innerInst, ok := inner.(*Instance)
			if !ok || innerInst.Type != typeName {
				return v.mismatch(typeName, tag, inner)
			}
		}
		return nil

	case TagSeq:
		rv := reflect.ValueOf(val)
		if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return v.mismatch(typeName, tag, val)
		}
		for i := 0; i < rv.Len(); i++ {
			if err := v.checkValue(typeName, *tag.Elem, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil

	case TagMap:
		rv := reflect.ValueOf(val)
		if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return v.mismatch(typeName, tag, val)
		}
		iter := rv.MapRange()
		for iter.Next() {
			if err := v.checkValue(typeName, *tag.Value, iter.Value().Interface()); err != nil {
				return err
			}
		}
		return nil

	default:
		return NewValidationError(fmt.Sprintf("unknown tag kind %q", tag.Kind)).
			WithType(typeName)
	}
}

// mismatch builds the type-mismatch error for one value.
func (v *Validator) mismatch(typeName string, tag TypeTag, val interface{}) error {
	return NewValidationError(fmt.Sprintf("value %T does not satisfy tag %s", val, tag)).
		WithType(typeName).
		WithCode(CodeTypeMismatch)
}
