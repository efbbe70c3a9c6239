package engine

import (
	"fmt"
)

// Kind discriminates product from sum type definitions.
type Kind string

const (
	// KindProduct is a fixed-shape record with named, typed fields.
	KindProduct Kind = "product"

	// KindSum is a closed set of mutually exclusive variants.
	KindSum Kind = "sum"
)

// TagKind enumerates the closed set of type tags a field can declare.
type TagKind string

const (
	// TagString accepts Go strings.
	TagString TagKind = "string"

	// TagInt accepts Go signed integers. No widening from floats.
	TagInt TagKind = "int"

	// TagFloat accepts Go floats. No coercion from integers.
	TagFloat TagKind = "float"

	// TagBool accepts Go bools.
	TagBool TagKind = "bool"

	// TagRef accepts an Instance of the named type.
	TagRef TagKind = "ref"

	// TagSeq accepts a slice whose elements satisfy Elem.
	TagSeq TagKind = "seq"

	// TagMap accepts a string-keyed map whose values satisfy Value.
	TagMap TagKind = "map"

	// TagSelf accepts a RecursionCell holding an occurrence of the
	// enclosing type. This is the engine's only support for unbounded
	// recursive data.
	TagSelf TagKind = "self"
)

// TypeTag describes the declared type of a field. It is a small closed
// algebra: scalars, references to registered types, sequences, string-keyed
// mappings, and recursive self-references.
type TypeTag struct {
	// Kind selects the tag variant.
	Kind TagKind `json:"kind"`

	// Ref names the referenced type for TagRef.
	Ref string `json:"ref,omitempty"`

	// Elem is the element tag for TagSeq.
	Elem *TypeTag `json:"elem,omitempty"`

	// Value is the value tag for TagMap.
	Value *TypeTag `json:"value,omitempty"`
}

// StringTag returns the scalar string tag.
func StringTag() TypeTag { return TypeTag{Kind: TagString} }

// IntTag returns the scalar int tag.
func IntTag() TypeTag { return TypeTag{Kind: TagInt} }

// FloatTag returns the scalar float tag.
func FloatTag() TypeTag { return TypeTag{Kind: TagFloat} }

// BoolTag returns the scalar bool tag.
func BoolTag() TypeTag { return TypeTag{Kind: TagBool} }

// RefTag returns a tag referencing another registered type.
func RefTag(name string) TypeTag { return TypeTag{Kind: TagRef, Ref: name} }

// SeqTag returns a sequence tag over the given element tag.
func SeqTag(elem TypeTag) TypeTag { return TypeTag{Kind: TagSeq, Elem: &elem} }

// MapTag returns a string-keyed mapping tag over the given value tag.
func MapTag(value TypeTag) TypeTag { return TypeTag{Kind: TagMap, Value: &value} }

// SelfTag returns a recursive self-reference tag.
func SelfTag() TypeTag { return TypeTag{Kind: TagSelf} }

// String renders the tag in a compact, human-readable form.
func (t TypeTag) String() string {
	switch t.Kind {
	case TagRef:
		return fmt.Sprintf("ref(%s)", t.Ref)
	case TagSeq:
		if t.Elem != nil {
			return fmt.Sprintf("seq(%s)", t.Elem.String())
		}
		return "seq(?)"
	case TagMap:
		if t.Value != nil {
			return fmt.Sprintf("map(%s)", t.Value.String())
		}
		return "map(?)"
	default:
		return string(t.Kind)
	}
}

// validate checks the tag's structural invariants.
func (t TypeTag) validate() error {
	switch t.Kind {
	case TagString, TagInt, TagFloat, TagBool, TagSelf:
		return nil
	case TagRef:
		if t.Ref == "" {
			return fmt.Errorf("ref tag requires a type name")
		}
		return nil
	case TagSeq:
		if t.Elem == nil {
			return fmt.Errorf("seq tag requires an element tag")
		}
		return t.Elem.validate()
	case TagMap:
		if t.Value == nil {
			return fmt.Errorf("map tag requires a value tag")
		}
		return t.Value.validate()
	default:
		return fmt.Errorf("unknown tag kind %q", t.Kind)
	}
}

// FieldSpec declares a single named, typed field.
type FieldSpec struct {
	// Name is the field name, unique within its type or variant.
	Name string `json:"name"`

	// Tag is the declared type of the field.
	Tag TypeTag `json:"tag"`
}

// VariantSpec declares one labeled alternative of a sum type.
type VariantSpec struct {
	// Name is the variant name, unique within the sum type.
	Name string `json:"name"`

	// Fields is the variant's field set.
	Fields []FieldSpec `json:"fields,omitempty"`
}

// TypeDefinition is the declared shape of a product or sum type. Once
// registered, a definition's shape is immutable for the remainder of the
// process; redefinition under the same name replaces the old definition
// entirely.
type TypeDefinition struct {
	// Name is the unique key of the definition.
	Name string `json:"name"`

	// Kind discriminates product from sum.
	Kind Kind `json:"kind"`

	// Fields is the ordered field set of a product type.
	Fields []FieldSpec `json:"fields,omitempty"`

	// Variants is the variant set of a sum type.
	Variants []VariantSpec `json:"variants,omitempty"`
}

// Variant looks up a variant by name.
func (d TypeDefinition) Variant(name string) (VariantSpec, bool) {
	for _, v := range d.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return VariantSpec{}, false
}

// VariantNames returns the declared variant names in declaration order.
func (d TypeDefinition) VariantNames() []string {
	names := make([]string, len(d.Variants))
	for i, v := range d.Variants {
		names[i] = v.Name
	}
	return names
}

// MemberCount returns the number of fields (product) or variants (sum).
func (d TypeDefinition) MemberCount() int {
	if d.Kind == KindSum {
		return len(d.Variants)
	}
	return len(d.Fields)
}

// Validate checks the definition's shape invariants: non-empty names, field
// name uniqueness within the type or variant, and variant name uniqueness
// within the type.
func (d TypeDefinition) Validate() error {
	if d.Name == "" {
		return NewMalformedDefinitionError("type name must not be empty").
			WithCode(CodeEmptyName)
	}

	switch d.Kind {
	case KindProduct:
		if len(d.Variants) > 0 {
			return NewMalformedDefinitionError("product type must not declare variants").
				WithType(d.Name)
		}
		if err := validateFields(d.Name, "", d.Fields); err != nil {
			return err
		}
	case KindSum:
		if len(d.Fields) > 0 {
			return NewMalformedDefinitionError("sum type must not declare top-level fields").
				WithType(d.Name)
		}
		seen := make(map[string]bool, len(d.Variants))
		for _, v := range d.Variants {
			if v.Name == "" {
				return NewMalformedDefinitionError("variant name must not be empty").
					WithType(d.Name).
					WithCode(CodeEmptyName)
			}
			if seen[v.Name] {
				return NewMalformedDefinitionError("duplicate variant name").
					WithType(d.Name).
					WithVariant(v.Name).
					WithCode(CodeDuplicateVariant)
			}
			seen[v.Name] = true
			if err := validateFields(d.Name, v.Name, v.Fields); err != nil {
				return err
			}
		}
	default:
		return NewMalformedDefinitionError(fmt.Sprintf("unknown definition kind %q", d.Kind)).
			WithType(d.Name)
	}

	return nil
}

// validateFields checks one field set for empty names, duplicates, and
// malformed tags.
func validateFields(typeName, variant string, fields []FieldSpec) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return NewMalformedDefinitionError("field name must not be empty").
				WithType(typeName).
				WithVariant(variant).
				WithCode(CodeEmptyName)
		}
		if seen[f.Name] {
			return NewMalformedDefinitionError("duplicate field name").
				WithType(typeName).
				WithVariant(variant).
				WithField(f.Name).
				WithCode(CodeDuplicateField)
		}
		seen[f.Name] = true
		if err := f.Tag.validate(); err != nil {
			return NewMalformedDefinitionError(err.Error()).
				WithType(typeName).
				WithVariant(variant).
				WithField(f.Name)
		}
	}
	return nil
}

// clone deep-copies the definition so registered shapes stay immutable even
// if the caller mutates its declaration afterwards.
func (d TypeDefinition) clone() TypeDefinition {
	out := TypeDefinition{Name: d.Name, Kind: d.Kind}
	if len(d.Fields) > 0 {
		out.Fields = cloneFields(d.Fields)
	}
	if len(d.Variants) > 0 {
		out.Variants = make([]VariantSpec, len(d.Variants))
		for i, v := range d.Variants {
			out.Variants[i] = VariantSpec{Name: v.Name, Fields: cloneFields(v.Fields)}
		}
	}
	return out
}

func cloneFields(fields []FieldSpec) []FieldSpec {
	if fields == nil {
		return nil
	}
	out := make([]FieldSpec, len(fields))
	copy(out, fields)
	return out
}

// Instance is an opaque value tagged with its type name and, for sum types,
// its active variant. A product instance carries exactly its declared
// fields; a sum instance carries exactly one variant's declared fields.
type Instance struct {
	// Type is the name of the instance's type definition.
	Type string `json:"type"`

	// Variant is the active variant name; empty for product instances.
	Variant string `json:"variant,omitempty"`

	fields map[string]interface{}
}

// Field returns the value of a named field and whether it exists.
func (in *Instance) Field(name string) (interface{}, bool) {
	v, ok := in.fields[name]
	return v, ok
}

// Fields returns the instance's field map. The map is shared with the
// instance; callers that mutate it break the shape invariant and own the
// consequences.
func (in *Instance) Fields() map[string]interface{} {
	return in.fields
}

// String renders the instance tag for logs and errors.
func (in *Instance) String() string {
	if in.Variant != "" {
		return fmt.Sprintf("%s.%s", in.Type, in.Variant)
	}
	return in.Type
}
