package policy

import (
	"time"

	"github.com/openmatter/openmatter/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block definition.
	SeverityError Severity = "error"
)

// Policy is one lint rule with its Rego code. Policies run against type
// definitions before they are installed into a registry.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation is a single lint finding.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Type is the type name that violated the policy.
	Type string `json:"type,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// Result is the outcome of linting one or more definitions.
type Result struct {
	// Allowed indicates whether the definitions pass: no error-severity
	// violations.
	Allowed bool `json:"allowed"`

	// Violations lists all findings, warnings included.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block linting.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the lint ran.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the lint took.
	Duration time.Duration `json:"duration"`
}

// Input is the document handed to Rego: one definition plus derived
// convenience flags so rules stay declarative.
type Input struct {
	Definition DefinitionInput `json:"definition"`
}

// DefinitionInput mirrors an engine type definition for Rego consumption.
type DefinitionInput struct {
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	Fields    []FieldInput   `json:"fields,omitempty"`
	Variants  []VariantInput `json:"variants,omitempty"`
	Recursive bool           `json:"recursive"`
}

// FieldInput is one declared field.
type FieldInput struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
	Self bool   `json:"self"`
}

// VariantInput is one declared variant.
type VariantInput struct {
	Name      string       `json:"name"`
	Fields    []FieldInput `json:"fields,omitempty"`
	Recursive bool         `json:"recursive"`
}

// BuildInput converts an engine type definition into the Rego input shape.
func BuildInput(def engine.TypeDefinition) Input {
	in := DefinitionInput{
		Name: def.Name,
		Kind: string(def.Kind),
	}

	in.Fields = buildFields(def.Fields)
	for _, f := range in.Fields {
		if f.Self {
			in.Recursive = true
		}
	}

	for _, v := range def.Variants {
		vi := VariantInput{Name: v.Name, Fields: buildFields(v.Fields)}
		for _, f := range vi.Fields {
			if f.Self {
				vi.Recursive = true
			}
		}
		if vi.Recursive {
			in.Recursive = true
		}
		in.Variants = append(in.Variants, vi)
	}

	return Input{Definition: in}
}

func buildFields(specs []engine.FieldSpec) []FieldInput {
	if len(specs) == 0 {
		return nil
	}
	out := make([]FieldInput, len(specs))
	for i, spec := range specs {
		out[i] = FieldInput{
			Name: spec.Name,
			Tag:  spec.Tag.String(),
			Self: containsSelf(spec.Tag),
		}
	}
	return out
}

// containsSelf reports whether a tag mentions the recursive marker at any
// nesting depth.
func containsSelf(tag engine.TypeTag) bool {
	if tag.Kind == engine.TagSelf {
		return true
	}
	if tag.Elem != nil && containsSelf(*tag.Elem) {
		return true
	}
	if tag.Value != nil && containsSelf(*tag.Value) {
		return true
	}
	return false
}
