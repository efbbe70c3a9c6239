package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in lint policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		typeNamingPolicy(),
		sumShapePolicy(),
		recursionBasePolicy(),
		fieldCountPolicy(),
		reservedNamesPolicy(),
	}
}

// typeNamingPolicy enforces naming conventions on types, variants, and
// fields.
func typeNamingPolicy() Policy {
	return Policy{
		Name:        "type-naming",
		Description: "Enforces naming conventions: UpperCamelCase types and variants, lowerCamelCase fields",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openmatter.policies.naming

import rego.v1

deny contains violation if {
	def := input.definition
	not regex.match("^[A-Z][A-Za-z0-9]*$", def.name)
	violation := {
		"message": sprintf("type name '%s' must be UpperCamelCase", [def.name]),
		"severity": "error",
		"type": def.name,
	}
}

deny contains violation if {
	def := input.definition
	some v in def.variants
	not regex.match("^[A-Z][A-Za-z0-9]*$", v.name)
	violation := {
		"message": sprintf("variant name '%s' must be UpperCamelCase", [v.name]),
		"severity": "error",
		"type": def.name,
	}
}

deny contains violation if {
	def := input.definition
	some f in def.fields
	not regex.match("^[a-z][A-Za-z0-9]*$", f.name)
	violation := {
		"message": sprintf("field name '%s' must be lowerCamelCase", [f.name]),
		"severity": "error",
		"type": def.name,
	}
}

deny contains violation if {
	def := input.definition
	some v in def.variants
	some f in v.fields
	not regex.match("^[a-z][A-Za-z0-9]*$", f.name)
	violation := {
		"message": sprintf("field name '%s' of variant '%s' must be lowerCamelCase", [f.name, v.name]),
		"severity": "error",
		"type": def.name,
	}
}`,
	}
}

// sumShapePolicy requires sum types to declare at least one variant.
func sumShapePolicy() Policy {
	return Policy{
		Name:        "sum-shape",
		Description: "Sum types must declare at least one variant",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"shape"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openmatter.policies.shape

import rego.v1

deny contains violation if {
	def := input.definition
	def.kind == "sum"
	count(def.variants) == 0
	violation := {
		"message": sprintf("sum type '%s' declares no variants", [def.name]),
		"severity": "error",
		"type": def.name,
	}
}`,
	}
}

// recursionBasePolicy warns when a recursive sum type has no base case: a
// value of such a type can only be built through lazy cells, which is
// usually an authoring mistake.
func recursionBasePolicy() Policy {
	return Policy{
		Name:        "recursion-base",
		Description: "Recursive sum types should declare at least one non-recursive variant",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"recursion"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openmatter.policies.recursion

import rego.v1

deny contains violation if {
	def := input.definition
	def.kind == "sum"
	def.recursive
	bases := [v | some v in def.variants; not v.recursive]
	count(bases) == 0
	violation := {
		"message": sprintf("recursive sum type '%s' has no non-recursive variant", [def.name]),
		"severity": "warning",
		"type": def.name,
	}
}`,
	}
}

// fieldCountPolicy warns about oversized field sets. Products or variants
// with that many fields usually want a nested type ref instead.
func fieldCountPolicy() Policy {
	return Policy{
		Name:        "field-count",
		Description: "Products and variants should declare at most 32 fields",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"shape"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openmatter.policies.size

import rego.v1

deny contains violation if {
	def := input.definition
	count(def.fields) > 32
	violation := {
		"message": sprintf("type '%s' declares %d fields (max 32)", [def.name, count(def.fields)]),
		"severity": "warning",
		"type": def.name,
	}
}

deny contains violation if {
	def := input.definition
	some v in def.variants
	count(v.fields) > 32
	violation := {
		"message": sprintf("variant '%s' of '%s' declares %d fields (max 32)", [v.name, def.name, count(v.fields)]),
		"severity": "warning",
		"type": def.name,
	}
}`,
	}
}

// reservedNamesPolicy blocks field names that collide with the instance
// envelope's own keys.
func reservedNamesPolicy() Policy {
	return Policy{
		Name:        "reserved-names",
		Description: "Field names must not collide with instance envelope keys",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openmatter.policies.reserved

import rego.v1

reserved := {"type", "variant", "fields"}

deny contains violation if {
	def := input.definition
	some f in def.fields
	f.name in reserved
	violation := {
		"message": sprintf("field name '%s' is reserved", [f.name]),
		"severity": "error",
		"type": def.name,
	}
}

deny contains violation if {
	def := input.definition
	some v in def.variants
	some f in v.fields
	f.name in reserved
	violation := {
		"message": sprintf("field name '%s' of variant '%s' is reserved", [f.name, v.name]),
		"severity": "error",
		"type": def.name,
	}
}`,
	}
}
