// Package policy lints type definitions with Rego before they are
// installed.
//
// The engine compiles Open Policy Agent rules and evaluates every enabled
// policy against each definition. Built-in policies enforce naming
// conventions, require sum types to declare variants, and warn on
// recursive sum types without a base case. Site-specific rules load from
// .rego files:
//
//	package openmatter.policies.naming
//
//	import rego.v1
//
//	deny contains violation if {
//	    def := input.definition
//	    not regex.match("^[A-Z]", def.name)
//	    violation := {
//	        "message": sprintf("type name '%s' must start uppercase", [def.name]),
//	        "severity": "error",
//	        "type": def.name,
//	    }
//	}
//
// The input document carries the definition plus derived flags (recursive
// markers per variant) so rules stay declarative. Violations with error
// severity block LintAndDefine; warnings pass through and are published as
// policy.violation events either way.
package policy
