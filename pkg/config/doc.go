// Package config loads declarative type schemas and user-written scripts
// into the engine.
//
// # Overview
//
// Schemas declare product and sum types in CUE or YAML documents. Loaders
// decode the documents, check them with struct validation, convert them to
// engine type definitions, and install them into a registry. A watcher
// reloads changed files, exploiting the registry's replacement semantics:
// a reloaded type swaps in wholesale, never merges.
//
// # Declaration format
//
// Both loaders accept the same document shape:
//
//	types: {
//	    Point: {
//	        kind: "product"
//	        fields: {x: "int", y: "int"}
//	    }
//	    Shape: {
//	        kind: "sum"
//	        variants: {
//	            Circle: {fields: {radius: "float"}}
//	            Rect:   {fields: {w: "float", h: "float"}}
//	            Empty:  {}
//	        }
//	    }
//	    Tree: {
//	        kind: "sum"
//	        variants: {
//	            Node: {fields: {value: "int", children: "seq:self"}}
//	            Leaf: {}
//	        }
//	    }
//	}
//
// Tag expressions are a colon-separated prefix grammar: the scalars
// "string", "int", "float", "bool", the recursive marker "self", plus
// "ref:<Type>", "seq:<tag>", and "map:<tag>".
//
// # Starlark
//
// User-written guards, synthesis predicates, and builders are Starlark
// scripts compiled once and called per dispatch:
//
//	def guard(fields):
//	    return fields["radius"] > 1.0
//
// Execution is sandboxed with no filesystem or network access and a
// per-call timeout.
//
// # Error reporting
//
// Declaration errors carry file, line, and column where the source format
// can provide them, and a document path such as "types.Shape" otherwise.
package config
