package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openmatter/openmatter/pkg/engine"
)

// TypeDecl is one type declaration as written in a schema document. Keys of
// the enclosing document map become type names.
type TypeDecl struct {
	// Kind selects the shape: "product" or "sum".
	Kind string `json:"kind" yaml:"kind" validate:"required,oneof=product sum"`

	// Fields declares the product's fields as name -> tag expression.
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Variants declares the sum's variants.
	Variants map[string]VariantDecl `json:"variants,omitempty" yaml:"variants,omitempty"`

	// Doc is an optional human-readable description. Carried through for
	// tooling, ignored by the engine.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`
}

// VariantDecl is one variant of a sum type declaration.
type VariantDecl struct {
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Doc    string            `json:"doc,omitempty" yaml:"doc,omitempty"`
}

// SchemaDoc is the top-level shape of a schema document: a map of type
// declarations under "types".
type SchemaDoc struct {
	Types map[string]TypeDecl `json:"types" yaml:"types" validate:"required,min=1"`
}

// ParsedSchema is the result of loading one or more schema sources.
type ParsedSchema struct {
	// Definitions are the decoded type definitions, ordered by name.
	Definitions []engine.TypeDefinition `json:"definitions"`

	// SourceFiles are the files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the schema was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists declaration errors with source positions where known.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is a declaration error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path locates the error inside the document (e.g. "types.Option").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		fmt.Fprintf(&b, "%s:", e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, "%d:%d:", e.Line, e.Column)
		}
		b.WriteByte(' ')
	}
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	b.WriteString(e.Message)
	return b.String()
}

// ParseTag parses a tag expression into an engine type tag. The grammar is a
// colon-separated prefix form:
//
//	string | int | float | bool | self
//	ref:<TypeName>
//	seq:<tag>
//	map:<tag>
//
// seq and map nest, so "seq:map:ref:Point" reads as a sequence of mappings
// of Point references.
func ParseTag(expr string) (engine.TypeTag, error) {
	expr = strings.TrimSpace(expr)

	switch expr {
	case "string":
		return engine.StringTag(), nil
	case "int":
		return engine.IntTag(), nil
	case "float":
		return engine.FloatTag(), nil
	case "bool":
		return engine.BoolTag(), nil
	case "self":
		return engine.SelfTag(), nil
	}

	head, rest, found := strings.Cut(expr, ":")
	if !found || rest == "" {
		return engine.TypeTag{}, fmt.Errorf("unknown tag expression %q", expr)
	}

	switch head {
	case "ref":
		return engine.RefTag(strings.TrimSpace(rest)), nil
	case "seq":
		elem, err := ParseTag(rest)
		if err != nil {
			return engine.TypeTag{}, err
		}
		return engine.SeqTag(elem), nil
	case "map":
		value, err := ParseTag(rest)
		if err != nil {
			return engine.TypeTag{}, err
		}
		return engine.MapTag(value), nil
	default:
		return engine.TypeTag{}, fmt.Errorf("unknown tag expression %q", expr)
	}
}

// ToDefinition converts one declaration into an engine type definition.
// Declared maps are unordered, so fields and variants are sorted by name to
// keep conversion deterministic.
func (d TypeDecl) ToDefinition(name string) (engine.TypeDefinition, error) {
	def := engine.TypeDefinition{Name: name}

	switch d.Kind {
	case "product":
		def.Kind = engine.KindProduct
		if len(d.Variants) > 0 {
			return def, fmt.Errorf("product type %s cannot declare variants", name)
		}
		fields, err := convertFields(d.Fields)
		if err != nil {
			return def, fmt.Errorf("type %s: %w", name, err)
		}
		def.Fields = fields

	case "sum":
		def.Kind = engine.KindSum
		if len(d.Fields) > 0 {
			return def, fmt.Errorf("sum type %s cannot declare top-level fields", name)
		}
		names := make([]string, 0, len(d.Variants))
		for vn := range d.Variants {
			names = append(names, vn)
		}
		sort.Strings(names)
		for _, vn := range names {
			fields, err := convertFields(d.Variants[vn].Fields)
			if err != nil {
				return def, fmt.Errorf("type %s variant %s: %w", name, vn, err)
			}
			def.Variants = append(def.Variants, engine.VariantSpec{Name: vn, Fields: fields})
		}

	default:
		return def, fmt.Errorf("type %s: unknown kind %q", name, d.Kind)
	}

	return def, nil
}

// convertFields converts a declared field map into ordered field specs.
func convertFields(decl map[string]string) ([]engine.FieldSpec, error) {
	if len(decl) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(decl))
	for n := range decl {
		names = append(names, n)
	}
	sort.Strings(names)

	specs := make([]engine.FieldSpec, 0, len(names))
	for _, n := range names {
		tag, err := ParseTag(decl[n])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", n, err)
		}
		specs = append(specs, engine.FieldSpec{Name: n, Tag: tag})
	}
	return specs, nil
}

// ToDefinitions converts a whole document, ordered by type name.
func (doc SchemaDoc) ToDefinitions() ([]engine.TypeDefinition, []ValidationError) {
	names := make([]string, 0, len(doc.Types))
	for n := range doc.Types {
		names = append(names, n)
	}
	sort.Strings(names)

	var defs []engine.TypeDefinition
	var errs []ValidationError
	for _, n := range names {
		def, err := doc.Types[n].ToDefinition(n)
		if err != nil {
			errs = append(errs, ValidationError{
				Path:     "types." + n,
				Message:  err.Error(),
				Severity: "error",
			})
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}

// Install defines every parsed definition into the registry. Installation
// stops at the first failure so a broken declaration never lands.
func (ps *ParsedSchema) Install(reg *engine.Registry) error {
	if len(ps.Errors) > 0 {
		return fmt.Errorf("schema has %d declaration errors: %s", len(ps.Errors), ps.Errors[0])
	}
	for _, def := range ps.Definitions {
		if err := reg.Define(def); err != nil {
			return fmt.Errorf("define %s: %w", def.Name, err)
		}
	}
	return nil
}
