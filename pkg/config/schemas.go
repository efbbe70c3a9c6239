package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas used to check schema documents before
// they are decoded. Built-in schemas cover the declaration format itself;
// custom schemas can be registered for stricter house rules.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()
	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	_ = sr.RegisterSchema("declaration", builtinDeclarationSchema)
	_ = sr.RegisterSchema("document", builtinDocumentSchema)
	_ = sr.RegisterSchema("instance", builtinInstanceSchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions

const builtinDeclarationSchema = `
// One type declaration
#Tag: string & =~"^(string|int|float|bool|self|(ref|seq|map):.+)$"

#Variant: {
	fields?: {[string]: #Tag}
	doc?:    string
}

kind: "product" | "sum"
fields?: {[string]: #Tag}
variants?: {[string]: #Variant}
doc?: string
`

const builtinDocumentSchema = `
// A schema document: named type declarations
types: {
	[=~"^[A-Z][A-Za-z0-9_]*$"]: {
		kind: "product" | "sum"
		...
	}
}
`

const builtinInstanceSchema = `
// Instance data submitted for construction
type:     string & =~"^[A-Z][A-Za-z0-9_]*$"
variant?: string
fields?: {[string]: _}
`
