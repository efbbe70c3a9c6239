package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// CUELoader parses CUE schema documents into type definitions. CUE is the
// primary declaration format: unification gives schema authors constraints
// and reuse the flat YAML form cannot express.
type CUELoader struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewCUELoader creates a new CUE schema loader.
func NewCUELoader() *CUELoader {
	return &CUELoader{
		ctx:       cuecontext.New(),
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
	}
}

// Load parses CUE schema sources, files or directories, and returns the
// parsed schema. Declaration errors are collected into the result rather
// than aborting at the first one, so authors see every broken type at once.
func (l *CUELoader) Load(sources []string) (*ParsedSchema, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var val cue.Value
		var files []string
		var errs []ValidationError
		if info.IsDir() {
			val, files, errs = l.loadDirectory(source)
		} else {
			val, errs = l.loadFile(source)
			files = []string{source}
		}

		parseErrors = append(parseErrors, errs...)
		if val.Exists() {
			if cueValue.Exists() {
				cueValue = cueValue.Unify(val)
			} else {
				cueValue = val
			}
		}
		sourceFiles = append(sourceFiles, files...)
	}

	if len(parseErrors) > 0 {
		return &ParsedSchema{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	if err := cueValue.Err(); err != nil {
		return &ParsedSchema{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      convertCUEErrors(err),
		}, nil
	}

	return l.extract(cueValue, sourceFiles)
}

// LoadInline parses inline CUE content.
func (l *CUELoader) LoadInline(content string) (*ParsedSchema, error) {
	val := l.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParsedSchema{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      convertCUEErrors(err),
		}, nil
	}
	return l.extract(val, []string{"inline"})
}

// Schemas returns the loader's schema registry.
func (l *CUELoader) Schemas() *SchemaRegistry {
	return l.schemas
}

// loadDirectory loads a directory as a CUE package.
func (l *CUELoader) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, convertCUEErrors(inst.Err)
	}

	val := l.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}
	return val, files, nil
}

// loadFile loads a single CUE file.
func (l *CUELoader) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := l.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}
	return val, nil
}

// extract decodes the unified value's "types" struct into definitions.
func (l *CUELoader) extract(val cue.Value, sourceFiles []string) (*ParsedSchema, error) {
	parsed := &ParsedSchema{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	typesVal := val.LookupPath(cue.ParsePath("types"))
	if !typesVal.Exists() {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:     "types",
			Message:  "schema document declares no types",
			Severity: "error",
		})
		return parsed, nil
	}

	doc := SchemaDoc{Types: make(map[string]TypeDecl)}

	iter, err := typesVal.Fields(cue.All())
	if err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:     "types",
			Message:  fmt.Sprintf("failed to iterate types: %v", err),
			Severity: "error",
		})
		return parsed, nil
	}
	for iter.Next() {
		name := iter.Selector().String()
		var decl TypeDecl
		if err := iter.Value().Decode(&decl); err != nil {
			parsed.Errors = append(parsed.Errors, errorAt(iter.Value(), fmt.Sprintf("types.%s", name),
				fmt.Sprintf("failed to decode declaration: %v", err)))
			continue
		}
		if err := l.validator.Struct(decl); err != nil {
			parsed.Errors = append(parsed.Errors, errorAt(iter.Value(), fmt.Sprintf("types.%s", name),
				fmt.Sprintf("declaration invalid: %v", err)))
			continue
		}
		doc.Types[name] = decl
	}

	defs, errs := doc.ToDefinitions()
	parsed.Definitions = defs
	parsed.Errors = append(parsed.Errors, errs...)
	return parsed, nil
}

// errorAt builds a ValidationError carrying the value's source position.
func errorAt(val cue.Value, path, message string) ValidationError {
	ve := ValidationError{
		Path:     path,
		Message:  message,
		Severity: "error",
	}
	if pos := val.Pos(); pos.IsValid() {
		ve.File = pos.Filename()
		ve.Line = pos.Line()
		ve.Column = pos.Column()
	}
	return ve
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	errs := errors.Errors(err)
	for _, e := range errs {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// ListCUEFiles lists all .cue files under a directory.
func ListCUEFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}
