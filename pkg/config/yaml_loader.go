package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// YAMLLoader parses YAML schema documents. It accepts the same declaration
// shape as the CUE loader for authors who do not need CUE's constraint
// language.
type YAMLLoader struct {
	validator *validator.Validate
}

// NewYAMLLoader creates a new YAML schema loader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{validator: validator.New()}
}

// Load parses YAML schema sources, files or directories.
func (l *YAMLLoader) Load(sources []string) (*ParsedSchema, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	parsed := &ParsedSchema{ParsedAt: time.Now()}
	merged := SchemaDoc{Types: make(map[string]TypeDecl)}

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var files []string
		if info.IsDir() {
			files, err = listYAMLFiles(source)
			if err != nil {
				return nil, err
			}
		} else {
			files = []string{source}
		}

		for _, file := range files {
			parsed.SourceFiles = append(parsed.SourceFiles, file)
			l.loadFile(file, &merged, parsed)
		}
	}

	if len(parsed.Errors) > 0 {
		return parsed, nil
	}

	defs, errs := merged.ToDefinitions()
	parsed.Definitions = defs
	parsed.Errors = append(parsed.Errors, errs...)
	return parsed, nil
}

// LoadInline parses inline YAML content.
func (l *YAMLLoader) LoadInline(content string) (*ParsedSchema, error) {
	parsed := &ParsedSchema{
		SourceFiles: []string{"inline"},
		ParsedAt:    time.Now(),
	}

	doc, errs := l.decode("inline", []byte(content))
	if len(errs) > 0 {
		parsed.Errors = errs
		return parsed, nil
	}

	defs, convErrs := doc.ToDefinitions()
	parsed.Definitions = defs
	parsed.Errors = convErrs
	return parsed, nil
}

// loadFile decodes one file into the merged document. Type names already
// present are replaced, matching registry semantics: the later file wins
// wholesale.
func (l *YAMLLoader) loadFile(path string, merged *SchemaDoc, parsed *ParsedSchema) {
	data, err := os.ReadFile(path)
	if err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		})
		return
	}

	doc, errs := l.decode(path, data)
	if len(errs) > 0 {
		parsed.Errors = append(parsed.Errors, errs...)
		return
	}

	for name, decl := range doc.Types {
		merged.Types[name] = decl
	}
}

// decode unmarshals and struct-validates one document.
func (l *YAMLLoader) decode(path string, data []byte) (SchemaDoc, []ValidationError) {
	var doc SchemaDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, []ValidationError{yamlError(path, err)}
	}

	if err := l.validator.Struct(doc); err != nil {
		return doc, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("document invalid: %v", err),
			Severity: "error",
		}}
	}

	var errs []ValidationError
	for name, decl := range doc.Types {
		if err := l.validator.Struct(decl); err != nil {
			errs = append(errs, ValidationError{
				File:     path,
				Path:     "types." + name,
				Message:  fmt.Sprintf("declaration invalid: %v", err),
				Severity: "error",
			})
		}
	}
	return doc, errs
}

// yamlError extracts the line number from a yaml.v3 error where available.
func yamlError(path string, err error) ValidationError {
	ve := ValidationError{
		File:     path,
		Message:  err.Error(),
		Severity: "error",
	}
	if te, ok := err.(*yaml.TypeError); ok && len(te.Errors) > 0 {
		ve.Message = strings.Join(te.Errors, "; ")
	}
	return ve
}

// listYAMLFiles lists all .yaml/.yml files under a directory.
func listYAMLFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}
