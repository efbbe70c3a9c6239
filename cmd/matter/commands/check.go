package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openmatter/openmatter/pkg/engine"
	"github.com/openmatter/openmatter/pkg/telemetry"
)

func newCheckCommand() *cobra.Command {
	var (
		typeName    string
		variantName string
		schemaPaths []string
		format      string
	)

	cmd := &cobra.Command{
		Use:   "check [instance.json]",
		Short: "Check an instance against a type definition",
		Long: `Check a JSON field map against a registered type definition.

The instance file holds a single JSON object mapping field names to values.
Reads from stdin when no file is given. Numbers without a fractional part
are checked as integers.`,
		Example: `  # Check a product instance
  matter check --schema ./types.cue --type Point ./point.json

  # Check a sum variant from stdin
  echo '{"value": 42}' | matter check --schema ./types.cue --type Option --variant Some`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if typeName == "" {
				return fmt.Errorf("--type is required")
			}
			if len(schemaPaths) == 0 {
				return fmt.Errorf("--schema is required")
			}

			loader, err := loaderForFormat(format, schemaPaths)
			if err != nil {
				return err
			}
			parsed, err := loader.Load(schemaPaths)
			if err != nil {
				return fmt.Errorf("failed to load declarations: %w", err)
			}
			if len(parsed.Errors) > 0 {
				for _, parseErr := range parsed.Errors {
					fmt.Fprintf(os.Stderr, "err  %s\n", parseErr.String())
				}
				return fmt.Errorf("schema contains %d error(s)", len(parsed.Errors))
			}

			events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: false})
			if err != nil {
				return err
			}
			reg := engine.NewRegistry(log.Logger, events)
			if err := parsed.Install(reg); err != nil {
				return fmt.Errorf("failed to install definitions: %w", err)
			}

			fields, err := readInstanceFields(args)
			if err != nil {
				return err
			}

			validator := engine.NewValidator(reg, log.Logger, events)
			var instance *engine.Instance
			if variantName != "" {
				instance, err = validator.ConstructVariant(typeName, variantName, fields)
			} else {
				instance, err = validator.ConstructProduct(typeName, fields)
			}
			if err != nil {
				return fmt.Errorf("instance rejected: %w", err)
			}

			if jsonOutput {
				out := struct {
					Type    string                 `json:"type"`
					Variant string                 `json:"variant,omitempty"`
					Fields  map[string]interface{} `json:"fields"`
				}{instance.Type, instance.Variant, instance.Fields()}
				encoded, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(encoded))
				return nil
			}

			if instance.Variant != "" {
				fmt.Printf("ok   %s.%s\n", instance.Type, instance.Variant)
			} else {
				fmt.Printf("ok   %s\n", instance.Type)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&typeName, "type", "t", "", "type definition name (required)")
	cmd.Flags().StringVar(&variantName, "variant", "", "sum variant name")
	cmd.Flags().StringSliceVarP(&schemaPaths, "schema", "s", nil, "schema file or directory paths (required)")
	cmd.Flags().StringVar(&format, "format", "auto", "schema format (cue, yaml, auto)")

	return cmd
}

// readInstanceFields reads the instance field map from the file argument or
// stdin, keeping integer literals as integers.
func readInstanceFields(args []string) (map[string]interface{}, error) {
	var raw []byte
	var err error
	if len(args) > 0 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = readAllStdin()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read instance: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode instance JSON: %w", err)
	}

	narrowed, ok := narrowNumbers(fields).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("instance JSON must be an object")
	}
	return narrowed, nil
}

func readAllStdin() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(os.Stdin); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// narrowNumbers walks a decoded JSON value converting json.Number to int64
// where the literal has no fractional part, float64 otherwise.
func narrowNumbers(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]interface{}:
		for k, elem := range val {
			val[k] = narrowNumbers(elem)
		}
		return val
	case []interface{}:
		for i, elem := range val {
			val[i] = narrowNumbers(elem)
		}
		return val
	default:
		return v
	}
}
