package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openmatter/openmatter/pkg/config"
	"github.com/openmatter/openmatter/pkg/policy"
	"github.com/openmatter/openmatter/pkg/telemetry"
)

// validateReport is the JSON output shape of the validate command.
type validateReport struct {
	Definitions []string                 `json:"definitions"`
	Errors      []config.ValidationError `json:"errors,omitempty"`
	Violations  []policy.Violation       `json:"violations,omitempty"`
	Allowed     bool                     `json:"allowed"`
}

func newValidateCommand() *cobra.Command {
	var (
		format      string
		policyPaths []string
		noPolicy    bool
	)

	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate type declaration files",
		Long: `Validate type declaration files and lint the resulting definitions.

This command checks:
  - CUE or YAML syntax validity
  - Declaration shape (kind, field tags, variant sets)
  - Definition policy compliance (OPA/rego)`,
		Example: `  # Validate declarations in the current directory
  matter validate

  # Validate a YAML schema file
  matter validate --format yaml ./types.yaml

  # Validate with additional rego policies
  matter validate --policy ./policies ./schemas`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = []string{"."}
			}

			loader, err := loaderForFormat(format, paths)
			if err != nil {
				return err
			}

			log.Info().
				Strs("paths", paths).
				Str("format", format).
				Msg("Validating type declarations")

			parsed, err := loader.Load(paths)
			if err != nil {
				return fmt.Errorf("failed to load declarations: %w", err)
			}

			report := validateReport{Allowed: true, Errors: parsed.Errors}
			for _, def := range parsed.Definitions {
				report.Definitions = append(report.Definitions, def.Name)
			}
			if len(parsed.Errors) > 0 {
				report.Allowed = false
			}

			if !noPolicy && len(parsed.Definitions) > 0 {
				events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: false})
				if err != nil {
					return err
				}
				eng, err := policy.NewEngine(log.Logger, events)
				if err != nil {
					return fmt.Errorf("failed to create policy engine: %w", err)
				}
				if len(policyPaths) > 0 {
					if err := eng.LoadPolicies(cmd.Context(), policyPaths); err != nil {
						return fmt.Errorf("failed to load policies: %w", err)
					}
				}

				result, err := eng.Lint(cmd.Context(), parsed.Definitions...)
				if err != nil {
					return fmt.Errorf("policy evaluation failed: %w", err)
				}
				report.Violations = result.Violations
				if !result.Allowed {
					report.Allowed = false
				}
			}

			if err := printValidateReport(report); err != nil {
				return err
			}
			if !report.Allowed {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "auto", "schema format (cue, yaml, auto)")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional policy file or directory paths")
	cmd.Flags().BoolVar(&noPolicy, "no-policy", false, "skip the policy gate")

	return cmd
}

func printValidateReport(report validateReport) error {
	if jsonOutput {
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	for _, name := range report.Definitions {
		fmt.Printf("ok   %s\n", name)
	}
	for _, parseErr := range report.Errors {
		fmt.Fprintf(os.Stderr, "err  %s\n", parseErr.String())
	}
	for _, violation := range report.Violations {
		fmt.Fprintf(os.Stderr, "%-4s %s: %s (%s)\n",
			violation.Severity, violation.Type, violation.Message, violation.Policy)
	}

	if report.Allowed {
		fmt.Printf("%d definition(s) valid\n", len(report.Definitions))
	}
	return nil
}
