package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openmatter/openmatter/pkg/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "matter",
		Short: "OpenMatter - Algebraic Data Type Engine",
		Long: `OpenMatter is a runtime engine for algebraic data types: product and sum
type definitions with structural validation, pattern matching with
exhaustiveness analysis, lazy recursion cells, and rule-based synthesis.

Features:
  - Type declarations via CUE or YAML
  - Guard scripting via Starlark
  - Definition linting via OPA/rego policies
  - Live schema reload on file change
  - Telemetry events with optional SQLite persistence`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}

// loaderForFormat picks a schema loader. Format "auto" inspects the first
// path's extension and falls back to CUE.
func loaderForFormat(format string, paths []string) (config.SchemaLoader, error) {
	switch format {
	case "cue":
		return config.NewCUELoader(), nil
	case "yaml":
		return config.NewYAMLLoader(), nil
	case "auto", "":
		for _, p := range paths {
			switch strings.ToLower(filepath.Ext(p)) {
			case ".yaml", ".yml":
				return config.NewYAMLLoader(), nil
			case ".cue":
				return config.NewCUELoader(), nil
			}
		}
		return config.NewCUELoader(), nil
	default:
		return nil, fmt.Errorf("unknown schema format %q (expected cue, yaml, or auto)", format)
	}
}
