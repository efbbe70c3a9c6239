package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openmatter/openmatter/pkg/config"
	"github.com/openmatter/openmatter/pkg/engine"
	"github.com/openmatter/openmatter/pkg/stores"
	"github.com/openmatter/openmatter/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		format      string
		eventsDB    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch [path...]",
		Short: "Watch schema paths and reload definitions on change",
		Long: `Watch type declaration paths and reload the registry when files change.
Redefinition replaces a type wholesale, so edits swap in the new shape.

Engine events are streamed to the console and can additionally be recorded
to a SQLite database with --events-db.`,
		Example: `  # Watch the current directory
  matter watch

  # Watch a schema directory and record events
  matter watch --events-db ./events.db ./schemas

  # Expose prometheus metrics while watching
  matter watch --metrics-addr :9090 ./schemas`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			paths := args
			if len(paths) == 0 {
				paths = []string{"."}
			}

			loader, err := loaderForFormat(format, paths)
			if err != nil {
				return err
			}

			cfg := telemetry.DefaultConfig()
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.ListenAddress = metricsAddr
			}
			tel, err := telemetry.NewTelemetry(cfg)
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())

			if metricsAddr != "" {
				if err := tel.StartMetricsServer(); err != nil {
					return err
				}
				log.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			}

			events := tel.Events
			events.Subscribe(func(event telemetry.Event) {
				log.Info().
					Str("kind", event.Kind).
					Str("type", event.Type).
					Str("level", event.Level).
					Msg(event.Message)
			}, nil)

			if eventsDB != "" {
				store, err := stores.NewSQLiteStore(stores.Config{Path: eventsDB})
				if err != nil {
					return err
				}
				if err := store.Init(ctx); err != nil {
					return err
				}
				if err := store.Migrate(ctx); err != nil {
					_ = store.Close()
					return err
				}
				defer store.Close()
				events.Subscribe(store.Subscriber(log.Logger), nil)
				log.Info().Str("path", eventsDB).Msg("Recording events")
			}

			reg := engine.NewRegistry(log.Logger, events)

			// Initial load before watching so the registry starts populated.
			parsed, err := loader.Load(paths)
			if err != nil {
				return fmt.Errorf("failed to load declarations: %w", err)
			}
			if err := parsed.Install(reg); err != nil {
				return fmt.Errorf("failed to install definitions: %w", err)
			}
			log.Info().Int("definitions", len(parsed.Definitions)).Msg("Schema loaded")

			watcher := config.NewWatcher(loader, reg, log.Logger)
			watcher.OnReload = func(parsed *config.ParsedSchema, err error) {
				if err != nil {
					log.Error().Err(err).Msg("Schema reload failed")
					return
				}
				log.Info().Int("definitions", len(parsed.Definitions)).Msg("Schema reloaded")
			}

			if err := watcher.Watch(ctx, paths); err != nil {
				return err
			}
			defer watcher.Stop()

			<-ctx.Done()
			log.Info().Msg("Stopped watching")
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "auto", "schema format (cue, yaml, auto)")
	cmd.Flags().StringVar(&eventsDB, "events-db", "", "SQLite path for recording events")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "listen address for prometheus metrics")

	return cmd
}
