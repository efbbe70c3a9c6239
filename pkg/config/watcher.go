package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/openmatter/openmatter/pkg/engine"
)

// SchemaLoader is the loading interface the watcher reloads through. Both
// CUELoader and YAMLLoader satisfy it.
type SchemaLoader interface {
	Load(sources []string) (*ParsedSchema, error)
}

// Watcher watches schema paths and re-installs definitions into a registry
// when files change. Redefinition replaces a type wholesale, so a reload of
// an edited file swaps in the new shape with no merge step.
type Watcher struct {
	loader  SchemaLoader
	reg     *engine.Registry
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	// OnReload, if set, is called after each reload attempt with the parse
	// result and the install error, nil on success.
	OnReload func(*ParsedSchema, error)
}

// NewWatcher creates a schema watcher reloading through the given loader
// into the given registry.
func NewWatcher(loader SchemaLoader, reg *engine.Registry, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader: loader,
		reg:    reg,
		logger: logger.With().Str("component", "schema-watcher").Logger(),
	}
}

// Watch starts watching the paths until the context is cancelled. Reloads
// are debounced so an editor's burst of writes triggers one reload.
func (w *Watcher) Watch(ctx context.Context, paths []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := w.watchDirectory(path); err != nil {
				w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
		} else {
			if err := watcher.Add(path); err != nil {
				w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
			}
		}
	}

	go w.processEvents(ctx, paths)

	w.logger.Info().Int("paths", len(paths)).Msg("Started watching schema paths")
	return nil
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

// watchDirectory adds a directory tree to the watcher.
func (w *Watcher) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// processEvents drains file system events and triggers debounced reloads.
func (w *Watcher) processEvents(ctx context.Context, paths []string) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if w.watcher != nil {
				_ = w.watcher.Close()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isSchemaFile(event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Schema file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				w.reload(paths)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// reload parses all watched paths and installs the result.
func (w *Watcher) reload(paths []string) {
	w.logger.Info().Msg("Reloading schemas...")

	parsed, err := w.loader.Load(paths)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload schemas")
		if w.OnReload != nil {
			w.OnReload(nil, err)
		}
		return
	}

	err = parsed.Install(w.reg)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to install reloaded schemas")
	} else {
		w.logger.Info().
			Int("types", len(parsed.Definitions)).
			Msg("Schemas reloaded")
	}

	if w.OnReload != nil {
		w.OnReload(parsed, err)
	}
}

// isSchemaFile reports whether a path looks like a schema source.
func isSchemaFile(path string) bool {
	return strings.HasSuffix(path, ".cue") ||
		strings.HasSuffix(path, ".yaml") ||
		strings.HasSuffix(path, ".yml")
}
