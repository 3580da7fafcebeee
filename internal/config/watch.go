package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor produces when it
// saves a file (truncate, write, chmod, rename).
const reloadDebounce = 500 * time.Millisecond

// Watch reloads the config file held by h whenever it changes on disk, until
// ctx is canceled. env is re-applied on every reload so secrets supplied via
// the environment survive. A file that fails to parse or validate is logged
// and the previous snapshot stays active. The parent directory is watched
// because editors commonly replace the file instead of writing in place.
func Watch(ctx context.Context, h *Holder, env EnvOverrides, logger *slog.Logger) error {
	path := h.Path()
	if path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		// No config directory means a defaults-only run; nothing to watch.
		logger.Debug("config watch disabled",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		<-ctx.Done()

		return nil
	}

	logger.Debug("watching config file", slog.String("path", path))

	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", watchErr.Error()))

		case <-pending:
			pending = nil
			reload(h, env, logger)
		}
	}
}

// reload re-reads the config file into h, keeping the old snapshot on error.
func reload(h *Holder, env EnvOverrides, logger *slog.Logger) {
	cfg, err := LoadOrDefault(h.Path())
	if err == nil {
		env.Apply(cfg)
		err = Validate(cfg)
	}

	if err != nil {
		logger.Warn("config reload rejected, keeping previous config",
			slog.String("path", h.Path()),
			slog.String("error", err.Error()),
		)

		return
	}

	prev := h.Config()

	if changed := startupOnlyChanges(prev, cfg); len(changed) > 0 {
		logger.Warn("config change needs a restart to take effect",
			slog.String("path", h.Path()),
			slog.String("settings", strings.Join(changed, ", ")),
		)
	}

	// The logger is built once; keep the snapshot in line with it.
	cfg.Logging = prev.Logging
	h.Update(cfg)

	limits := cfg.Transfers.Limits()
	logger.Info("config reloaded",
		slog.String("path", h.Path()),
		slog.Int64("large_file_threshold", limits.LargeFileThreshold),
		slog.Int64("max_upload_size", limits.MaxUploadSize),
	)
}

// startupOnlyChanges lists the settings that differ between prev and next
// but are only read when the process starts.
func startupOnlyChanges(prev, next *Config) []string {
	var changed []string

	if prev.Logging.LogLevel != next.Logging.LogLevel {
		changed = append(changed, "logging.log_level")
	}

	if prev.Logging.LogFormat != next.Logging.LogFormat {
		changed = append(changed, "logging.log_format")
	}

	if prev.Logging.LogFile != next.Logging.LogFile {
		changed = append(changed, "logging.log_file")
	}

	if prev.Network.RequestTimeout != next.Network.RequestTimeout {
		changed = append(changed, "network.request_timeout")
	}

	if prev.Network.TransferTimeout != next.Network.TransferTimeout {
		changed = append(changed, "network.transfer_timeout")
	}

	return changed
}
