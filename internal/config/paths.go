package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "drivegram"

// Config file name.
const configFileName = "config.toml"

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/drivegram).
func DefaultConfigDir() string {
	return platformDir("XDG_CONFIG_HOME", ".config", "Application Support")
}

// DefaultDataDir returns the directory for credentials and the job database.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/drivegram).
func DefaultDataDir() string {
	return platformDir("XDG_DATA_HOME", filepath.Join(".local", "share"), "Application Support")
}

// DefaultCacheDir returns the directory scratch downloads are staged under.
// On Linux, respects XDG_CACHE_HOME (defaults to ~/.cache/drivegram).
func DefaultCacheDir() string {
	return platformDir("XDG_CACHE_HOME", ".cache", "Caches")
}

// platformDir resolves an application directory: the XDG variable on Linux,
// ~/Library/<darwinLib> on macOS, ~/<homeRel> elsewhere.
func platformDir(xdgVar, homeRel, darwinLib string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv(xdgVar); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, homeRel, appName)
	case platformDarwin:
		return filepath.Join(home, "Library", darwinLib, appName)
	default:
		return filepath.Join(home, homeRel, appName)
	}
}

// DefaultConfigPath returns the full path to the default config file.
// This is used as the fallback when neither DRIVEGRAM_CONFIG nor --config
// is specified.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// expandTilde replaces a leading "~/" with the user's home directory.
// If os.UserHomeDir() fails, the path is returned unexpanded.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
