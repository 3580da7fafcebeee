package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minChunkBytes        = 64 * kibibyte
	maxChunkBytes        = 64 * mebibyte
	minMaxDepth          = 1
	maxMaxDepth          = 1024
	minConcurrentUpdates = 1
	maxConcurrentUpdates = 1024
	minPending           = 1
	minRequestTimeout    = 1 * time.Second
	minTransferTimeout   = 10 * time.Second
	maxPollTimeout       = 5 * time.Minute
	encryptionKeyBytes   = 32
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass. Missing secrets are not errors
// here: commands that need them call RequireBot or RequireOAuth.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTelegram(&cfg.Telegram)...)
	errs = append(errs, validateGoogle(&cfg.Google)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// RequireBot reports whether the settings needed to run the bot are present.
func (c *Config) RequireBot() error {
	var errs []error

	if c.Telegram.BotToken == "" {
		errs = append(errs, fmt.Errorf("telegram.bot_token: required (or set %s)", EnvBotToken))
	}

	errs = append(errs, c.RequireOAuth())

	return errors.Join(errs...)
}

// RequireOAuth reports whether the Google OAuth client is configured.
func (c *Config) RequireOAuth() error {
	var errs []error

	if c.Google.ClientID == "" {
		errs = append(errs, fmt.Errorf("google.client_id: required (or set %s)", EnvGoogleClientID))
	}

	if c.Google.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("google.client_secret: required (or set %s)", EnvGoogleClientSecret))
	}

	return errors.Join(errs...)
}

func validateTelegram(t *TelegramConfig) []error {
	var errs []error

	errs = append(errs, validateURL("telegram.api_url", t.APIURL)...)

	if d, err := time.ParseDuration(t.PollTimeout); err != nil {
		errs = append(errs, fmt.Errorf("telegram.poll_timeout: %w", err))
	} else if d < 0 || d > maxPollTimeout {
		errs = append(errs, fmt.Errorf("telegram.poll_timeout: must be between 0 and %s, got %s", maxPollTimeout, d))
	}

	if t.MaxConcurrentUpdates < minConcurrentUpdates || t.MaxConcurrentUpdates > maxConcurrentUpdates {
		errs = append(errs, fmt.Errorf("telegram.max_concurrent_updates: must be between %d and %d, got %d",
			minConcurrentUpdates, maxConcurrentUpdates, t.MaxConcurrentUpdates))
	}

	return errs
}

func validateGoogle(g *GoogleConfig) []error {
	var errs []error

	errs = append(errs, validateURL("google.auth_url", g.AuthURL)...)
	errs = append(errs, validateURL("google.token_url", g.TokenURL)...)
	errs = append(errs, validateURL("google.api_url", g.APIURL)...)
	errs = append(errs, validateURL("google.redirect_uri", g.RedirectURI)...)

	if len(g.Scopes) == 0 {
		errs = append(errs, errors.New("google.scopes: at least one scope is required"))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	threshold, err := ParseSize(t.LargeFileThreshold)
	if err != nil {
		errs = append(errs, fmt.Errorf("transfers.large_file_threshold: %w", err))
	}

	maxUpload, err := ParseSize(t.MaxUploadSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("transfers.max_upload_size: %w", err))
	} else if maxUpload == 0 {
		errs = append(errs, errors.New("transfers.max_upload_size: must be greater than zero"))
	}

	if threshold > 0 && maxUpload > 0 && threshold > maxUpload {
		errs = append(errs, fmt.Errorf("transfers.large_file_threshold (%s) exceeds max_upload_size (%s)",
			t.LargeFileThreshold, t.MaxUploadSize))
	}

	if chunk, err := ParseSize(t.ChunkSize); err != nil {
		errs = append(errs, fmt.Errorf("transfers.chunk_size: %w", err))
	} else if chunk < minChunkBytes || chunk > maxChunkBytes {
		errs = append(errs, fmt.Errorf("transfers.chunk_size: must be between 64KiB and 64MiB, got %s", t.ChunkSize))
	}

	if d, err := time.ParseDuration(t.InterFileDelay); err != nil {
		errs = append(errs, fmt.Errorf("transfers.inter_file_delay: %w", err))
	} else if d < 0 {
		errs = append(errs, errors.New("transfers.inter_file_delay: must not be negative"))
	}

	if t.MaxDepth < minMaxDepth || t.MaxDepth > maxMaxDepth {
		errs = append(errs, fmt.Errorf("transfers.max_depth: must be between %d and %d, got %d",
			minMaxDepth, maxMaxDepth, t.MaxDepth))
	}

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if d, err := time.ParseDuration(a.AttemptTTL); err != nil {
		errs = append(errs, fmt.Errorf("auth.attempt_ttl: %w", err))
	} else if d < time.Minute {
		errs = append(errs, fmt.Errorf("auth.attempt_ttl: must be at least 1m, got %s", d))
	}

	if a.MaxPending < minPending {
		errs = append(errs, fmt.Errorf("auth.max_pending: must be at least %d, got %d", minPending, a.MaxPending))
	}

	return errs
}

func validateStorage(s *StorageConfig) []error {
	var errs []error

	switch s.Backend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.backend: must be %q or %q, got %q", BackendFile, BackendSQLite, s.Backend))
	}

	if s.EncryptionKey != "" {
		if _, err := s.Key(); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// Key decodes the base64 encryption key. Returns nil when no key is set.
func (s *StorageConfig) Key() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}

	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("storage.encryption_key: not valid base64: %w", err)
	}

	if len(key) != encryptionKeyBytes {
		return nil, fmt.Errorf("storage.encryption_key: must decode to %d bytes, got %d", encryptionKeyBytes, len(key))
	}

	return key, nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch strings.ToLower(l.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.log_level: must be debug, info, warn, or error, got %q", l.LogLevel))
	}

	switch l.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.log_format: must be auto, text, or json, got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if d, err := time.ParseDuration(n.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.request_timeout: %w", err))
	} else if d < minRequestTimeout {
		errs = append(errs, fmt.Errorf("network.request_timeout: must be at least %s, got %s", minRequestTimeout, d))
	}

	if d, err := time.ParseDuration(n.TransferTimeout); err != nil {
		errs = append(errs, fmt.Errorf("network.transfer_timeout: %w", err))
	} else if d < minTransferTimeout {
		errs = append(errs, fmt.Errorf("network.transfer_timeout: must be at least %s, got %s", minTransferTimeout, d))
	}

	return errs
}

func validateURL(field, raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("%s: must be an http(s) URL, got %q", field, raw)}
	}

	return nil
}
