package config

import (
	"fmt"
	"io"
	"strings"
)

// redacted replaces secret values in rendered output.
const redacted = "(set, redacted)"

// RenderEffective writes the resolved configuration as a human-readable
// summary to w. Secrets are never printed, only whether they are set.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	renderTelegramSection(ew, &cfg.Telegram)
	renderGoogleSection(ew, &cfg.Google)
	renderTransfersSection(ew, &cfg.Transfers)
	renderAuthSection(ew, &cfg.Auth)
	renderStorageSection(ew, &cfg.Storage)
	renderLoggingSection(ew, &cfg.Logging)
	renderNetworkSection(ew, &cfg.Network)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func secret(s string) string {
	if s == "" {
		return "(unset)"
	}

	return redacted
}

func renderTelegramSection(ew *errWriter, t *TelegramConfig) {
	ew.printf("[telegram]\n")
	ew.printf("  bot_token              = %s\n", secret(t.BotToken))
	ew.printf("  api_url                = %q\n", t.APIURL)
	ew.printf("  poll_timeout           = %q\n", t.PollTimeout)
	ew.printf("  max_concurrent_updates = %d\n", t.MaxConcurrentUpdates)

	if t.AdminUserID != 0 {
		ew.printf("  admin_user_id          = %d\n", t.AdminUserID)
	}

	ew.printf("\n")
}

func renderGoogleSection(ew *errWriter, g *GoogleConfig) {
	ew.printf("[google]\n")
	ew.printf("  client_id     = %q\n", g.ClientID)
	ew.printf("  client_secret = %s\n", secret(g.ClientSecret))
	ew.printf("  redirect_uri  = %q\n", g.RedirectURI)
	ew.printf("  api_key       = %s\n", secret(g.APIKey))
	ew.printf("  scopes        = [%s]\n", joinQuoted(g.Scopes))
	ew.printf("  auth_url      = %q\n", g.AuthURL)
	ew.printf("  token_url     = %q\n", g.TokenURL)
	ew.printf("  api_url       = %q\n", g.APIURL)
	ew.printf("\n")
}

func renderTransfersSection(ew *errWriter, t *TransfersConfig) {
	ew.printf("[transfers]\n")
	ew.printf("  large_file_threshold = %q\n", t.LargeFileThreshold)
	ew.printf("  max_upload_size      = %q\n", t.MaxUploadSize)
	ew.printf("  chunk_size           = %q\n", t.ChunkSize)
	ew.printf("  scratch_dir          = %q\n", t.ScratchPath())
	ew.printf("  inter_file_delay     = %q\n", t.InterFileDelay)
	ew.printf("  max_depth            = %d\n", t.MaxDepth)
	ew.printf("\n")
}

func renderAuthSection(ew *errWriter, a *AuthConfig) {
	ew.printf("[auth]\n")
	ew.printf("  attempt_ttl = %q\n", a.AttemptTTL)
	ew.printf("  max_pending = %d\n", a.MaxPending)
	ew.printf("\n")
}

func renderStorageSection(ew *errWriter, s *StorageConfig) {
	ew.printf("[storage]\n")
	ew.printf("  backend          = %q\n", s.Backend)

	if s.Backend == BackendSQLite {
		ew.printf("  database         = %q\n", s.DatabasePath())
	} else {
		ew.printf("  credentials_file = %q\n", s.CredentialsPath())
	}

	ew.printf("  encryption_key   = %s\n", secret(s.EncryptionKey))
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)

	if l.LogFile != "" {
		ew.printf("  log_file   = %q\n", l.LogFile)
	}

	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("  request_timeout  = %q\n", n.RequestTimeout)
	ew.printf("  transfer_timeout = %q\n", n.TransferTimeout)

	if n.UserAgent != "" {
		ew.printf("  user_agent       = %q\n", n.UserAgent)
	}
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
