package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes content to a config.toml in a temp dir and returns its path.
func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[telegram]
bot_token = "123:abc"
poll_timeout = "30s"
admin_user_id = 42

[google]
client_id = "cid"
client_secret = "secret"
api_key = "key"

[transfers]
large_file_threshold = "100MiB"
max_upload_size = "1GiB"
chunk_size = "1MiB"
inter_file_delay = "0s"

[storage]
backend = "sqlite"
database = "/tmp/drivegram.db"

[logging]
log_level = "debug"
log_format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, int64(42), cfg.Telegram.AdminUserID)
	assert.Equal(t, "cid", cfg.Google.ClientID)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/drivegram.db", cfg.Storage.DatabasePath())
	assert.Equal(t, "debug", cfg.Logging.LogLevel)

	limits := cfg.Transfers.Limits()
	assert.Equal(t, int64(100*mebibyte), limits.LargeFileThreshold)
	assert.Equal(t, int64(gibibyte), limits.MaxUploadSize)
	assert.Equal(t, int64(mebibyte), limits.ChunkSize)
	assert.Zero(t, limits.InterFileDelay)

	// Untouched sections keep their defaults.
	assert.Equal(t, defaultTelegramAPIURL, cfg.Telegram.APIURL)
	assert.Equal(t, []string{DriveReadonlyScope}, cfg.Google.Scopes)
}

func TestLoad_UnknownKeyWithSuggestion(t *testing.T) {
	path := writeTestConfig(t, `
[transfers]
max_uplod_size = "10MB"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"max_uplod_size"`)
	assert.Contains(t, err.Error(), `did you mean "max_upload_size"`)
}

func TestLoad_UnknownSection(t *testing.T) {
	path := writeTestConfig(t, `
[telegran]
bot_token = "x"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "telegram"`)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `[telegram`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeTestConfig(t, `
[storage]
backend = "postgres"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, `
[telegram]
bot_token = "from-file"

[logging]
log_level = "warn"
`)

	env := EnvOverrides{ConfigPath: path, BotToken: "from-env", GoogleClientID: "env-cid"}

	cfg, gotPath, err := Resolve(env, CLIOverrides{LogLevel: "debug"})
	require.NoError(t, err)

	assert.Equal(t, path, gotPath)
	assert.Equal(t, "from-env", cfg.Telegram.BotToken)
	assert.Equal(t, "env-cid", cfg.Google.ClientID)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
}

func TestResolve_CLIPathWins(t *testing.T) {
	envPath := writeTestConfig(t, `[telegram]
bot_token = "env-file"
`)
	cliPath := writeTestConfig(t, `[telegram]
bot_token = "cli-file"
`)

	cfg, gotPath, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, cliPath, gotPath)
	assert.Equal(t, "cli-file", cfg.Telegram.BotToken)
}

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/drivegram.toml")
	t.Setenv(EnvBotToken, "tok")
	t.Setenv(EnvEncryptionKey, "key")

	env := ReadEnvOverrides()
	assert.Equal(t, "/etc/drivegram.toml", env.ConfigPath)
	assert.Equal(t, "tok", env.BotToken)
	assert.Equal(t, "key", env.EncryptionKey)
	assert.Empty(t, env.GoogleClientSecret)
}

func TestDefaultPaths_XDG(t *testing.T) {
	if !isLinux() {
		t.Skip("XDG variables only apply on Linux")
	}

	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("XDG_CACHE_HOME", "/xdg/cache")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")

	cfg := DefaultConfig()
	assert.Equal(t, "/xdg/data/drivegram/credentials.json", cfg.Storage.CredentialsPath())
	assert.Equal(t, "/xdg/data/drivegram/drivegram.db", cfg.Storage.DatabasePath())
	assert.Equal(t, "/xdg/cache/drivegram/scratch", cfg.Transfers.ScratchPath())
	assert.Equal(t, "/xdg/config/drivegram/config.toml", DefaultConfigPath())
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "creds.json"), expandTilde("~/creds.json"))
	assert.Equal(t, "/abs/path", expandTilde("/abs/path"))
	assert.Equal(t, "~user/x", expandTilde("~user/x"))
}
