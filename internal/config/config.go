// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for drivegram. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

// Config is the top-level configuration structure parsed from a TOML file.
// Every section is optional; missing values fall back to DefaultConfig.
type Config struct {
	Telegram  TelegramConfig  `toml:"telegram"`
	Google    GoogleConfig    `toml:"google"`
	Transfers TransfersConfig `toml:"transfers"`
	Auth      AuthConfig      `toml:"auth"`
	Storage   StorageConfig   `toml:"storage"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
}

// TelegramConfig configures the bot identity and the update poller.
type TelegramConfig struct {
	BotToken             string `toml:"bot_token"`
	APIURL               string `toml:"api_url"`
	PollTimeout          string `toml:"poll_timeout"`
	MaxConcurrentUpdates int    `toml:"max_concurrent_updates"`
	AdminUserID          int64  `toml:"admin_user_id"`
}

// GoogleConfig holds the OAuth client registration and Drive endpoints.
// APIKey is optional and lets anonymous users read public items.
type GoogleConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURI  string   `toml:"redirect_uri"`
	APIKey       string   `toml:"api_key"`
	Scopes       []string `toml:"scopes"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	APIURL       string   `toml:"api_url"`
}

// TransfersConfig controls size gates and the download loop.
type TransfersConfig struct {
	LargeFileThreshold string `toml:"large_file_threshold"`
	MaxUploadSize      string `toml:"max_upload_size"`
	ChunkSize          string `toml:"chunk_size"`
	ScratchDir         string `toml:"scratch_dir"`
	InterFileDelay     string `toml:"inter_file_delay"`
	MaxDepth           int    `toml:"max_depth"`
}

// AuthConfig bounds the set of pending authorization attempts.
type AuthConfig struct {
	AttemptTTL string `toml:"attempt_ttl"`
	MaxPending int    `toml:"max_pending"`
}

// StorageConfig selects where credentials and the job ledger live.
// EncryptionKey, when set, seals every credential record at rest.
type StorageConfig struct {
	Backend         string `toml:"backend"`
	CredentialsFile string `toml:"credentials_file"`
	Database        string `toml:"database"`
	EncryptionKey   string `toml:"encryption_key"`
}

// LoggingConfig controls log output behavior: level, format, and destination.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
}

// NetworkConfig controls HTTP client behavior. RequestTimeout bounds metadata
// calls; TransferTimeout is how long a download or upload may go without
// moving any bytes.
type NetworkConfig struct {
	RequestTimeout  string `toml:"request_timeout"`
	TransferTimeout string `toml:"transfer_timeout"`
	UserAgent       string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	LogLevel   string // derived from --verbose/--quiet
}
