package config

import "path/filepath"

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultTelegramAPIURL       = "https://api.telegram.org"
	defaultPollTimeout          = "50s"
	defaultMaxConcurrentUpdates = 64
	defaultGoogleAuthURL        = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL       = "https://oauth2.googleapis.com/token"
	defaultGoogleAPIURL         = "https://www.googleapis.com/drive/v3"
	defaultRedirectURI          = "http://localhost"
	defaultLargeFileThreshold   = "50MiB"
	defaultMaxUploadSize        = "2000MiB"
	defaultChunkSize            = "5MiB"
	defaultInterFileDelay       = "1s"
	defaultMaxDepth             = 64
	defaultAttemptTTL           = "10m"
	defaultMaxPending           = 1024
	defaultBackend              = BackendFile
	defaultCredentialsFile      = "credentials.json"
	defaultDatabaseFile         = "drivegram.db"
	defaultScratchSubdir        = "scratch"
	defaultLogLevel             = "info"
	defaultLogFormat            = "auto"
	defaultRequestTimeout       = "30s"
	defaultTransferTimeout      = "10m"
)

// Storage backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// DriveReadonlyScope is the only scope drivegram needs.
const DriveReadonlyScope = "https://www.googleapis.com/auth/drive.readonly"

// DefaultConfig returns a Config populated with every default value. Paths
// are left empty here and resolved against the platform data and cache
// directories by the accessor methods.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			APIURL:               defaultTelegramAPIURL,
			PollTimeout:          defaultPollTimeout,
			MaxConcurrentUpdates: defaultMaxConcurrentUpdates,
		},
		Google: GoogleConfig{
			RedirectURI: defaultRedirectURI,
			Scopes:      []string{DriveReadonlyScope},
			AuthURL:     defaultGoogleAuthURL,
			TokenURL:    defaultGoogleTokenURL,
			APIURL:      defaultGoogleAPIURL,
		},
		Transfers: TransfersConfig{
			LargeFileThreshold: defaultLargeFileThreshold,
			MaxUploadSize:      defaultMaxUploadSize,
			ChunkSize:          defaultChunkSize,
			InterFileDelay:     defaultInterFileDelay,
			MaxDepth:           defaultMaxDepth,
		},
		Auth: AuthConfig{
			AttemptTTL: defaultAttemptTTL,
			MaxPending: defaultMaxPending,
		},
		Storage: StorageConfig{
			Backend: defaultBackend,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			RequestTimeout:  defaultRequestTimeout,
			TransferTimeout: defaultTransferTimeout,
		},
	}
}

// CredentialsPath returns the credential file path, defaulting to the data dir.
func (s *StorageConfig) CredentialsPath() string {
	if s.CredentialsFile != "" {
		return expandTilde(s.CredentialsFile)
	}

	return filepath.Join(DefaultDataDir(), defaultCredentialsFile)
}

// DatabasePath returns the SQLite database path, defaulting to the data dir.
func (s *StorageConfig) DatabasePath() string {
	if s.Database != "" {
		return expandTilde(s.Database)
	}

	return filepath.Join(DefaultDataDir(), defaultDatabaseFile)
}

// ScratchPath returns the directory downloads are staged in.
func (t *TransfersConfig) ScratchPath() string {
	if t.ScratchDir != "" {
		return expandTilde(t.ScratchDir)
	}

	return filepath.Join(DefaultCacheDir(), defaultScratchSubdir)
}
