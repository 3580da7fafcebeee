package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig             = "DRIVEGRAM_CONFIG"
	EnvBotToken           = "DRIVEGRAM_BOT_TOKEN"
	EnvGoogleClientID     = "DRIVEGRAM_GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "DRIVEGRAM_GOOGLE_CLIENT_SECRET"
	EnvEncryptionKey      = "DRIVEGRAM_ENCRYPTION_KEY"
)

// EnvOverrides holds values derived from environment variables. Secrets are
// usually supplied this way so they stay out of the config file.
type EnvOverrides struct {
	ConfigPath         string
	BotToken           string
	GoogleClientID     string
	GoogleClientSecret string
	EncryptionKey      string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Apply does that.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:         os.Getenv(EnvConfig),
		BotToken:           os.Getenv(EnvBotToken),
		GoogleClientID:     os.Getenv(EnvGoogleClientID),
		GoogleClientSecret: os.Getenv(EnvGoogleClientSecret),
		EncryptionKey:      os.Getenv(EnvEncryptionKey),
	}
}

// Apply copies every non-empty override onto cfg.
func (e EnvOverrides) Apply(cfg *Config) {
	if e.BotToken != "" {
		cfg.Telegram.BotToken = e.BotToken
	}

	if e.GoogleClientID != "" {
		cfg.Google.ClientID = e.GoogleClientID
	}

	if e.GoogleClientSecret != "" {
		cfg.Google.ClientSecret = e.GoogleClientSecret
	}

	if e.EncryptionKey != "" {
		cfg.Storage.EncryptionKey = e.EncryptionKey
	}
}
