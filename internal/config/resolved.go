package config

import "time"

// TransferLimits is the parsed form of TransfersConfig.
type TransferLimits struct {
	LargeFileThreshold int64
	MaxUploadSize      int64
	ChunkSize          int64
	InterFileDelay     time.Duration
	MaxDepth           int
}

// Limits parses the human-readable sizes and durations. Values that fail to
// parse fall back to defaults; Validate reports them before this is called.
func (t *TransfersConfig) Limits() TransferLimits {
	return TransferLimits{
		LargeFileThreshold: sizeOr(t.LargeFileThreshold, defaultLargeFileThreshold),
		MaxUploadSize:      sizeOr(t.MaxUploadSize, defaultMaxUploadSize),
		ChunkSize:          sizeOr(t.ChunkSize, defaultChunkSize),
		InterFileDelay:     durationOr(t.InterFileDelay, defaultInterFileDelay),
		MaxDepth:           t.MaxDepth,
	}
}

// PollTimeoutDuration returns the long-poll timeout.
func (t *TelegramConfig) PollTimeoutDuration() time.Duration {
	return durationOr(t.PollTimeout, defaultPollTimeout)
}

// AttemptTTLDuration returns how long an authorization attempt stays valid.
func (a *AuthConfig) AttemptTTLDuration() time.Duration {
	return durationOr(a.AttemptTTL, defaultAttemptTTL)
}

// RequestTimeoutDuration bounds one metadata request.
func (n *NetworkConfig) RequestTimeoutDuration() time.Duration {
	return durationOr(n.RequestTimeout, defaultRequestTimeout)
}

// TransferTimeoutDuration is how long a download or upload may stall.
func (n *NetworkConfig) TransferTimeoutDuration() time.Duration {
	return durationOr(n.TransferTimeout, defaultTransferTimeout)
}

func sizeOr(s, fallback string) int64 {
	if n, err := ParseSize(s); err == nil && n > 0 {
		return n
	}

	n, _ := ParseSize(fallback) //nolint:errcheck // defaults are constants known to parse

	return n
}

func durationOr(s, fallback string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback) //nolint:errcheck // defaults are constants known to parse

	return d
}
