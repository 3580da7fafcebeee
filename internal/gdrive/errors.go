// Package gdrive provides an HTTP client for the Google Drive v3 API with
// automatic retry and error classification, plus link parsing and recursive
// folder enumeration.
package gdrive

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Use errors.Is(err, gdrive.ErrNotFound) to check.
var (
	// ErrInvalidLink means the submitted text matched no known link shape.
	ErrInvalidLink = errors.New("gdrive: unrecognized drive link")
	// ErrNotFound means the item does not exist or is not visible to the caller.
	ErrNotFound = errors.New("gdrive: not found")
	// ErrUnauthorized means the caller lacks permission or the token was rejected.
	ErrUnauthorized = errors.New("gdrive: unauthorized")
	// ErrNotDownloadable means the item has no binary content (native documents).
	ErrNotDownloadable = errors.New("gdrive: item cannot be downloaded")
	// ErrTransient covers network failures, throttling, and server errors.
	ErrTransient = errors.New("gdrive: transient error")
	// ErrTooDeep means a folder tree exceeded the enumeration depth limit.
	ErrTooDeep = errors.New("gdrive: folder tree too deep")
)

// Drive error reasons that change classification of a 403.
const (
	reasonRateLimit         = "rateLimitExceeded"
	reasonUserRateLimit     = "userRateLimitExceeded"
	reasonNotDownloadable   = "fileNotDownloadable"
	reasonCannotDownloadAbu = "cannotDownloadAbusiveFile"
)

// APIError wraps a sentinel error with the HTTP status, the Drive error
// reason, and the API error message for debugging.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gdrive: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gdrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorBody is the JSON error envelope returned by the Drive API.
type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// classifyStatus maps an HTTP status code and Drive reason to a sentinel.
func classifyStatus(code int, reason string) error {
	switch code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		switch reason {
		case reasonRateLimit, reasonUserRateLimit:
			return ErrTransient
		case reasonNotDownloadable, reasonCannotDownloadAbu:
			return ErrNotDownloadable
		default:
			return ErrUnauthorized
		}
	default:
		return ErrTransient
	}
}

// isRetryable reports whether the response should be retried. Drive reports
// quota exhaustion as 403 with a rate-limit reason.
func isRetryable(code int, reason string) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case http.StatusForbidden:
		return reason == reasonRateLimit || reason == reasonUserRateLimit
	default:
		return false
	}
}
