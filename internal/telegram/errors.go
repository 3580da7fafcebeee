package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for Bot API failures. Use errors.Is on an *APIError.
var (
	// ErrUnauthorized means the bot token was rejected.
	ErrUnauthorized = errors.New("telegram: unauthorized")
	// ErrForbidden means the bot may not write to the chat (blocked, kicked).
	ErrForbidden = errors.New("telegram: forbidden")
	// ErrConflict means another process is polling with the same token, or
	// a webhook is set.
	ErrConflict = errors.New("telegram: conflict")
	// ErrTooLarge means the request entity exceeded the server's limit.
	ErrTooLarge = errors.New("telegram: request entity too large")
	// ErrNotModified means an edit carried the same text as the message.
	ErrNotModified = errors.New("telegram: message is not modified")
	// ErrBadRequest covers every other 400 response.
	ErrBadRequest = errors.New("telegram: bad request")
	// ErrFlood means the server asked the bot to slow down.
	ErrFlood = errors.New("telegram: too many requests")
	// ErrServer covers 5xx responses and malformed replies.
	ErrServer = errors.New("telegram: server error")
)

// APIError is a non-OK Bot API response.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
	Err         error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.Code, e.Description)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classify maps an error code and description to a sentinel.
func classify(code int, description string) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusConflict:
		return ErrConflict
	case code == http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	case code == http.StatusTooManyRequests:
		return ErrFlood
	case code == http.StatusBadRequest && strings.Contains(description, "message is not modified"):
		return ErrNotModified
	case code == http.StatusBadRequest:
		return ErrBadRequest
	default:
		return ErrServer
	}
}

// isRetryable reports whether a failed call may be repeated as-is.
func isRetryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
