// Package telegram is a minimal Telegram Bot API client: long polling for
// updates, sending and editing text messages, and streaming document
// uploads. Calls are retried on throttling and server errors; the bot token
// is part of every URL and is never logged.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// MaxMessageRunes is the longest text a message may carry.
const MaxMessageRunes = 4096

// Retry and backoff constants.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	maxErrorBody   = 64 << 10

	// pollGrace is added to the long-poll timeout for the request deadline.
	pollGrace = 10 * time.Second
)

// Client talks to the Bot API on behalf of one bot.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Tests override this to
	// avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client. httpClient should not carry a Timeout shorter
// than the long-poll timeout; deadlines are set per call instead.
func NewClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// GetMe returns the bot's own account. It is a cheap token check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", struct{}{}, &u); err != nil {
		return nil, err
	}

	return &u, nil
}

// GetUpdates long-polls for updates with IDs at or above offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+pollGrace)
	defer cancel()

	params := getUpdatesParams{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}

	return updates, nil
}

// SendMessage posts text to a chat. Text longer than MaxMessageRunes is
// truncated.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	params := sendMessageParams{
		ChatID:                chatID,
		Text:                  clampText(text),
		DisableWebPagePreview: true,
	}

	var m Message
	if err := c.call(ctx, "sendMessage", params, &m); err != nil {
		return nil, err
	}

	return &m, nil
}

// EditMessageText replaces the text of a message the bot sent. An edit that
// would not change the text is not an error.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	params := editMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      clampText(text),
	}

	var raw json.RawMessage

	err := c.call(ctx, "editMessageText", params, &raw)
	if errors.Is(err, ErrNotModified) {
		return nil
	}

	return err
}

// DocumentUpload is a file streamed to sendDocument.
type DocumentUpload struct {
	ChatID   int64
	FileName string
	Caption  string
	Body     io.Reader
}

// SendDocument uploads a file as a multipart form. The body is streamed, so
// the call is attempted once; a throttled upload returns an *APIError with
// RetryAfter set.
func (c *Client) SendDocument(ctx context.Context, doc DocumentUpload) (*Message, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})

	go func() {
		defer close(done)
		pw.CloseWithError(writeDocumentForm(mw, doc))
	}()

	// The server may answer before the form is fully written. The writer
	// must be done with doc.Body before the caller gets it back.
	defer func() {
		pr.Close()
		<-done
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendDocument"), pr)
	if err != nil {
		return nil, fmt.Errorf("telegram: sendDocument: creating request: %w", err)
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: sendDocument: %w", scrubToken(err, c.token))
	}
	defer resp.Body.Close()

	var m Message
	if err := c.decode("sendDocument", resp, &m); err != nil {
		return nil, err
	}

	c.logger.Debug("document sent",
		slog.Int64("chat_id", doc.ChatID),
		slog.String("file", doc.FileName),
	)

	return &m, nil
}

func writeDocumentForm(mw *multipart.Writer, doc DocumentUpload) error {
	if err := mw.WriteField("chat_id", strconv.FormatInt(doc.ChatID, 10)); err != nil {
		return err
	}

	if doc.Caption != "" {
		if err := mw.WriteField("caption", doc.Caption); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("document", doc.FileName)
	if err != nil {
		return err
	}

	if _, err := io.Copy(part, doc.Body); err != nil {
		return err
	}

	return mw.Close()
}

// call POSTs JSON params to method and decodes the result into out,
// retrying network failures, 429 and 5xx responses.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram: %s: encoding params: %w", method, err)
	}

	var attempt int
	for {
		err := c.callOnce(ctx, method, body, out)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("telegram: %s: request canceled: %w", method, ctx.Err())
		}

		var apiErr *APIError

		isAPI := errors.As(err, &apiErr)
		if (isAPI && !isRetryable(apiErr.Code)) || attempt >= maxRetries {
			return err
		}

		backoff := c.calcBackoff(attempt)
		if isAPI && apiErr.RetryAfter > 0 {
			backoff = apiErr.RetryAfter
		}

		c.logger.Warn("retrying bot API call",
			slog.String("method", method),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
			return fmt.Errorf("telegram: %s: request canceled: %w", method, sleepErr)
		}

		attempt++
	}
}

func (c *Client) callOnce(ctx context.Context, method string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: %s: creating request: %w", method, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, scrubToken(err, c.token))
	}
	defer resp.Body.Close()

	return c.decode(method, resp, out)
}

// decode reads the response envelope. A non-OK envelope becomes *APIError.
func (c *Client) decode(method string, resp *http.Response, out any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("telegram: %s: reading response: %w", method, err)
	}

	var env apiResponse
	if err := json.Unmarshal(data, &env); err != nil {
		return &APIError{
			Method:      method,
			Code:        resp.StatusCode,
			Description: string(truncateBytes(data, maxErrorBody)),
			Err:         ErrServer,
		}
	}

	if !env.OK {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}

		apiErr := &APIError{
			Method:      method,
			Code:        code,
			Description: env.Description,
			Err:         classify(code, env.Description),
		}

		if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
		}

		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram: %s: decoding result: %w: %w", method, ErrServer, err)
	}

	return nil
}

// scrubToken hides the bot token that *url.Error embeds in its message.
func scrubToken(err error, token string) error {
	if token == "" {
		return err
	}

	msg := err.Error()
	if !strings.Contains(msg, token) {
		return err
	}

	return &scrubbedError{msg: strings.ReplaceAll(msg, token, "<token>"), err: err}
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }

func clampText(s string) string {
	if utf8.RuneCountInString(s) <= MaxMessageRunes {
		return s
	}

	return string([]rune(s)[:MaxMessageRunes-1]) + "…"
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}

	return b[:n]
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
