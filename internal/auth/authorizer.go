// Package auth runs the OAuth authorization-code flow for chat users. There
// is no local callback listener: the user opens the consent URL, and pastes
// the redirect (or just the code) back into the chat. Each attempt is bound
// to its user by the state parameter and protected by a PKCE verifier.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/drivegram/internal/credstore"
)

// Defaults for the pending-attempt table.
const (
	DefaultAttemptTTL = 10 * time.Minute
	DefaultMaxPending = 1024
	sweepInterval     = time.Minute
	stateTokenBytes   = 16
)

var (
	// ErrNoAttempt means the user has no live login attempt.
	ErrNoAttempt = errors.New("auth: no pending login attempt")
	// ErrStateMismatch means the pasted response belongs to another attempt.
	ErrStateMismatch = errors.New("auth: state does not match the pending attempt")
	// ErrDenied means the user declined consent.
	ErrDenied = errors.New("auth: authorization denied")
	// ErrMissingCode means no authorization code could be found in the text.
	ErrMissingCode = errors.New("auth: no authorization code in response")
	// ErrExchange means the token endpoint rejected the code.
	ErrExchange = errors.New("auth: token exchange failed")
)

// Options configure an Authorizer.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	AttemptTTL   time.Duration
	MaxPending   int
	HTTPClient   *http.Client
}

type attempt struct {
	state     string
	verifier  string
	createdAt time.Time
	expiresAt time.Time
}

// Authorizer issues consent URLs and exchanges pasted codes. A user has at
// most one pending attempt; starting a new one replaces the old.
type Authorizer struct {
	cfg         *oauth2.Config
	redirectURI string
	ttl         time.Duration
	maxPending  int
	httpClient  *http.Client
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]*attempt

	// nowFunc returns the current time. Tests override it.
	nowFunc func() time.Time
}

// New creates an Authorizer.
func New(opts Options, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.AttemptTTL <= 0 {
		opts.AttemptTTL = DefaultAttemptTTL
	}

	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Authorizer{
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		redirectURI: opts.RedirectURI,
		ttl:         opts.AttemptTTL,
		maxPending:  opts.MaxPending,
		httpClient:  opts.HTTPClient,
		logger:      logger,
		pending:     make(map[string]*attempt),
		nowFunc:     time.Now,
	}
}

// Begin registers a fresh attempt for userID and returns the consent URL.
func (a *Authorizer) Begin(userID string) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("auth: generating state token: %w", err)
	}

	verifier := oauth2.GenerateVerifier()
	now := a.nowFunc()

	a.mu.Lock()
	if _, exists := a.pending[userID]; !exists && len(a.pending) >= a.maxPending {
		a.evictOldestLocked()
	}

	a.pending[userID] = &attempt{
		state:     state,
		verifier:  verifier,
		createdAt: now,
		expiresAt: now.Add(a.ttl),
	}
	a.mu.Unlock()

	a.logger.Info("login attempt started",
		slog.String("user_id", userID),
		slog.Time("expires_at", now.Add(a.ttl)),
	)

	return a.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	), nil
}

func (a *Authorizer) evictOldestLocked() {
	var (
		oldestUser string
		oldestAt   time.Time
	)

	for user, att := range a.pending {
		if oldestUser == "" || att.createdAt.Before(oldestAt) {
			oldestUser, oldestAt = user, att.createdAt
		}
	}

	delete(a.pending, oldestUser)

	a.logger.Warn("pending login table full, evicted oldest attempt",
		slog.String("user_id", oldestUser),
	)
}

// Pending reports whether userID has a live attempt.
func (a *Authorizer) Pending(userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	att, ok := a.pending[userID]

	return ok && a.nowFunc().Before(att.expiresAt)
}

// Cancel drops userID's attempt, if any.
func (a *Authorizer) Cancel(userID string) {
	a.mu.Lock()
	delete(a.pending, userID)
	a.mu.Unlock()
}

// Complete exchanges the code in pasted for a credential. pasted may be the
// full redirect URL, its query string, or the bare code. A state, when
// present, must match userID's attempt. The attempt is consumed whether or
// not the exchange succeeds, since a code is single-use.
func (a *Authorizer) Complete(ctx context.Context, userID, pasted string) (*credstore.Credential, error) {
	resp, err := parseResponse(pasted)
	if err != nil {
		return nil, err
	}

	att, err := a.take(userID, resp.state)
	if err != nil {
		return nil, err
	}

	a.logger.Info("exchanging authorization code", slog.String("user_id", userID))

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := a.cfg.Exchange(ctx, resp.code, oauth2.VerifierOption(att.verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	if tok.RefreshToken == "" {
		a.logger.Warn("token response carried no refresh token",
			slog.String("user_id", userID),
		)
	}

	a.logger.Info("login complete",
		slog.String("user_id", userID),
		slog.Time("expiry", tok.Expiry),
	)

	return credstore.FromToken(userID, a.cfg, tok), nil
}

// take removes and returns userID's attempt after checking expiry and state.
// A mismatched state leaves the attempt in place.
func (a *Authorizer) take(userID, state string) (*attempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	att, ok := a.pending[userID]
	if !ok {
		return nil, ErrNoAttempt
	}

	if !a.nowFunc().Before(att.expiresAt) {
		delete(a.pending, userID)
		return nil, ErrNoAttempt
	}

	if state != "" && state != att.state {
		return nil, ErrStateMismatch
	}

	delete(a.pending, userID)

	return att, nil
}

// Sweep drops expired attempts and returns how many were removed.
func (a *Authorizer) Sweep() int {
	now := a.nowFunc()

	a.mu.Lock()
	defer a.mu.Unlock()

	var n int

	for user, att := range a.pending {
		if !now.Before(att.expiresAt) {
			delete(a.pending, user)
			n++
		}
	}

	return n
}

// Run sweeps expired attempts every minute until ctx is canceled.
func (a *Authorizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := a.Sweep(); n > 0 {
				a.logger.Debug("swept expired login attempts", slog.Int("count", n))
			}
		}
	}
}

// LooksLikeAuthResponse reports whether text should be routed to Complete:
// the redirect URL, a query string carrying a code, or a bare Google code.
func (a *Authorizer) LooksLikeAuthResponse(text string) bool {
	text = strings.TrimSpace(text)

	switch {
	case text == "":
		return false
	case a.redirectURI != "" && strings.HasPrefix(text, a.redirectURI):
		return true
	case strings.Contains(text, "code=") || strings.Contains(text, "error=access_denied"):
		return true
	default:
		return strings.HasPrefix(text, "4/") && !strings.ContainsAny(text, " \t\n")
	}
}

type authResponse struct {
	code  string
	state string
}

// parseResponse pulls code and state out of pasted text.
func parseResponse(pasted string) (authResponse, error) {
	text := strings.TrimSpace(pasted)
	if text == "" {
		return authResponse{}, ErrMissingCode
	}

	if !strings.Contains(text, "=") {
		return authResponse{code: text}, nil
	}

	raw := text
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}

	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}

	q, err := url.ParseQuery(raw)
	if err != nil {
		return authResponse{}, fmt.Errorf("%w: %w", ErrMissingCode, err)
	}

	if e := q.Get("error"); e != "" {
		return authResponse{}, fmt.Errorf("%w: %s", ErrDenied, e)
	}

	code := q.Get("code")
	if code == "" {
		return authResponse{}, ErrMissingCode
	}

	return authResponse{code: code, state: q.Get("state")}, nil
}

// generateState produces a random hex string for the state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
