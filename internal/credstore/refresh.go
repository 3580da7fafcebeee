package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// OAuthRefresher renews credentials at their token endpoint using the
// standard refresh_token grant.
type OAuthRefresher struct {
	httpClient *http.Client
}

// NewOAuthRefresher returns a refresher that sends token requests through
// httpClient (http.DefaultClient when nil).
func NewOAuthRefresher(httpClient *http.Client) *OAuthRefresher {
	return &OAuthRefresher{httpClient: httpClient}
}

// Refresh returns a copy of cred with a fresh access token.
func (r *OAuthRefresher) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	// A token with no access token forces the oauth2 source to refresh.
	stale := &oauth2.Token{RefreshToken: cred.RefreshToken}

	tok, err := cred.OAuthConfig().TokenSource(r.withClient(ctx), stale).Token()
	if err != nil {
		return nil, fmt.Errorf("credstore: refreshing token: %w", err)
	}

	return cred.WithToken(tok), nil
}

func (r *OAuthRefresher) withClient(ctx context.Context) context.Context {
	if r.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
}

// TokenSource returns an oauth2.TokenSource for cred that refreshes
// transparently and writes every newly issued token back to the store. The
// returned source binds ctx, so ctx must outlive it.
func (s *Store) TokenSource(ctx context.Context, cred *Credential, httpClient *http.Client) oauth2.TokenSource {
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	return &persistingSource{
		ctx:    ctx,
		store:  s,
		cred:   cred.clone(),
		base:   cred.OAuthConfig().TokenSource(ctx, cred.Token()),
		last:   cred.AccessToken,
		logger: s.logger,
	}
}

// persistingSource wraps an auto-refreshing oauth2 source and saves each new
// access token it observes.
type persistingSource struct {
	ctx    context.Context
	store  *Store
	base   oauth2.TokenSource
	logger *slog.Logger

	mu   sync.Mutex
	cred *Credential
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		p.logger.Warn("token acquisition failed",
			slog.String("user_id", p.cred.UserID),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.last {
		return tok, nil
	}

	p.last = tok.AccessToken
	p.cred = p.cred.WithToken(tok)

	if err := p.store.Save(p.ctx, p.cred.UserID, p.cred); err != nil {
		p.logger.Warn("failed to persist refreshed token",
			slog.String("user_id", p.cred.UserID),
			slog.String("error", err.Error()),
		)
	} else {
		p.logger.Info("token refreshed mid-job",
			slog.String("user_id", p.cred.UserID),
			slog.Time("new_expiry", tok.Expiry),
			slog.Duration("valid_for", time.Until(tok.Expiry).Round(time.Second)),
		)
	}

	return tok, nil
}
