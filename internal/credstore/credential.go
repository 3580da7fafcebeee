// Package credstore persists per-user OAuth credentials for the Drive API.
// Records are keyed by chat user ID, refreshed on load when expired, and
// deleted when refresh fails, so callers only ever see usable credentials
// or nothing.
package credstore

import (
	"slices"
	"time"

	"golang.org/x/oauth2"
)

// expirySkew treats a token as expired slightly before its real expiry so a
// request never leaves with a token that dies in flight.
const expirySkew = 10 * time.Second

// Credential is the persisted authorization of one user. The JSON field
// names match the on-disk credential file format.
type Credential struct {
	UserID       string    `json:"-"`
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// Expired reports whether the access token is past (or within expirySkew of)
// its expiry. A zero Expiry never expires.
func (c *Credential) Expired(now time.Time) bool {
	if c.Expiry.IsZero() {
		return false
	}

	return !now.Add(expirySkew).Before(c.Expiry)
}

// Token converts the credential to an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.Expiry,
	}
}

// OAuthConfig rebuilds the client configuration the credential was issued
// under. Refreshing needs nothing beyond what the record carries.
func (c *Credential) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       slices.Clone(c.Scopes),
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.TokenURI,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// WithToken returns a copy of c carrying tok. An empty refresh token in tok
// keeps the existing one, since providers usually omit it on refresh.
func (c *Credential) WithToken(tok *oauth2.Token) *Credential {
	out := c.clone()
	out.AccessToken = tok.AccessToken
	out.Expiry = tok.Expiry

	if tok.RefreshToken != "" {
		out.RefreshToken = tok.RefreshToken
	}

	return out
}

// FromToken builds a credential for userID from a freshly exchanged token.
func FromToken(userID string, cfg *oauth2.Config, tok *oauth2.Token) *Credential {
	return &Credential{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     cfg.Endpoint.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       slices.Clone(cfg.Scopes),
		Expiry:       tok.Expiry,
	}
}

func (c *Credential) clone() *Credential {
	out := *c
	out.Scopes = slices.Clone(c.Scopes)

	return &out
}
