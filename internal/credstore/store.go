package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoRefreshToken is returned by a Refresher asked to renew a credential
// that carries no refresh token.
var ErrNoRefreshToken = errors.New("credstore: credential has no refresh token")

// Backend stores opaque per-user records. Get returns nil, nil when no
// record exists. Put must replace a record atomically.
type Backend interface {
	Get(ctx context.Context, userID string) ([]byte, error)
	Put(ctx context.Context, userID string, blob []byte) error
	Delete(ctx context.Context, userID string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// Refresher exchanges a credential's refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)
}

// envelope is the stored form of a record: either a plain credential or a
// base64 sealed blob under "sealed".
type envelope struct {
	Sealed []byte `json:"sealed,omitempty"`
}

// Store is the credential lifecycle manager: persistence, expiry detection,
// refresh, and self-healing deletion of unusable records.
type Store struct {
	backend   Backend
	refresher Refresher
	sealer    *Sealer
	logger    *slog.Logger
	group     singleflight.Group

	// nowFunc returns the current time. Tests override it.
	nowFunc func() time.Time
}

// NewStore creates a Store. sealer may be nil to store records in plain JSON.
func NewStore(backend Backend, refresher Refresher, sealer *Sealer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		backend:   backend,
		refresher: refresher,
		sealer:    sealer,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// Save persists cred under userID, replacing any existing record.
func (s *Store) Save(ctx context.Context, userID string, cred *Credential) error {
	blob, err := s.encode(userID, cred)
	if err != nil {
		return err
	}

	if err := s.backend.Put(ctx, userID, blob); err != nil {
		return fmt.Errorf("credstore: saving credential: %w", err)
	}

	s.logger.Debug("credential saved",
		slog.String("user_id", userID),
		slog.Time("expiry", cred.Expiry),
	)

	return nil
}

// Load returns a usable credential for userID, or nil if the user has none.
// Expired credentials are refreshed and re-saved first. A record that cannot
// be decoded or refreshed is deleted and reported as absent, so the caller
// treats the user as logged out. Concurrent loads for one user share a
// single refresh.
func (s *Store) Load(ctx context.Context, userID string) (*Credential, error) {
	v, err, _ := s.group.Do(userID, func() (any, error) {
		return s.load(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	cred, _ := v.(*Credential) //nolint:errcheck // nil means absent
	if cred == nil {
		return nil, nil //nolint:nilnil // nil credential means "not logged in"
	}

	return cred.clone(), nil
}

func (s *Store) load(ctx context.Context, userID string) (*Credential, error) {
	blob, err := s.backend.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("credstore: loading credential: %w", err)
	}

	if blob == nil {
		return nil, nil //nolint:nilnil // absent
	}

	cred, err := s.decode(userID, blob)
	if err != nil {
		if errors.Is(err, errNoSealer) {
			s.logger.Warn("sealed credential found but no encryption key is configured",
				slog.String("user_id", userID),
			)

			return nil, nil //nolint:nilnil // unreadable without the key; keep the record
		}

		s.logger.Warn("discarding unreadable credential",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		s.discard(ctx, userID)

		return nil, nil //nolint:nilnil // self-healed to absent
	}

	if !cred.Expired(s.nowFunc()) {
		return cred, nil
	}

	return s.refresh(ctx, userID, cred)
}

// refresh renews an expired credential. Any failure deletes the record.
func (s *Store) refresh(ctx context.Context, userID string, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" || s.refresher == nil {
		s.logger.Info("credential expired without refresh token, removing",
			slog.String("user_id", userID),
		)
		s.discard(ctx, userID)

		return nil, nil //nolint:nilnil // expired and unrenewable
	}

	refreshed, err := s.refresher.Refresh(ctx, cred)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("credstore: refresh canceled: %w", ctx.Err())
		}

		s.logger.Info("credential refresh failed, removing",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		s.discard(ctx, userID)

		return nil, nil //nolint:nilnil // revoked or invalid refresh token
	}

	refreshed.UserID = userID

	if err := s.Save(ctx, userID, refreshed); err != nil {
		// The refreshed token is still usable for this job.
		s.logger.Warn("persisting refreshed credential failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("credential refreshed",
		slog.String("user_id", userID),
		slog.Time("expiry", refreshed.Expiry),
	)

	return refreshed, nil
}

// Delete removes userID's credential and reports whether one existed.
func (s *Store) Delete(ctx context.Context, userID string) (bool, error) {
	existed, err := s.backend.Delete(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("credstore: deleting credential: %w", err)
	}

	return existed, nil
}

// List returns the IDs of every user with a stored record.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("credstore: listing credentials: %w", err)
	}

	return ids, nil
}

// Peek decodes userID's record without refreshing or deleting it. Used for
// read-only inspection from the CLI.
func (s *Store) Peek(ctx context.Context, userID string) (*Credential, error) {
	blob, err := s.backend.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("credstore: loading credential: %w", err)
	}

	if blob == nil {
		return nil, nil //nolint:nilnil // absent
	}

	return s.decode(userID, blob)
}

func (s *Store) discard(ctx context.Context, userID string) {
	if _, err := s.backend.Delete(ctx, userID); err != nil {
		s.logger.Warn("deleting credential failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

var errNoSealer = errors.New("credstore: record is sealed but no key is configured")

func (s *Store) encode(userID string, cred *Credential) ([]byte, error) {
	plain, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("credstore: encoding credential: %w", err)
	}

	if s.sealer == nil {
		return plain, nil
	}

	sealed, err := s.sealer.Seal(userID, plain)
	if err != nil {
		return nil, err
	}

	blob, err := json.Marshal(envelope{Sealed: sealed})
	if err != nil {
		return nil, fmt.Errorf("credstore: encoding sealed credential: %w", err)
	}

	return blob, nil
}

func (s *Store) decode(userID string, blob []byte) (*Credential, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("credstore: decoding record: %w", err)
	}

	plain := blob

	if env.Sealed != nil {
		if s.sealer == nil {
			return nil, errNoSealer
		}

		opened, err := s.sealer.Open(userID, env.Sealed)
		if err != nil {
			return nil, err
		}

		plain = opened
	}

	var cred Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return nil, fmt.Errorf("credstore: decoding credential: %w", err)
	}

	if cred.AccessToken == "" && cred.RefreshToken == "" {
		return nil, errors.New("credstore: record carries no token")
	}

	cred.UserID = userID

	return &cred, nil
}
