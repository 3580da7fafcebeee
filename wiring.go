package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tonimelisma/drivegram/internal/config"
	"github.com/tonimelisma/drivegram/internal/credstore"
	"github.com/tonimelisma/drivegram/internal/gdrive"
	"github.com/tonimelisma/drivegram/internal/session"
	"github.com/tonimelisma/drivegram/internal/state"
	"github.com/tonimelisma/drivegram/internal/transfer"
)

// httpClients separates the three traffic shapes the bot produces.
type httpClients struct {
	// api carries short metadata and token calls under a hard timeout.
	api *http.Client
	// transfer streams file content; the engine bounds each file with its
	// own deadline, so only the wait for headers is limited here.
	transfer *http.Client
	// telegram serves long polls and document uploads.
	telegram *http.Client
}

func newHTTPClients(cfg *config.Config) httpClients {
	requestTimeout := cfg.Network.RequestTimeoutDuration()

	return httpClients{
		api:      &http.Client{Timeout: requestTimeout},
		transfer: &http.Client{Transport: headerTimeoutTransport(requestTimeout)},
		telegram: &http.Client{
			Transport: headerTimeoutTransport(cfg.Telegram.PollTimeoutDuration() + requestTimeout),
		},
	}
}

func headerTimeoutTransport(d time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = d

	return t
}

// services are the storage handles shared by the commands. db is nil unless
// the sqlite backend is selected.
type services struct {
	creds *credstore.Store
	db    *state.DB
}

// openServices opens the configured credential backend and, for the sqlite
// backend, the job ledger that shares its database.
func openServices(ctx context.Context, cfg *config.Config, clients httpClients, logger *slog.Logger) (*services, error) {
	key, err := cfg.Storage.Key()
	if err != nil {
		return nil, err
	}

	var sealer *credstore.Sealer

	if key != nil {
		if sealer, err = credstore.NewSealer(key); err != nil {
			return nil, fmt.Errorf("creating credential sealer: %w", err)
		}
	}

	svc := &services{}

	var backend credstore.Backend

	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		db, err := state.Open(ctx, cfg.Storage.DatabasePath(), logger)
		if err != nil {
			return nil, err
		}

		svc.db = db
		backend = db.Credentials()
	default:
		backend = credstore.NewFileBackend(cfg.Storage.CredentialsPath(), logger)
	}

	svc.creds = credstore.NewStore(backend, credstore.NewOAuthRefresher(clients.api), sealer, logger)

	logger.Debug("storage ready",
		slog.String("backend", cfg.Storage.Backend),
		slog.Bool("sealed", sealer != nil),
	)

	return svc, nil
}

// jobs returns the ledger as a session.JobRecorder, or nil without one.
// The explicit nil keeps a nil *state.DB out of the interface.
func (s *services) jobs() session.JobRecorder {
	if s.db == nil {
		return nil
	}

	return s.db
}

func (s *services) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// errNoLedger is returned by commands that read the job ledger when the
// file backend is configured.
var errNoLedger = errors.New("the job ledger requires storage.backend = \"sqlite\"")

// remoteFactory binds Drive clients to a user's credential. Settings are read
// from the holder on every call, so a config reload applies to the next job.
// Metadata calls use the api client and content reads the transfer client;
// both share one persisting token source.
func remoteFactory(h *config.Holder, store *credstore.Store, clients httpClients, logger *slog.Logger) session.RemoteFactory {
	return func(ctx context.Context, userID string, cred *credstore.Credential) session.Remote {
		cfg := h.Config()

		meta := gdrive.NewClient(cfg.Google.APIURL, clients.api, cfg.Google.APIKey, cfg.Network.UserAgent, logger)
		content := gdrive.NewClient(cfg.Google.APIURL, clients.transfer, cfg.Google.APIKey, cfg.Network.UserAgent, logger)

		if cred != nil {
			ts := store.TokenSource(ctx, cred, clients.api)
			meta = meta.WithTokenSource(ts)
			content = content.WithTokenSource(ts)
		}

		logger.Debug("drive remote bound",
			slog.String("user_id", userID),
			slog.Bool("authenticated", cred != nil),
		)

		return &gdrive.Remote{
			Client:     content,
			Enumerator: gdrive.NewEnumerator(meta, cfg.Transfers.MaxDepth, logger),
		}
	}
}

// transferLimits adapts the holder's parsed limits to the engine's type.
func transferLimits(h *config.Holder) transfer.LimitsFunc {
	return func() transfer.Limits {
		l := h.Limits()

		return transfer.Limits{
			LargeFileThreshold: l.LargeFileThreshold,
			MaxUploadSize:      l.MaxUploadSize,
			ChunkSize:          l.ChunkSize,
		}
	}
}

func interFileDelay(h *config.Holder) func() time.Duration {
	return func() time.Duration { return h.Limits().InterFileDelay }
}
