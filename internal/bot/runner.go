package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/tonimelisma/drivegram/internal/session"
	"github.com/tonimelisma/drivegram/internal/telegram"
)

// DefaultMaxConcurrent caps in-flight update handlers.
const DefaultMaxConcurrent = 64

// Poller delivers updates until ctx is canceled.
type Poller interface {
	Poll(ctx context.Context, timeout time.Duration, handle func(telegram.Update)) error
}

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, ev session.Event)
}

// Runner polls for updates and handles each on its own goroutine. When the
// cap is reached, polling waits for a free slot.
type Runner struct {
	poller      Poller
	handler     Handler
	auth        AuthClassifier
	pollTimeout time.Duration
	sem         chan struct{}
	logger      *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(poller Poller, handler Handler, auth AuthClassifier, pollTimeout time.Duration, maxConcurrent int, logger *slog.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		poller:      poller,
		handler:     handler,
		auth:        auth,
		pollTimeout: pollTimeout,
		sem:         make(chan struct{}, maxConcurrent),
		logger:      logger,
	}
}

// Run polls until ctx is canceled, then waits for in-flight handlers.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	err := r.poller.Poll(ctx, r.pollTimeout, func(u telegram.Update) {
		ev, ok := Parse(u, r.auth)
		if !ok {
			r.logger.Debug("ignoring update", slog.Int64("update_id", u.UpdateID))
			return
		}

		select {
		case r.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer func() { <-r.sem }()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("panic in update handler",
						slog.Int64("update_id", u.UpdateID),
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
					)
				}
			}()

			r.logger.Debug("handling update",
				slog.Int64("update_id", u.UpdateID),
				slog.String("event", eventName(ev)),
			)

			r.handler.Handle(ctx, ev)
		}()
	})

	if ctx.Err() != nil {
		r.logger.Info("polling stopped, waiting for active handlers")
		return nil
	}

	return err
}

func eventName(ev session.Event) string {
	switch ev.(type) {
	case session.LinkSubmitted:
		return "link"
	case session.AuthCodeSubmitted:
		return "auth_code"
	case session.LoginRequested:
		return "login"
	case session.LogoutRequested:
		return "logout"
	case session.StatusRequested:
		return "status"
	case session.HelpRequested:
		return "help"
	default:
		return "text"
	}
}
