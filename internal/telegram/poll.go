package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultPollTimeout is the long-poll wait passed to getUpdates.
const DefaultPollTimeout = 50 * time.Second

// Poll long-polls for updates until ctx is canceled, calling handle for each
// one in order. Offsets are acknowledged on the next call, so an update is
// delivered to handle at most once per process. Transient failures back off
// and retry. A rejected token, or a second poller on the same token, is
// fatal.
func (c *Client) Poll(ctx context.Context, timeout time.Duration, handle func(Update)) error {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	var (
		offset   int64
		failures int
	)

	c.logger.Info("polling for updates", slog.Duration("timeout", timeout))

	for {
		updates, err := c.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrConflict) {
				return err
			}

			backoff := c.calcBackoff(failures)
			failures++

			c.logger.Warn("getUpdates failed",
				slog.Int("failures", failures),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return sleepErr
			}

			continue
		}

		failures = 0

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}

			handle(u)
		}
	}
}
