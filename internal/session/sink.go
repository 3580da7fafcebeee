package session

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/drivegram/internal/transfer"
)

// fileSink renders one file's progress onto that file's message. Each file
// gets its own sink; nothing is shared across iterations.
type fileSink struct {
	o    *Orchestrator
	ctx  context.Context //nolint:containedctx // bound to a single file's lifetime
	ref  MessageRef
	task fileTask
	last string
}

// Progress implements transfer.ProgressSink.
func (s *fileSink) Progress(ev transfer.ProgressEvent) {
	s.task.job.progress(ev)

	size := max(s.task.item.Size, ev.Total)
	s.set(progressText(ev, size, s.task.index, s.task.total, s.task.item.Path))
}

// set edits the message when the text changed. Progress is dropped when the
// message could not be created.
func (s *fileSink) set(text string) {
	if text == s.last || s.ref.MessageID == 0 {
		return
	}

	if err := s.o.deps.Notifier.Edit(s.ctx, s.ref, text); err != nil {
		s.o.logger.Debug("progress edit failed",
			slog.Int64("chat_id", s.ref.ChatID),
			slog.String("error", err.Error()),
		)

		return
	}

	s.last = text
}

// result reports the file's terminal outcome. It is always delivered, as a
// new message if the progress message is unusable.
func (s *fileSink) result(text string) {
	if s.ref.MessageID == 0 {
		s.o.send(s.ctx, s.task.chatID, text)
		return
	}

	s.set(text)
}
