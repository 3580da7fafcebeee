// Package transfer moves one file from the remote source to the chat
// destination: it stages the bytes in a scratch directory with progress
// reporting, applies the destination's size limit, uploads, and always
// cleans up the staged copy.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tonimelisma/drivegram/internal/gdrive"
)

// Scratch permissions.
const (
	scratchDirPerms  = 0o700
	scratchFilePerms = 0o600
)

// Default limits, matching the config defaults.
const (
	DefaultLargeFileThreshold = 50 * sizeMB
	DefaultMaxUploadSize      = 2000 * sizeMB
	DefaultChunkSize          = 5 * sizeMB
	DefaultTransferTimeout    = 10 * time.Minute
)

// Source streams an item's bytes.
type Source interface {
	OpenContent(ctx context.Context, itemID string) (io.ReadCloser, int64, error)
}

// Document is one file handed to the destination.
type Document struct {
	FileName string
	Caption  string
	Size     int64
	Body     io.Reader
}

// Destination receives uploaded files.
type Destination interface {
	SendDocument(ctx context.Context, doc Document) error
}

// Limits are the size thresholds in effect for one transfer. They are read
// per file so a config reload applies to the next file.
type Limits struct {
	LargeFileThreshold int64
	MaxUploadSize      int64
	ChunkSize          int64
}

// LimitsFunc returns the current limits.
type LimitsFunc func() Limits

// StaticLimits returns a LimitsFunc that always returns l.
func StaticLimits(l Limits) LimitsFunc {
	return func() Limits { return l }
}

// Options configure an Engine.
type Options struct {
	ScratchDir string
	Limits     LimitsFunc

	// TransferTimeout is how long a download or upload may go without
	// moving a byte. A slow transfer that keeps moving never hits it.
	TransferTimeout time.Duration
}

// Engine runs the per-file download and upload steps.
type Engine struct {
	scratchDir string
	limits     LimitsFunc
	timeout    time.Duration
	logger     *slog.Logger

	// nowFunc returns the current time. Tests override it.
	nowFunc func() time.Time
}

// NewEngine creates an Engine. Missing options fall back to defaults.
func NewEngine(opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.ScratchDir == "" {
		return nil, errors.New("transfer: scratch directory is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if opts.Limits == nil {
		opts.Limits = StaticLimits(Limits{})
	}

	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = DefaultTransferTimeout
	}

	return &Engine{
		scratchDir: opts.ScratchDir,
		limits:     opts.Limits,
		timeout:    opts.TransferTimeout,
		logger:     logger,
		nowFunc:    time.Now,
	}, nil
}

// currentLimits returns the limits with zero fields replaced by defaults.
func (e *Engine) currentLimits() Limits {
	l := e.limits()

	if l.LargeFileThreshold <= 0 {
		l.LargeFileThreshold = DefaultLargeFileThreshold
	}

	if l.MaxUploadSize <= 0 {
		l.MaxUploadSize = DefaultMaxUploadSize
	}

	if l.ChunkSize <= 0 {
		l.ChunkSize = DefaultChunkSize
	}

	return l
}

// Gate decides, before any network call, whether item may be transferred.
// Files above the large-file threshold require an authenticated user.
func (e *Engine) Gate(item gdrive.Item, authenticated bool) error {
	if !authenticated && item.Size > e.currentLimits().LargeFileThreshold {
		return ErrLoginRequired
	}

	return nil
}

// ScratchPath returns where item is staged for owner: a per-owner
// subdirectory holding <item id>-<name>. Two items that share a name
// never share a scratch file.
func (e *Engine) ScratchPath(owner string, item gdrive.Item) string {
	return filepath.Join(e.scratchDir, SanitizeName(owner, "anonymous"), SanitizeName(item.ID+"-"+item.Name, item.ID))
}

// Download stages item's content in the scratch directory and returns the
// local path. A staged file whose size already equals item.Size (> 0) is
// reused without any network read. On failure the partial file is removed;
// local faults return *IOError and source faults *RemoteError.
func (e *Engine) Download(ctx context.Context, src Source, owner string, item gdrive.Item, sink ProgressSink) (string, error) {
	path := e.ScratchPath(owner, item)
	limits := e.currentLimits()

	if item.Size > 0 {
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() && fi.Size() == item.Size {
			e.logger.Info("reusing staged file",
				slog.String("item_id", item.ID),
				slog.Int64("size", item.Size),
			)

			newThrottle(StageDownloading, item.Name, item.Size, sink, e.nowFunc).finish(item.Size)

			return path, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), scratchDirPerms); err != nil {
		return "", &IOError{Op: "creating scratch directory", Path: filepath.Dir(path), Err: err}
	}

	ctx, idle, stopIdle := withIdleTimeout(ctx, e.timeout)
	defer stopIdle()

	body, length, err := src.OpenContent(ctx, item.ID)
	if err != nil {
		return "", &RemoteError{ItemID: item.ID, Err: stallCause(ctx, err)}
	}
	defer body.Close()

	idle.kick()

	total := item.Size
	if total <= 0 && length > 0 {
		total = length
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, scratchFilePerms)
	if err != nil {
		return "", &IOError{Op: "creating", Path: path, Err: err}
	}

	success := false
	defer func() {
		if !success {
			f.Close()

			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				e.logger.Warn("removing partial download failed",
					slog.String("path", path),
					slog.String("error", rmErr.Error()),
				)
			}
		}
	}()

	e.logger.Info("downloading",
		slog.String("item_id", item.ID),
		slog.String("path", item.Path),
		slog.Int64("size", total),
	)

	th := newThrottle(StageDownloading, item.Name, total, sink, e.nowFunc)
	th.start()

	// Every read, not every chunk, proves the stream is alive.
	counted := &countingReader{r: body, onRead: func(int64) { idle.kick() }}

	written, err := copyChunks(ctx, f, counted, item.ID, limits.ChunkSize, th)
	if err != nil {
		return "", err
	}

	if err := f.Close(); err != nil {
		return "", &IOError{Op: "closing", Path: path, Err: err}
	}

	if written == 0 && item.Size > 0 {
		return "", &RemoteError{ItemID: item.ID, Err: ErrEmptyContent}
	}

	th.finish(written)
	success = true

	e.logger.Debug("download complete",
		slog.String("item_id", item.ID),
		slog.Int64("bytes", written),
	)

	return path, nil
}

// copyChunks copies src to dst in chunkSize reads, offering the running
// total to th after each chunk. Read failures are remote; write failures
// are local.
func copyChunks(ctx context.Context, dst *os.File, src io.Reader, itemID string, chunkSize int64, th *throttle) (int64, error) {
	buf := make([]byte, chunkSize)

	var written int64

	for {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, &IOError{Op: "writing", Path: dst.Name(), Err: werr}
			}

			written += int64(n)
			th.update(written)
		}

		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			return written, nil
		}

		if rerr != nil {
			if ctx.Err() != nil {
				rerr = stallCause(ctx, ctx.Err())
			}

			return written, &RemoteError{ItemID: itemID, Err: fmt.Errorf("%w: %w", gdrive.ErrTransient, rerr)}
		}
	}
}

// Upload is one staged file ready to send.
type Upload struct {
	LocalPath    string
	FileName     string
	Caption      string
	DeclaredSize int64
}

// Upload sends a staged file to dst and reports whether it was delivered.
// A file above the upload limit returns *TooLargeError without sending
// anything; a destination failure returns *RejectedError. The staged file
// is removed on every path.
func (e *Engine) Upload(ctx context.Context, dst Destination, up Upload, sink ProgressSink) (bool, error) {
	defer func() {
		if err := os.Remove(up.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("removing staged file failed",
				slog.String("path", up.LocalPath),
				slog.String("error", err.Error()),
			)
		}
	}()

	limit := e.currentLimits().MaxUploadSize
	if up.DeclaredSize > limit {
		return false, &TooLargeError{Size: up.DeclaredSize, Limit: limit}
	}

	f, err := os.Open(up.LocalPath)
	if err != nil {
		return false, &IOError{Op: "opening", Path: up.LocalPath, Err: err}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return false, &IOError{Op: "stat", Path: up.LocalPath, Err: err}
	}

	// The declared size is 0 for native documents; trust the staged bytes too.
	if fi.Size() > limit {
		return false, &TooLargeError{Size: fi.Size(), Limit: limit}
	}

	ctx, idle, stopIdle := withIdleTimeout(ctx, e.timeout)
	defer stopIdle()

	th := newThrottle(StageUploading, up.FileName, fi.Size(), sink, e.nowFunc)
	th.start()

	body := &countingReader{
		r: f,
		onRead: func(n int64) {
			idle.kick()
			th.update(n)
		},
		onEOF: idle.pause,
	}
	defer body.stop()

	e.logger.Info("uploading",
		slog.String("file", up.FileName),
		slog.Int64("size", fi.Size()),
	)

	err = dst.SendDocument(ctx, Document{
		FileName: up.FileName,
		Caption:  up.Caption,
		Size:     fi.Size(),
		Body:     body,
	})

	// A destination may still hold the body after returning. Nothing it
	// reads from here on reaches the sink or the closed file.
	body.stop()

	if err != nil {
		return false, &RejectedError{FileName: up.FileName, Err: stallCause(ctx, err)}
	}

	th.finish(fi.Size())

	return true, nil
}

// errReaderStopped is returned to a destination that reads the upload body
// after Upload has returned.
var errReaderStopped = errors.New("transfer: upload body read after the upload finished")

// countingReader reports the cumulative bytes read after every Read and
// calls onEOF once the source is exhausted. After stop returns, no callback
// runs again and every Read fails.
type countingReader struct {
	r      io.Reader
	onRead func(int64)
	onEOF  func()

	mu      sync.Mutex
	n       int64
	stopped bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return 0, errReaderStopped
	}

	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.onRead(c.n)
	}

	if errors.Is(err, io.EOF) && c.onEOF != nil {
		c.onEOF()
	}

	return n, err
}

func (c *countingReader) stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}
