package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivegram/internal/gdrive"
)

// fakeSource serves fixed content per item ID and counts opens.
type fakeSource struct {
	mu      sync.Mutex
	content map[string][]byte
	openErr error
	readErr error
	opens   int
}

func (f *fakeSource) OpenContent(_ context.Context, id string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	f.opens++
	f.mu.Unlock()

	if f.openErr != nil {
		return nil, 0, f.openErr
	}

	data, ok := f.content[id]
	if !ok {
		return nil, 0, &gdrive.APIError{StatusCode: 404, Err: gdrive.ErrNotFound}
	}

	var r io.Reader = bytes.NewReader(data)
	if f.readErr != nil {
		r = io.MultiReader(bytes.NewReader(data[:len(data)/2]), &errReader{err: f.readErr})
	}

	return io.NopCloser(r), int64(len(data)), nil
}

type errReader struct{ err error }

func (e *errReader) Read([]byte) (int, error) { return 0, e.err }

// fakeDestination records every document it receives.
type fakeDestination struct {
	sent    []Document
	bodies  [][]byte
	sendErr error
}

func (f *fakeDestination) SendDocument(_ context.Context, doc Document) error {
	if f.sendErr != nil {
		return f.sendErr
	}

	data, err := io.ReadAll(doc.Body)
	if err != nil {
		return err
	}

	f.sent = append(f.sent, doc)
	f.bodies = append(f.bodies, data)

	return nil
}

// recordingSink keeps every event.
type recordingSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *recordingSink) Progress(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.events)
}

func (r *recordingSink) percents(stage Stage) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []int

	for _, ev := range r.events {
		if ev.Stage == stage {
			out = append(out, ev.Percent)
		}
	}

	return out
}

func newTestEngine(t *testing.T, limits Limits) *Engine {
	t.Helper()

	e, err := NewEngine(Options{
		ScratchDir: t.TempDir(),
		Limits:     StaticLimits(limits),
	}, slog.Default())
	require.NoError(t, err)

	return e
}

func TestNewEngine_RequiresScratchDir(t *testing.T) {
	_, err := NewEngine(Options{}, nil)
	require.Error(t, err)
}

func TestGate(t *testing.T) {
	e := newTestEngine(t, Limits{LargeFileThreshold: 100})

	small := gdrive.Item{ID: "s", Name: "s", Size: 100}
	big := gdrive.Item{ID: "b", Name: "b", Size: 101}

	assert.NoError(t, e.Gate(small, false))
	assert.NoError(t, e.Gate(big, true))
	assert.ErrorIs(t, e.Gate(big, false), ErrLoginRequired)
}

func TestDownload_WritesFileAndReportsProgress(t *testing.T) {
	e := newTestEngine(t, Limits{ChunkSize: 10})
	payload := bytes.Repeat([]byte("x"), 100)
	src := &fakeSource{content: map[string][]byte{"f1": payload}}
	sink := &recordingSink{}

	item := gdrive.Item{ID: "f1", Name: "report.pdf", Size: 100, Path: "docs/report.pdf"}

	path, err := e.Download(t.Context(), src, "42", item, sink)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, filepath.Join(e.scratchDir, "42", "f1-report.pdf"), path)

	pcts := sink.percents(StageDownloading)
	require.NotEmpty(t, pcts)
	assert.Equal(t, 0, pcts[0])
	assert.Equal(t, 100, pcts[len(pcts)-1])
	assert.True(t, sink.events[len(sink.events)-1].Final)

	for i := 1; i < len(pcts); i++ {
		assert.Greater(t, pcts[i], pcts[i-1], "percent must strictly increase")
	}
}

func TestDownload_ReusesStagedFile(t *testing.T) {
	e := newTestEngine(t, Limits{})
	item := gdrive.Item{ID: "f1", Name: "a.bin", Size: 4}

	path := e.ScratchPath("7", item)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0o600))

	src := &fakeSource{}
	sink := &recordingSink{}

	got, err := e.Download(t.Context(), src, "7", item, sink)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Zero(t, src.opens)

	require.Len(t, sink.events, 1)
	assert.Equal(t, 100, sink.events[0].Percent)
	assert.True(t, sink.events[0].Final)
}

func TestDownload_SizeMismatchRedownloads(t *testing.T) {
	e := newTestEngine(t, Limits{})
	item := gdrive.Item{ID: "f1", Name: "a.bin", Size: 4}

	path := e.ScratchPath("7", item)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("ab"), 0o600))

	src := &fakeSource{content: map[string][]byte{"f1": []byte("wxyz")}}

	_, err := e.Download(t.Context(), src, "7", item, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, src.opens)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "wxyz", string(data))
}

func TestDownload_OpenFailureIsRemote(t *testing.T) {
	e := newTestEngine(t, Limits{})
	src := &fakeSource{content: map[string][]byte{}}

	_, err := e.Download(t.Context(), src, "1", gdrive.Item{ID: "gone", Name: "x"}, nil)
	require.Error(t, err)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "gone", re.ItemID)
	assert.ErrorIs(t, err, gdrive.ErrNotFound)
}

func TestDownload_ReadFailureRemovesPartial(t *testing.T) {
	e := newTestEngine(t, Limits{ChunkSize: 4})
	src := &fakeSource{
		content: map[string][]byte{"f1": []byte("0123456789")},
		readErr: errors.New("connection reset"),
	}
	item := gdrive.Item{ID: "f1", Name: "a.bin", Size: 10}

	_, err := e.Download(t.Context(), src, "1", item, nil)
	require.Error(t, err)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, gdrive.ErrTransient)

	_, statErr := os.Stat(e.ScratchPath("1", item))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestDownload_UnwritableScratchIsIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	e, err := NewEngine(Options{ScratchDir: blocker}, nil)
	require.NoError(t, err)

	src := &fakeSource{content: map[string][]byte{"f1": []byte("x")}}

	_, err = e.Download(t.Context(), src, "1", gdrive.Item{ID: "f1", Name: "a"}, nil)

	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.Zero(t, src.opens)
}

func TestDownload_OwnersDoNotShareScratch(t *testing.T) {
	e := newTestEngine(t, Limits{})
	item := gdrive.Item{ID: "f1", Name: "same.txt"}

	assert.NotEqual(t, e.ScratchPath("1", item), e.ScratchPath("2", item))
}

func TestDownload_SameNameDifferentItemNotReused(t *testing.T) {
	e := newTestEngine(t, Limits{})
	first := gdrive.Item{ID: "a1", Name: "report.pdf", Size: 4, Path: "q1/report.pdf"}
	second := gdrive.Item{ID: "b2", Name: "report.pdf", Size: 4, Path: "q2/report.pdf"}

	require.NotEqual(t, e.ScratchPath("7", first), e.ScratchPath("7", second))

	// A leftover from the first item must not stand in for the second.
	path := e.ScratchPath("7", first)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("old!"), 0o600))

	src := &fakeSource{content: map[string][]byte{"b2": []byte("new!")}}

	got, err := e.Download(t.Context(), src, "7", second, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, src.opens)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "new!", string(data))
}

func TestUpload_SendsAndRemovesScratch(t *testing.T) {
	e := newTestEngine(t, Limits{})
	path := filepath.Join(e.scratchDir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	dst := &fakeDestination{}
	sink := &recordingSink{}

	ok, err := e.Upload(t.Context(), dst, Upload{
		LocalPath:    path,
		FileName:     "file.txt",
		Caption:      "dir/file.txt (5 B)",
		DeclaredSize: 5,
	}, sink)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, dst.sent, 1)
	assert.Equal(t, "file.txt", dst.sent[0].FileName)
	assert.Equal(t, "dir/file.txt (5 B)", dst.sent[0].Caption)
	assert.Equal(t, int64(5), dst.sent[0].Size)
	assert.Equal(t, "hello", string(dst.bodies[0]))

	pcts := sink.percents(StageUploading)
	assert.Equal(t, 0, pcts[0])
	assert.Equal(t, 100, pcts[len(pcts)-1])

	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestUpload_TooLargeSendsNothing(t *testing.T) {
	e := newTestEngine(t, Limits{MaxUploadSize: 3})
	path := filepath.Join(e.scratchDir, "big.bin")
	require.NoError(t, os.WriteFile(path, []byte("toolarge"), 0o600))

	dst := &fakeDestination{}

	ok, err := e.Upload(t.Context(), dst, Upload{LocalPath: path, FileName: "big.bin", DeclaredSize: 8}, nil)
	assert.False(t, ok)

	var tl *TooLargeError
	require.ErrorAs(t, err, &tl)
	assert.Equal(t, int64(8), tl.Size)
	assert.Equal(t, int64(3), tl.Limit)
	assert.Empty(t, dst.sent)

	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestUpload_ActualSizeCheckedWhenUndeclared(t *testing.T) {
	e := newTestEngine(t, Limits{MaxUploadSize: 3})
	path := filepath.Join(e.scratchDir, "export.pdf")
	require.NoError(t, os.WriteFile(path, []byte("0123"), 0o600))

	dst := &fakeDestination{}

	_, err := e.Upload(t.Context(), dst, Upload{LocalPath: path, FileName: "export.pdf"}, nil)

	var tl *TooLargeError
	require.ErrorAs(t, err, &tl)
	assert.Empty(t, dst.sent)
}

func TestUpload_RejectedRemovesScratch(t *testing.T) {
	e := newTestEngine(t, Limits{})
	path := filepath.Join(e.scratchDir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))

	dst := &fakeDestination{sendErr: errors.New("Bad Request: file is empty")}

	ok, err := e.Upload(t.Context(), dst, Upload{LocalPath: path, FileName: "a.txt", DeclaredSize: 1}, nil)
	assert.False(t, ok)

	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "a.txt", rej.FileName)
	assert.True(t, strings.Contains(err.Error(), "file is empty"))

	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestUpload_MissingFileIsIOError(t *testing.T) {
	e := newTestEngine(t, Limits{})

	_, err := e.Upload(t.Context(), &fakeDestination{}, Upload{LocalPath: filepath.Join(e.scratchDir, "nope")}, nil)

	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
}

func TestLimits_ReadPerCall(t *testing.T) {
	limit := int64(10)

	e, err := NewEngine(Options{
		ScratchDir: t.TempDir(),
		Limits:     func() Limits { return Limits{LargeFileThreshold: limit} },
	}, nil)
	require.NoError(t, err)

	item := gdrive.Item{ID: "x", Size: 20}
	assert.ErrorIs(t, e.Gate(item, false), ErrLoginRequired)

	limit = 30
	assert.NoError(t, e.Gate(item, false))
}

func newTimeoutEngine(t *testing.T, timeout time.Duration) *Engine {
	t.Helper()

	e, err := NewEngine(Options{ScratchDir: t.TempDir(), TransferTimeout: timeout}, nil)
	require.NoError(t, err)

	return e
}

func TestDownload_StalledOpenTimesOut(t *testing.T) {
	e := newTimeoutEngine(t, 50*time.Millisecond)

	_, err := e.Download(t.Context(), ctxSource{}, "1", gdrive.Item{ID: "f", Name: "f"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStalled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDownload_StalledStreamTimesOut(t *testing.T) {
	e := newTimeoutEngine(t, 200*time.Millisecond)
	src := &pacedSource{data: []byte("abcdefgh"), stallAfter: 3}
	item := gdrive.Item{ID: "f", Name: "f", Size: 8}

	_, err := e.Download(t.Context(), src, "1", item, nil)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, ErrStalled)
	assert.ErrorIs(t, err, gdrive.ErrTransient)

	_, statErr := os.Stat(e.ScratchPath("1", item))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestDownload_SlowSteadyStreamCompletes(t *testing.T) {
	// 20 reads 20ms apart take twice the timeout in total.
	e := newTimeoutEngine(t, 200*time.Millisecond)
	payload := bytes.Repeat([]byte("z"), 20)
	src := &pacedSource{data: payload, gap: 20 * time.Millisecond}
	item := gdrive.Item{ID: "f", Name: "f", Size: 20}

	path, err := e.Download(t.Context(), src, "1", item, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestUpload_StalledDestinationTimesOut(t *testing.T) {
	e := newTimeoutEngine(t, 50*time.Millisecond)
	path := filepath.Join(e.scratchDir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	dst := &pacedDestination{stallAfter: 1}

	ok, err := e.Upload(t.Context(), dst, Upload{LocalPath: path, FileName: "a.txt", DeclaredSize: 3}, nil)
	assert.False(t, ok)

	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.ErrorIs(t, err, ErrStalled)
}

func TestUpload_SlowSteadyDestinationCompletes(t *testing.T) {
	e := newTimeoutEngine(t, 200*time.Millisecond)
	path := filepath.Join(e.scratchDir, "a.txt")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("u"), 20), 0o600))

	dst := &pacedDestination{gap: 20 * time.Millisecond}

	ok, err := e.Upload(t.Context(), dst, Upload{LocalPath: path, FileName: "a.txt", DeclaredSize: 20}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 20, dst.received)
}

func TestUpload_NoProgressAfterReturn(t *testing.T) {
	e := newTestEngine(t, Limits{})
	path := filepath.Join(e.scratchDir, "big.bin")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("b"), 4<<20), 0o600))

	dst := &abandoningDestination{
		readBeforeFail: 256 << 10,
		release:        make(chan struct{}),
		done:           make(chan error, 1),
	}
	sink := &recordingSink{}

	_, err := e.Upload(t.Context(), dst, Upload{LocalPath: path, FileName: "big.bin", DeclaredSize: 4 << 20}, sink)
	require.Error(t, err)

	seen := sink.count()
	close(dst.release)

	// The destination keeps reading in the background until the body
	// refuses it.
	select {
	case readErr := <-dst.done:
		assert.ErrorIs(t, readErr, errReaderStopped)
	case <-time.After(5 * time.Second):
		t.Fatal("background reader never stopped")
	}

	assert.Equal(t, seen, sink.count(), "progress reported after Upload returned")

	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, err.Error(), "Bad Request")
}

// ctxSource fails with the context error once the context is done.
type ctxSource struct{}

func (ctxSource) OpenContent(ctx context.Context, _ string) (io.ReadCloser, int64, error) {
	<-ctx.Done()

	return nil, 0, ctx.Err()
}

// pacedSource returns one byte per Read, waiting gap before each. After
// stallAfter bytes (when > 0) it blocks until the context ends.
type pacedSource struct {
	data       []byte
	gap        time.Duration
	stallAfter int
}

func (p *pacedSource) OpenContent(ctx context.Context, _ string) (io.ReadCloser, int64, error) {
	return io.NopCloser(&pacedReader{ctx: ctx, src: p}), int64(len(p.data)), nil
}

type pacedReader struct {
	ctx context.Context
	src *pacedSource
	off int
}

func (r *pacedReader) Read(p []byte) (int, error) {
	if r.off >= len(r.src.data) {
		return 0, io.EOF
	}

	if r.src.stallAfter > 0 && r.off >= r.src.stallAfter {
		<-r.ctx.Done()
		return 0, r.ctx.Err()
	}

	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	case <-time.After(r.src.gap):
	}

	p[0] = r.src.data[r.off]
	r.off++

	return 1, nil
}

// pacedDestination reads the body one byte at a time, waiting gap before
// each. After stallAfter bytes (when > 0) it blocks until the context ends.
type pacedDestination struct {
	gap        time.Duration
	stallAfter int
	received   int
}

func (d *pacedDestination) SendDocument(ctx context.Context, doc Document) error {
	buf := make([]byte, 1)

	for {
		if d.stallAfter > 0 && d.received >= d.stallAfter {
			<-ctx.Done()
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.gap):
		}

		n, err := doc.Body.Read(buf)
		d.received += n

		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}
	}
}

// abandoningDestination fails once readBeforeFail bytes arrive but leaves
// a goroutine that drains the body once release closes, like a transport
// that answers before the request is fully written. done receives the
// error that ended the drain.
type abandoningDestination struct {
	readBeforeFail int64
	release        chan struct{}
	done           chan error
}

func (d *abandoningDestination) SendDocument(_ context.Context, doc Document) error {
	if _, err := io.CopyN(io.Discard, doc.Body, d.readBeforeFail); err != nil {
		return err
	}

	go func() {
		<-d.release

		_, err := io.Copy(io.Discard, doc.Body)
		d.done <- err
	}()

	return errors.New("Bad Request: wrong file identifier")
}

func TestDownload_EmptyBodyForSizedItem(t *testing.T) {
	e := newTestEngine(t, Limits{})
	src := &fakeSource{content: map[string][]byte{"f1": {}}}
	item := gdrive.Item{ID: "f1", Name: "a.bin", Size: 10}

	_, err := e.Download(t.Context(), src, "1", item, nil)
	require.ErrorIs(t, err, ErrEmptyContent)

	_, statErr := os.Stat(e.ScratchPath("1", item))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}
