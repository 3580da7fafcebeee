package session

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivegram/internal/credstore"
	"github.com/tonimelisma/drivegram/internal/gdrive"
	"github.com/tonimelisma/drivegram/internal/state"
	"github.com/tonimelisma/drivegram/internal/transfer"
)

// fakeNotifier records every message and keeps the latest text per message.
type fakeNotifier struct {
	mu     sync.Mutex
	nextID int64
	sent   []sentMessage
	texts  map[int64]string
	edits  map[int64][]string
}

type sentMessage struct {
	ChatID int64
	ID     int64
	Text   string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{texts: map[int64]string{}, edits: map[int64][]string{}}
}

func (f *fakeNotifier) Send(_ context.Context, chatID int64, text string) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, ID: f.nextID, Text: text})
	f.texts[f.nextID] = text

	return MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeNotifier) Edit(_ context.Context, ref MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.texts[ref.MessageID] = text
	f.edits[ref.MessageID] = append(f.edits[ref.MessageID], text)

	return nil
}

// finalTexts returns the current text of every message, in send order.
func (f *fakeNotifier) finalTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, f.texts[m.ID])
	}

	return out
}

func (f *fakeNotifier) last() string {
	texts := f.finalTexts()
	if len(texts) == 0 {
		return ""
	}

	return texts[len(texts)-1]
}

func (f *fakeNotifier) anyContains(sub string) bool {
	for _, t := range f.finalTexts() {
		if strings.Contains(t, sub) {
			return true
		}
	}

	return false
}

// fakeRemote serves a fixed item list and content.
type fakeRemote struct {
	mu         sync.Mutex
	items      []gdrive.Item
	resolveErr error
	content    map[string][]byte
	openErr    map[string]error
	panicOn    string
	opens      []string

	// resolveGate, when set, blocks Resolve until closed.
	resolveGate chan struct{}
	resolving   chan struct{}
}

func (f *fakeRemote) Resolve(ctx context.Context, _ string) ([]gdrive.Item, error) {
	if f.resolving != nil {
		close(f.resolving)
	}

	if f.resolveGate != nil {
		select {
		case <-f.resolveGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return f.items, f.resolveErr
}

func (f *fakeRemote) OpenContent(_ context.Context, id string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	f.opens = append(f.opens, id)
	f.mu.Unlock()

	if id == f.panicOn {
		panic("boom")
	}

	if err := f.openErr[id]; err != nil {
		return nil, 0, err
	}

	data := f.content[id]

	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (f *fakeRemote) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.opens)
}

// fakeDestination records uploaded documents.
type fakeDestination struct {
	mu      sync.Mutex
	docs    []transfer.Document
	data    []string
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeDestination) SendDocument(ctx context.Context, doc transfer.Document) error {
	if f.entered != nil {
		close(f.entered)
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if f.err != nil {
		return f.err
	}

	b, err := io.ReadAll(doc.Body)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.docs = append(f.docs, doc)
	f.data = append(f.data, string(b))

	return nil
}

func (f *fakeDestination) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d.FileName)
	}

	return out
}

// fakeCreds is an in-memory credential store.
type fakeCreds struct {
	mu      sync.Mutex
	creds   map[string]*credstore.Credential
	loadErr error
}

func newFakeCreds() *fakeCreds {
	return &fakeCreds{creds: map[string]*credstore.Credential{}}
}

func (f *fakeCreds) Load(_ context.Context, uid string) (*credstore.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loadErr != nil {
		return nil, f.loadErr
	}

	return f.creds[uid], nil
}

func (f *fakeCreds) Peek(ctx context.Context, uid string) (*credstore.Credential, error) {
	return f.Load(ctx, uid)
}

func (f *fakeCreds) Save(_ context.Context, uid string, c *credstore.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creds[uid] = c

	return nil
}

func (f *fakeCreds) Delete(_ context.Context, uid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.creds[uid]
	delete(f.creds, uid)

	return ok, nil
}

// fakeAuthorizer hands out a fixed URL and a canned completion result.
type fakeAuthorizer struct {
	mu        sync.Mutex
	cred      *credstore.Credential
	err       error
	canceled  []string
	completed []string
}

func (f *fakeAuthorizer) Begin(uid string) (string, error) {
	return "https://accounts.example.com/auth?state=s-" + uid, nil
}

func (f *fakeAuthorizer) Complete(_ context.Context, uid, pasted string) (*credstore.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.completed = append(f.completed, pasted)

	if f.err != nil {
		return nil, f.err
	}

	c := *f.cred
	c.UserID = uid

	return &c, nil
}

func (f *fakeAuthorizer) Cancel(uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.canceled = append(f.canceled, uid)
}

// fakeJobs records ledger entries.
type fakeJobs struct {
	mu   sync.Mutex
	jobs []state.JobRecord
}

func (f *fakeJobs) RecordJob(_ context.Context, j *state.JobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs = append(f.jobs, *j)

	return nil
}

func (f *fakeJobs) all() []state.JobRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]state.JobRecord(nil), f.jobs...)
}

// harness wires an Orchestrator to fakes and a real transfer engine.
type harness struct {
	o        *Orchestrator
	notifier *fakeNotifier
	creds    *fakeCreds
	auth     *fakeAuthorizer
	remote   *fakeRemote
	dst      *fakeDestination
	jobs     *fakeJobs

	mu        sync.Mutex
	boundCred []*credstore.Credential
}

func newHarness(t *testing.T, limits transfer.Limits) *harness {
	t.Helper()

	h := &harness{
		notifier: newFakeNotifier(),
		creds:    newFakeCreds(),
		auth: &fakeAuthorizer{cred: &credstore.Credential{
			AccessToken:  "access",
			RefreshToken: "refresh",
		}},
		remote: &fakeRemote{content: map[string][]byte{}, openErr: map[string]error{}},
		dst:    &fakeDestination{},
		jobs:   &fakeJobs{},
	}

	engine, err := transfer.NewEngine(transfer.Options{
		ScratchDir: t.TempDir(),
		Limits:     transfer.StaticLimits(limits),
	}, slog.Default())
	require.NoError(t, err)

	h.o = New(Deps{
		Notifier:    h.notifier,
		Credentials: h.creds,
		Authorizer:  h.auth,
		Transfers:   engine,
		Remotes: func(_ context.Context, _ string, cred *credstore.Credential) Remote {
			h.mu.Lock()
			h.boundCred = append(h.boundCred, cred)
			h.mu.Unlock()

			return h.remote
		},
		Destinations: func(int64) transfer.Destination { return h.dst },
		Jobs:         h.jobs,
		Limits:       transfer.StaticLimits(limits),
		RedirectURI:  "http://localhost",
	}, slog.Default())

	h.o.sleepFunc = func(context.Context, time.Duration) error { return nil }
	h.o.newID = func() string { return "job-1" }

	return h
}

func (h *harness) addFile(id, name, path string, data string) gdrive.Item {
	item := gdrive.Item{ID: id, Name: name, Path: path, Kind: gdrive.KindFile, Size: int64(len(data))}
	h.remote.items = append(h.remote.items, item)
	h.remote.content[id] = []byte(data)

	return item
}

func link(userID int64, url string) LinkSubmitted {
	return LinkSubmitted{Target: Target{UserID: userID, ChatID: userID * 10}, Link: url}
}
