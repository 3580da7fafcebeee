// Package session turns user events into work: it serializes jobs per user,
// drives the enumerate-then-transfer loop, isolates per-file failures, and
// routes progress and results back to the chat.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/drivegram/internal/credstore"
	"github.com/tonimelisma/drivegram/internal/gdrive"
	"github.com/tonimelisma/drivegram/internal/state"
	"github.com/tonimelisma/drivegram/internal/transfer"
)

// finalNoticeTimeout bounds the messages sent after the job context ends.
const finalNoticeTimeout = 10 * time.Second

// MessageRef addresses a message the bot sent, for later edits.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// Notifier delivers text to chats.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
}

// Remote lists and streams Drive items for one user.
type Remote interface {
	Resolve(ctx context.Context, link string) ([]gdrive.Item, error)
	transfer.Source
}

// RemoteFactory binds a Remote to a credential. A nil credential yields an
// anonymous remote.
type RemoteFactory func(ctx context.Context, userID string, cred *credstore.Credential) Remote

// CredentialStore is the subset of *credstore.Store the orchestrator uses.
type CredentialStore interface {
	Load(ctx context.Context, userID string) (*credstore.Credential, error)
	Peek(ctx context.Context, userID string) (*credstore.Credential, error)
	Save(ctx context.Context, userID string, cred *credstore.Credential) error
	Delete(ctx context.Context, userID string) (bool, error)
}

// Authorizer is the subset of *auth.Authorizer the orchestrator uses.
type Authorizer interface {
	Begin(userID string) (string, error)
	Complete(ctx context.Context, userID, pasted string) (*credstore.Credential, error)
	Cancel(userID string)
}

// Transferer is the subset of *transfer.Engine the orchestrator uses.
type Transferer interface {
	Gate(item gdrive.Item, authenticated bool) error
	Download(ctx context.Context, src transfer.Source, owner string, item gdrive.Item, sink transfer.ProgressSink) (string, error)
	Upload(ctx context.Context, dst transfer.Destination, up transfer.Upload, sink transfer.ProgressSink) (bool, error)
}

// JobRecorder persists finished jobs.
type JobRecorder interface {
	RecordJob(ctx context.Context, j *state.JobRecord) error
}

// DestinationFunc returns the upload destination for a chat.
type DestinationFunc func(chatID int64) transfer.Destination

// Deps are the orchestrator's collaborators. Jobs, InterFileDelay and
// AdminChatID are optional.
type Deps struct {
	Notifier       Notifier
	Credentials    CredentialStore
	Authorizer     Authorizer
	Transfers      Transferer
	Remotes        RemoteFactory
	Destinations   DestinationFunc
	Jobs           JobRecorder
	Limits         transfer.LimitsFunc
	InterFileDelay func() time.Duration
	RedirectURI    string
	AdminChatID    int64
}

// userState holds one user's job lock and the progress of the active job.
type userState struct {
	lock   sync.Mutex
	mu     sync.Mutex
	active *jobProgress
}

func (u *userState) setActive(j *jobProgress) {
	u.mu.Lock()
	u.active = j
	u.mu.Unlock()
}

func (u *userState) current() *jobProgress {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.active
}

// Orchestrator handles events. Handle is safe for concurrent use; at most
// one job runs per user, and users never block each other.
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger

	mu    sync.Mutex
	users map[int64]*userState

	// sleepFunc waits between files. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// nowFunc returns the current time. Tests override it.
	nowFunc func() time.Time
	// newID returns a job ID.
	newID func() string
}

// New creates an Orchestrator.
func New(deps Deps, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	if deps.Limits == nil {
		deps.Limits = transfer.StaticLimits(transfer.Limits{})
	}

	if deps.InterFileDelay == nil {
		deps.InterFileDelay = func() time.Duration { return 0 }
	}

	return &Orchestrator{
		deps:      deps,
		logger:    logger,
		users:     make(map[int64]*userState),
		sleepFunc: timeSleep,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

func (o *Orchestrator) user(id int64) *userState {
	o.mu.Lock()
	defer o.mu.Unlock()

	u, ok := o.users[id]
	if !ok {
		u = &userState{}
		o.users[id] = u
	}

	return u
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// limits returns the current limits with defaults applied.
func (o *Orchestrator) limits() transfer.Limits {
	l := o.deps.Limits()

	if l.LargeFileThreshold <= 0 {
		l.LargeFileThreshold = transfer.DefaultLargeFileThreshold
	}

	if l.MaxUploadSize <= 0 {
		l.MaxUploadSize = transfer.DefaultMaxUploadSize
	}

	return l
}

// Handle processes one event to completion. A link event returns when its
// job finishes.
func (o *Orchestrator) Handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while handling event",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	switch ev := ev.(type) {
	case LinkSubmitted:
		o.handleLink(ctx, ev)
	case AuthCodeSubmitted:
		o.handleAuthCode(ctx, ev)
	case LoginRequested:
		o.handleLogin(ctx, ev)
	case LogoutRequested:
		o.handleLogout(ctx, ev)
	case StatusRequested:
		o.handleStatus(ctx, ev)
	case HelpRequested:
		o.handleHelp(ctx, ev)
	case UnknownText:
		o.reply(ctx, ev.ChatID, msgUsage)
	default:
		o.logger.Warn("unhandled event type", slog.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (o *Orchestrator) handleLink(ctx context.Context, ev LinkSubmitted) {
	u := o.user(ev.UserID)

	if !u.lock.TryLock() {
		o.logger.Info("link rejected while a job is active", slog.Int64("user_id", ev.UserID))
		o.reply(ctx, ev.ChatID, msgBusy)

		return
	}
	defer u.lock.Unlock()

	o.runJob(ctx, u, ev)
}

// runJob enumerates the link and transfers every file in order. The
// caller holds the user's lock.
func (o *Orchestrator) runJob(ctx context.Context, u *userState, ev LinkSubmitted) {
	uid := userKey(ev.UserID)
	rec := &state.JobRecord{
		ID:        o.newID(),
		UserID:    uid,
		ChatID:    ev.ChatID,
		Link:      ev.Link,
		StartedAt: o.nowFunc(),
	}
	defer o.record(ctx, rec)

	logger := o.logger.With(slog.String("job_id", rec.ID), slog.String("user_id", uid))
	logger.Info("job started")

	status := o.send(ctx, ev.ChatID, msgAnalyzing)

	cred := o.loadCredential(ctx, uid)
	remote := o.deps.Remotes(ctx, uid, cred)

	items, err := remote.Resolve(ctx, ev.Link)
	if err != nil {
		logger.Warn("enumeration failed", slog.String("error", err.Error()))

		rec.Outcome = state.OutcomeFailed
		rec.Error = err.Error()
		o.edit(ctx, status, enumerationText(err))

		if errors.Is(err, gdrive.ErrUnauthorized) && cred == nil {
			o.reply(ctx, ev.ChatID, msgLoginHint)
		}

		return
	}

	if len(items) == 0 {
		rec.Outcome = state.OutcomeEmpty
		o.edit(ctx, status, msgEmpty)

		return
	}

	rec.Total = len(items)
	o.edit(ctx, status, fmt.Sprintf(msgFound, len(items)))

	job := newJobProgress(rec.ID, len(items))
	u.setActive(job)
	defer u.setActive(nil)

	dst := o.deps.Destinations(ev.ChatID)
	processed := 0

	for i, item := range items {
		if i > 0 {
			if err := o.sleepFunc(ctx, o.deps.InterFileDelay()); err != nil {
				break
			}
		}

		if ctx.Err() != nil {
			break
		}

		job.begin(i, item.Name)

		ok := o.processFile(ctx, logger, fileTask{
			chatID:        ev.ChatID,
			owner:         uid,
			item:          item,
			index:         i,
			total:         len(items),
			authenticated: cred != nil,
			remote:        remote,
			dst:           dst,
			job:           job,
		})

		if ok {
			rec.Succeeded++
		} else {
			rec.Failed++
		}

		job.finish(ok)
		processed++
	}

	skipped := len(items) - processed
	rec.Outcome = jobOutcome(rec, skipped)

	logger.Info("job finished",
		slog.Int("succeeded", rec.Succeeded),
		slog.Int("failed", rec.Failed),
		slog.Int("skipped", skipped),
	)

	noticeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalNoticeTimeout)
	defer cancel()

	o.reply(noticeCtx, ev.ChatID, summaryText(rec.Succeeded, rec.Failed, skipped))
}

func jobOutcome(rec *state.JobRecord, skipped int) string {
	switch {
	case skipped > 0:
		return state.OutcomeCanceled
	case rec.Failed == 0:
		return state.OutcomeCompleted
	case rec.Succeeded == 0:
		return state.OutcomeFailed
	default:
		return state.OutcomeCompletedWithErrors
	}
}

// loadCredential returns the user's fresh credential, or nil when the user
// is not logged in or the credential could not be refreshed.
func (o *Orchestrator) loadCredential(ctx context.Context, uid string) *credstore.Credential {
	cred, err := o.deps.Credentials.Load(ctx, uid)
	if err != nil {
		o.logger.Warn("loading credential failed, continuing anonymously",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)

		return nil
	}

	return cred
}

type fileTask struct {
	chatID        int64
	owner         string
	item          gdrive.Item
	index         int
	total         int
	authenticated bool
	remote        Remote
	dst           transfer.Destination
	job           *jobProgress
}

// processFile runs gate, download and upload for one file and reports the
// result on the file's own message. A panic is contained to this file.
func (o *Orchestrator) processFile(ctx context.Context, logger *slog.Logger, t fileTask) (ok bool) {
	item := t.item
	ref := o.send(ctx, t.chatID, fmt.Sprintf(msgPreparing, item.Name))
	sink := &fileSink{o: o, ctx: ctx, ref: ref, task: t}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing file",
				slog.String("item_id", item.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)

			sink.result(fmt.Sprintf(msgUnexpected, item.Name))
			o.alertAdmin(ctx, fmt.Sprintf("panic in job %s on item %s: %v", t.job.id, item.ID, r))

			ok = false
		}
	}()

	limits := o.limits()

	fail := func(stage string, err error) bool {
		logger.Warn("file failed",
			slog.String("stage", stage),
			slog.String("item_id", item.ID),
			slog.String("path", item.Path),
			slog.String("error", err.Error()),
		)

		sink.result(fileErrorText(item, err, limits))

		return false
	}

	if err := o.deps.Transfers.Gate(item, t.authenticated); err != nil {
		return fail("gate", err)
	}

	if item.Kind == gdrive.KindNativeDocument {
		sink.set(fmt.Sprintf(msgNativeDocument, item.Name))
	}

	path, err := o.deps.Transfers.Download(ctx, t.remote, t.owner, item, sink)
	if err != nil {
		return fail("download", err)
	}

	sent, err := o.deps.Transfers.Upload(ctx, t.dst, transfer.Upload{
		LocalPath:    path,
		FileName:     item.Name,
		Caption:      transfer.Caption(item.Path, item.Name, item.Size),
		DeclaredSize: item.Size,
	}, sink)
	if err != nil {
		return fail("upload", err)
	}

	return sent
}

func (o *Orchestrator) record(ctx context.Context, rec *state.JobRecord) {
	if o.deps.Jobs == nil {
		return
	}

	rec.FinishedAt = o.nowFunc()

	if err := o.deps.Jobs.RecordJob(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("recording job failed",
			slog.String("job_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) alertAdmin(ctx context.Context, text string) {
	if o.deps.AdminChatID == 0 {
		return
	}

	o.reply(ctx, o.deps.AdminChatID, "⚠️ "+text)
}

// send posts text and returns its ref. Failures are logged and yield a zero
// ref, which later edits treat as "send a new message instead".
func (o *Orchestrator) send(ctx context.Context, chatID int64, text string) MessageRef {
	ref, err := o.deps.Notifier.Send(ctx, chatID, text)
	if err != nil {
		o.logger.Warn("sending message failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)

		return MessageRef{ChatID: chatID}
	}

	return ref
}

func (o *Orchestrator) reply(ctx context.Context, chatID int64, text string) {
	o.send(ctx, chatID, text)
}

// edit replaces ref's text, or sends a new message when ref is unusable.
func (o *Orchestrator) edit(ctx context.Context, ref MessageRef, text string) {
	if ref.MessageID == 0 {
		o.send(ctx, ref.ChatID, text)
		return
	}

	if err := o.deps.Notifier.Edit(ctx, ref, text); err != nil {
		o.logger.Debug("editing message failed",
			slog.Int64("chat_id", ref.ChatID),
			slog.String("error", err.Error()),
		)
	}
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
