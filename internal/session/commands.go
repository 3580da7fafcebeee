package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/drivegram/internal/transfer"
)

func (o *Orchestrator) handleLogin(ctx context.Context, ev LoginRequested) {
	uid := userKey(ev.UserID)

	authURL, err := o.deps.Authorizer.Begin(uid)
	if err != nil {
		o.logger.Error("starting login failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		o.reply(ctx, ev.ChatID, msgLoginUnavailable)

		return
	}

	o.reply(ctx, ev.ChatID, fmt.Sprintf(msgLogin, authURL, o.deps.RedirectURI))
}

// handleAuthCode completes a login. It takes the job lock because it writes
// the credential a running job may be using.
func (o *Orchestrator) handleAuthCode(ctx context.Context, ev AuthCodeSubmitted) {
	u := o.user(ev.UserID)

	if !u.lock.TryLock() {
		o.reply(ctx, ev.ChatID, msgBusy)
		return
	}
	defer u.lock.Unlock()

	uid := userKey(ev.UserID)

	cred, err := o.deps.Authorizer.Complete(ctx, uid, ev.Text)
	if err != nil {
		o.logger.Warn("login failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		o.reply(ctx, ev.ChatID, authErrorText(err))

		return
	}

	if err := o.deps.Credentials.Save(ctx, uid, cred); err != nil {
		o.logger.Error("saving credential failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		o.reply(ctx, ev.ChatID, msgAuthSaveError)

		return
	}

	o.logger.Info("user logged in", slog.String("user_id", uid))
	o.reply(ctx, ev.ChatID, msgAuthSuccess)
}

func (o *Orchestrator) handleLogout(ctx context.Context, ev LogoutRequested) {
	u := o.user(ev.UserID)

	if !u.lock.TryLock() {
		o.reply(ctx, ev.ChatID, msgBusy)
		return
	}
	defer u.lock.Unlock()

	uid := userKey(ev.UserID)
	o.deps.Authorizer.Cancel(uid)

	existed, err := o.deps.Credentials.Delete(ctx, uid)
	if err != nil {
		o.logger.Error("deleting credential failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
	}

	if existed {
		o.logger.Info("user logged out", slog.String("user_id", uid))
		o.reply(ctx, ev.ChatID, msgLoggedOut)

		return
	}

	o.reply(ctx, ev.ChatID, msgNotLoggedOut)
}

// handleStatus never takes the job lock and never refreshes the credential.
func (o *Orchestrator) handleStatus(ctx context.Context, ev StatusRequested) {
	uid := userKey(ev.UserID)
	text := o.loginStatus(ctx, uid)

	if st, ok := o.Active(ev.UserID); ok {
		text = activeText(st) + "\n\n" + text
	}

	o.reply(ctx, ev.ChatID, text)
}

func (o *Orchestrator) loginStatus(ctx context.Context, uid string) string {
	cred, err := o.deps.Credentials.Peek(ctx, uid)
	if err != nil {
		o.logger.Debug("inspecting credential failed",
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
	}

	switch {
	case cred == nil:
		return fmt.Sprintf(msgNotLoggedIn, transfer.FormatSize(o.limits().LargeFileThreshold))
	case cred.Expired(o.nowFunc()) && cred.RefreshToken == "":
		return msgSessionExpired
	default:
		return msgLoggedIn
	}
}

func activeText(st JobStatus) string {
	if st.Index < 0 {
		return fmt.Sprintf(msgActiveJobStart, st.Total)
	}

	return fmt.Sprintf(msgActiveJob, st.Index+1, st.Total, st.FileName, st.Stage, st.Percent, st.Succeeded, st.Failed)
}

func (o *Orchestrator) handleHelp(ctx context.Context, ev HelpRequested) {
	limits := o.limits()
	threshold := transfer.FormatSize(limits.LargeFileThreshold)

	if ev.Welcome {
		name := ev.Name
		if name == "" {
			name = "there"
		}

		o.reply(ctx, ev.ChatID, fmt.Sprintf(msgWelcome, name, threshold))

		return
	}

	o.reply(ctx, ev.ChatID, fmt.Sprintf(msgHelp, threshold, transfer.FormatSize(limits.MaxUploadSize), o.deps.RedirectURI))
}
