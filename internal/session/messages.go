package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonimelisma/drivegram/internal/auth"
	"github.com/tonimelisma/drivegram/internal/gdrive"
	"github.com/tonimelisma/drivegram/internal/transfer"
)

// User-facing texts.
const (
	msgBusy      = "I'm currently busy with your previous request. Please wait until it's complete."
	msgAnalyzing = "🔗 Link received. Analyzing..."
	msgEmpty     = "No files found at the provided link or the folder is empty."
	msgFound     = "Found %d file(s) to process. Starting sequential download and upload..."
	msgPreparing = "Preparing to process: '%s'..."
	msgLoginHint = "This might be a private file/folder or require higher permissions. " +
		"Try /login and then send the link again."
	msgUsage = "Please send a valid Google Drive link or use a command. Type /help for instructions."

	msgNativeDocument = "ℹ️ File '%s' is a Google Workspace document. Export is not supported; " +
		"attempting a standard download."

	msgLoginRequired = "⚠️ File '%s' (%s) exceeds %s and requires login. " +
		"Please use /login and then resend the original Drive link.\nSkipping this file."
	msgTooLarge   = "⚠️ File '%s' (%s) is too large for Telegram (max %s) and was skipped."
	msgRejected   = "❌ Failed to upload '%s': %s"
	msgConnection = "❌ Drive connection error for '%s': %s. Skipping."
	msgFileSystem = "❌ File system error for '%s'. Skipping."
	msgUnexpected = "❌ Unexpected error for '%s'. Skipping."

	msgSummary         = "--- Processing Complete ---\n✅ Successfully uploaded: %d file(s)\n❌ Failed/Skipped: %d file(s)"
	msgSummaryCanceled = "\n⏹ Stopped early: %d file(s) not processed."

	msgLogin = "Please authorize this bot by visiting the following link:\n%s\n\n" +
		"After authorization, Google will redirect you. Copy the FULL redirected URL " +
		"(it will look like %s?state=...&code=...) OR just the code value from that URL, " +
		"and send it back to me in the chat."
	msgLoginUnavailable = "Could not generate authorization URL. Please contact admin."
	msgAuthSuccess      = "Successfully authenticated with Google Drive! You can now process larger files."
	msgAuthFailed       = "Failed to authenticate with Google Drive. The code might be invalid or expired. " +
		"Please try /login again."
	msgAuthNoAttempt = "There is no login in progress, or it has expired. Please use /login first."
	msgAuthMismatch  = "That authorization response does not belong to your latest /login. " +
		"Please use the most recent link."
	msgAuthDenied    = "Authorization was declined. Use /login to try again."
	msgAuthSaveError = "Authenticated, but your credentials could not be stored. Please try /login again."

	msgLoggedOut    = "You have been successfully logged out. Your Google Drive credentials have been removed."
	msgNotLoggedOut = "You were not logged in, or no credentials found to remove."

	msgLoggedIn       = "You are currently logged in to Google Drive. Access for large files is enabled."
	msgSessionExpired = "Your Google Drive session has expired. Please /login again."
	msgNotLoggedIn    = "You are not logged in. Files larger than %s will require login."
	msgActiveJob      = "⏳ Working on file %d/%d: '%s' (%s %d%%).\n%d done, %d failed so far."
	msgActiveJobStart = "⏳ Preparing job with %d file(s)."

	msgWelcome = "Hi %s! I can download Google Drive files and folders and send them to you.\n" +
		"Send me a Google Drive link. For files larger than %s, you might need to /login with Google.\n\n" +
		"Available commands:\n" +
		"/start - Show this welcome message\n" +
		"/help - Detailed help\n" +
		"/login - Authorize Google Drive access for large files\n" +
		"/logout - Revoke Google Drive access\n" +
		"/status - Check login status and progress"

	msgHelp = "How to use the bot:\n" +
		"1. Send any Google Drive file or folder link.\n" +
		"2. The bot lists the files (for folders) and then downloads and uploads them one by one.\n" +
		"3. Files larger than %s need permission via /login.\n" +
		"4. Files larger than %s cannot be sent through Telegram and are skipped.\n\n" +
		"Supported links: drive.google.com/file/d/..., drive.google.com/drive/folders/..., " +
		"open?id=... and docs.google.com links.\n\n" +
		"If a file fails, the bot tells you and moves on to the next one.\n\n" +
		"Login: /login gives you a Google authorization link. After approving, Google redirects " +
		"to a URL starting with %s. Send that whole URL (or just its code value) back here."
)

// enumerationText describes a failure to list the link's files.
func enumerationText(err error) string {
	switch {
	case errors.Is(err, gdrive.ErrInvalidLink):
		return "Error: that does not look like a Google Drive file or folder link."
	case errors.Is(err, gdrive.ErrNotFound):
		return "Error: file or folder not found. Check the link and its sharing settings."
	case errors.Is(err, gdrive.ErrUnauthorized):
		return "Error: access denied (401/403)."
	case errors.Is(err, gdrive.ErrTooDeep):
		return "Error: the folder tree is too deep to process."
	default:
		return "Error: could not reach Google Drive. Please try again later."
	}
}

// fileErrorText turns a per-file failure into its one-line notice.
func fileErrorText(item gdrive.Item, err error, limits transfer.Limits) string {
	var (
		tooLarge *transfer.TooLargeError
		rejected *transfer.RejectedError
		ioErr    *transfer.IOError
		remote   *transfer.RemoteError
	)

	switch {
	case errors.Is(err, transfer.ErrLoginRequired):
		return fmt.Sprintf(msgLoginRequired, item.Name,
			transfer.FormatSize(item.Size), transfer.FormatSize(limits.LargeFileThreshold))
	case errors.As(err, &tooLarge):
		return fmt.Sprintf(msgTooLarge, item.Name,
			transfer.FormatSize(tooLarge.Size), transfer.FormatSize(tooLarge.Limit))
	case errors.As(err, &rejected):
		return fmt.Sprintf(msgRejected, item.Name, rejected.Err)
	case errors.As(err, &ioErr):
		return fmt.Sprintf(msgFileSystem, item.Name)
	case errors.As(err, &remote):
		return fmt.Sprintf(msgConnection, item.Name, describeRemote(remote.Err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Sprintf(msgConnection, item.Name, "timed out")
	default:
		return fmt.Sprintf(msgUnexpected, item.Name)
	}
}

func describeRemote(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, gdrive.ErrNotFound):
		return "file not found"
	case errors.Is(err, gdrive.ErrUnauthorized):
		return "access denied"
	case errors.Is(err, gdrive.ErrNotDownloadable):
		return "Drive does not allow downloading this file"
	case errors.Is(err, transfer.ErrEmptyContent):
		return "Drive returned an empty file"
	default:
		return "temporary Drive error"
	}
}

// authErrorText describes a failed authorization completion.
func authErrorText(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoAttempt):
		return msgAuthNoAttempt
	case errors.Is(err, auth.ErrStateMismatch):
		return msgAuthMismatch
	case errors.Is(err, auth.ErrDenied):
		return msgAuthDenied
	default:
		return msgAuthFailed
	}
}

// progressText renders a file's progress message.
func progressText(ev transfer.ProgressEvent, size int64, index, total int, path string) string {
	var head string

	switch {
	case ev.Final && ev.Stage == transfer.StageUploading:
		head = fmt.Sprintf("✅ Done: '%s' (%s)", ev.FileName, transfer.FormatSize(size))
	case ev.Stage == transfer.StageUploading:
		head = fmt.Sprintf("⏳ Uploading: '%s' (%s) %d%%", ev.FileName, transfer.FormatSize(size), ev.Percent)
	default:
		head = fmt.Sprintf("⏳ Downloading: '%s' (%s) %d%%", ev.FileName, transfer.FormatSize(size), ev.Percent)
	}

	return fmt.Sprintf("%s\n(File %d/%d: %s)", head, index+1, total, path)
}

func summaryText(succeeded, failed, skipped int) string {
	text := fmt.Sprintf(msgSummary, succeeded, failed)
	if skipped > 0 {
		text += fmt.Sprintf(msgSummaryCanceled, skipped)
	}

	return text
}
