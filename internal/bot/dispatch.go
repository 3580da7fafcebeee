// Package bot connects the Telegram transport to the session orchestrator:
// it turns updates into events, runs each on its own goroutine under a
// concurrency cap, and adapts the Bot API client to the orchestrator's
// notifier and upload destination.
package bot

import (
	"strings"

	"github.com/tonimelisma/drivegram/internal/gdrive"
	"github.com/tonimelisma/drivegram/internal/session"
	"github.com/tonimelisma/drivegram/internal/telegram"
)

// AuthClassifier decides whether text is a pasted authorization response.
type AuthClassifier interface {
	LooksLikeAuthResponse(text string) bool
}

// Parse converts an update into an event. Updates without a human-sent
// text message are ignored.
func Parse(u telegram.Update, auth AuthClassifier) (session.Event, bool) {
	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot {
		return nil, false
	}

	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil, false
	}

	target := session.Target{UserID: m.From.ID, ChatID: m.Chat.ID}

	if strings.HasPrefix(text, "/") {
		return parseCommand(text, target, m.From), true
	}

	isLink := gdrive.LooksLikeLink(text)

	if !isLink && auth != nil && auth.LooksLikeAuthResponse(text) {
		return session.AuthCodeSubmitted{Target: target, Text: text}, true
	}

	if isLink {
		return session.LinkSubmitted{Target: target, Link: text}, true
	}

	return session.UnknownText{Target: target, Text: text}, true
}

// parseCommand maps "/name[@bot] args" to an event.
func parseCommand(text string, target session.Target, from *telegram.User) session.Event {
	name, _, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")

	switch strings.ToLower(name) {
	case "start":
		return session.HelpRequested{Target: target, Welcome: true, Name: from.FirstName}
	case "help":
		return session.HelpRequested{Target: target}
	case "login":
		return session.LoginRequested{Target: target}
	case "logout":
		return session.LogoutRequested{Target: target}
	case "status":
		return session.StatusRequested{Target: target}
	default:
		return session.UnknownText{Target: target, Text: text}
	}
}
