package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivegram/internal/session"
	"github.com/tonimelisma/drivegram/internal/telegram"
)

// prefixClassifier treats text with the redirect prefix or "code=" as an
// authorization response.
type prefixClassifier struct{}

func (prefixClassifier) LooksLikeAuthResponse(text string) bool {
	return strings.HasPrefix(text, "http://localhost") || strings.Contains(text, "code=")
}

func update(text string) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 5,
			From:      &telegram.User{ID: 42, FirstName: "Ada"},
			Chat:      telegram.Chat{ID: 420, Type: "private"},
			Text:      text,
		},
	}
}

func TestParse(t *testing.T) {
	target := session.Target{UserID: 42, ChatID: 420}

	tests := []struct {
		name string
		text string
		want session.Event
	}{
		{"start", "/start", session.HelpRequested{Target: target, Welcome: true, Name: "Ada"}},
		{"help", "/help", session.HelpRequested{Target: target}},
		{"login with bot suffix", "/login@drivegram_bot", session.LoginRequested{Target: target}},
		{"logout", "/logout now", session.LogoutRequested{Target: target}},
		{"status upper", "/STATUS", session.StatusRequested{Target: target}},
		{"unknown command", "/frobnicate", session.UnknownText{Target: target, Text: "/frobnicate"}},
		{
			"file link",
			"https://drive.google.com/file/d/abc/view?usp=sharing",
			session.LinkSubmitted{Target: target, Link: "https://drive.google.com/file/d/abc/view?usp=sharing"},
		},
		{
			"docs link",
			"  https://docs.google.com/document/d/xyz/edit ",
			session.LinkSubmitted{Target: target, Link: "https://docs.google.com/document/d/xyz/edit"},
		},
		{
			"redirect",
			"http://localhost/?state=s&code=4/abc",
			session.AuthCodeSubmitted{Target: target, Text: "http://localhost/?state=s&code=4/abc"},
		},
		{"chatter", "hello", session.UnknownText{Target: target, Text: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Parse(update(tt.text), prefixClassifier{})
			require.True(t, ok)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestParse_DriveLinkWinsOverAuthHeuristic(t *testing.T) {
	ev, ok := Parse(update("https://drive.google.com/open?id=abc&code=zzz"), prefixClassifier{})
	require.True(t, ok)
	assert.IsType(t, session.LinkSubmitted{}, ev)
}

func TestParse_Ignored(t *testing.T) {
	_, ok := Parse(telegram.Update{UpdateID: 1}, prefixClassifier{})
	assert.False(t, ok, "no message")

	u := update("hi")
	u.Message.From.IsBot = true
	_, ok = Parse(u, prefixClassifier{})
	assert.False(t, ok, "bot sender")

	_, ok = Parse(update("   "), prefixClassifier{})
	assert.False(t, ok, "blank text")

	u = update("hi")
	u.Message.From = nil
	_, ok = Parse(u, prefixClassifier{})
	assert.False(t, ok, "channel post without sender")
}
