package session

// Target identifies who sent an event and where replies go.
type Target struct {
	UserID int64
	ChatID int64
}

func (t Target) target() Target { return t }

// Event is one parsed user action.
type Event interface {
	target() Target
}

// LinkSubmitted asks for the files behind a Drive link to be relayed.
type LinkSubmitted struct {
	Target
	Link string
}

// AuthCodeSubmitted carries a pasted authorization response.
type AuthCodeSubmitted struct {
	Target
	Text string
}

// LoginRequested starts a new authorization attempt.
type LoginRequested struct{ Target }

// LogoutRequested removes the user's credential.
type LogoutRequested struct{ Target }

// StatusRequested asks for login state and active job progress.
type StatusRequested struct{ Target }

// HelpRequested asks for usage text. Welcome selects the /start greeting.
type HelpRequested struct {
	Target
	Welcome bool
	Name    string
}

// UnknownText is any other text; it gets a usage hint.
type UnknownText struct {
	Target
	Text string
}
