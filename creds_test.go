package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredRow(t *testing.T) {
	assert.Equal(t,
		[]string{"42", "2026-01-02 03:04:05", "yes", "a b"},
		credRow(credSummary{UserID: "42", Readable: true, Refreshable: true, Expiry: "2026-01-02 03:04:05", Scopes: []string{"a", "b"}}),
	)

	assert.Equal(t,
		[]string{"7", "never", "no", ""},
		credRow(credSummary{UserID: "7", Readable: true}),
	)

	assert.Equal(t,
		[]string{"9", "(unreadable)", "-", "-"},
		credRow(credSummary{UserID: "9"}),
	)
}
