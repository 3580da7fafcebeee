package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"chunk_size", "chunk_size", 0},
		{"log_levl", "log_level", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestClosestMatch(t *testing.T) {
	known := []string{"backend", "database", "encryption_key"}

	assert.Equal(t, "backend", closestMatch("backnd", known))
	assert.Equal(t, "database", closestMatch("DATABASE", known))
	assert.Empty(t, closestMatch("something_else", known))
}
