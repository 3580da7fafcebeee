package transfer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Caption limits imposed by the destination.
const (
	MaxCaptionRunes = 1024
	pathTooLongNote = " (path too long)"
	maxScratchBytes = 200
)

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
	sizeTB = 1024 * 1024 * 1024 * 1024
)

// FormatSize returns a human-readable size string (e.g. "1.2 MB").
func FormatSize(bytes int64) string {
	switch {
	case bytes >= sizeTB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/float64(sizeTB))
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// SanitizeName turns a remote name into a safe local file name. The name is
// NFC-normalized; letters, digits, '.', '_' and '-' are kept and everything
// else becomes '_'. Leading dots are dropped so the result is never hidden
// or a relative path component. An empty result falls back to fallback.
func SanitizeName(name, fallback string) string {
	name = norm.NFC.String(name)

	var b strings.Builder

	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	out = truncateBytes(out, maxScratchBytes)

	if strings.Trim(out, "_") == "" {
		return sanitizeFallback(fallback)
	}

	return out
}

func sanitizeFallback(fallback string) string {
	if fallback == "" {
		return "file"
	}

	// Drive IDs are already [A-Za-z0-9_-]; this only guards odd inputs.
	return strings.Map(func(r rune) rune {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			return r
		}

		return '_'
	}, fallback)
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}

// Caption builds the upload caption "<path> (<size>)". When that exceeds the
// caption limit it falls back to "<name> (<size>) (path too long)", and as a
// last resort truncates the name.
func Caption(path, name string, size int64) string {
	sz := " (" + FormatSize(size) + ")"

	full := path + sz
	if utf8.RuneCountInString(full) <= MaxCaptionRunes {
		return full
	}

	short := name + sz + pathTooLongNote
	if utf8.RuneCountInString(short) <= MaxCaptionRunes {
		return short
	}

	keep := MaxCaptionRunes - utf8.RuneCountInString(sz+pathTooLongNote) - 1

	return string([]rune(name)[:keep]) + "…" + sz + pathTooLongNote
}
