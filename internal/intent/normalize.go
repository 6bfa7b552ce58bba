package intent

import (
	"strings"
	"unicode"
)

// Normalize lower-cases s, trims it, collapses inner whitespace to single
// spaces and strips punctuation from both ends. Two utterances that differ
// only in those respects produce the same cache key.
//
//	Normalize("  What TIME is it?  ") == "what time is it"
func Normalize(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries.
// Both arguments are normalised first, so "Goodbye!" contains "goodbye" but
// "timer" does not contain "time".
func ContainsPhrase(text, phrase string) bool {
	text, phrase = Normalize(text), Normalize(phrase)
	if phrase == "" {
		return false
	}
	for i := 0; ; {
		j := strings.Index(text[i:], phrase)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		i = start + 1
	}
}

// ContainsAny reports whether any of phrases occurs in text on word boundaries.
func ContainsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			return true
		}
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(s[i-1])
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return !isWordByte(s[i])
}

func isWordByte(b byte) bool {
	return b == '\'' || b == '_' || b >= 0x80 ||
		('a' <= b && b <= 'z') || ('0' <= b && b <= '9')
}
