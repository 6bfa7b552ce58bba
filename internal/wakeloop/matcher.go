package wakeloop

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/jarvis/internal/intent"
)

const (
	defaultPhoneticThreshold = 0.85
	defaultFuzzyThreshold    = 0.92
)

// Matcher decides whether a transcript contains a wake phrase.
//
// Exact matching is case-insensitive containment on word boundaries. With
// phonetic matching enabled, every run of transcript words as long as a
// phrase is also compared word by word. A word pair matches when the Double
// Metaphone codes of the two words overlap and their Jaro-Winkler similarity
// reaches the phonetic threshold, or when the similarity alone reaches the
// stricter fuzzy threshold. A window matches when all of its word pairs do.
//
// A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	phrases           []wakePhrase
	phonetic          bool
	phoneticThreshold float64
	fuzzyThreshold    float64
}

type wakePhrase struct {
	text   string
	tokens []wakeToken
}

type wakeToken struct {
	word  string
	codes [2]string
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithPhonetic enables fuzzy matching with the given Jaro-Winkler threshold
// for phonetically similar words. A non-positive threshold selects 0.85.
func WithPhonetic(threshold float64) MatcherOption {
	return func(m *Matcher) {
		m.phonetic = true
		if threshold > 0 {
			m.phoneticThreshold = threshold
		}
	}
}

// WithFuzzyThreshold sets the similarity at which two words match without
// sharing a phonetic code. Default: 0.92.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// NewMatcher builds a matcher for phrases. Blank phrases are ignored.
func NewMatcher(phrases []string, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	for _, p := range phrases {
		norm := intent.Normalize(p)
		if norm == "" {
			continue
		}
		m.phrases = append(m.phrases, wakePhrase{text: norm, tokens: tokenize(norm)})
	}
	return m
}

// Phrases returns the normalised wake phrases.
func (m *Matcher) Phrases() []string {
	out := make([]string, len(m.phrases))
	for i, p := range m.phrases {
		out[i] = p.text
	}
	return out
}

// Match reports whether text contains a wake phrase and returns the phrase.
func (m *Matcher) Match(text string) (phrase string, ok bool) {
	norm := intent.Normalize(text)
	if norm == "" {
		return "", false
	}
	for _, p := range m.phrases {
		if intent.ContainsPhrase(norm, p.text) {
			return p.text, true
		}
	}
	if !m.phonetic {
		return "", false
	}

	words := tokenize(norm)
	for _, p := range m.phrases {
		n := len(p.tokens)
		for i := 0; i+n <= len(words); i++ {
			if m.windowMatches(words[i:i+n], p.tokens) {
				return p.text, true
			}
		}
	}
	return "", false
}

func (m *Matcher) windowMatches(window, phrase []wakeToken) bool {
	for i := range phrase {
		if !m.tokenMatches(window[i], phrase[i]) {
			return false
		}
	}
	return true
}

func (m *Matcher) tokenMatches(heard, want wakeToken) bool {
	if heard.word == want.word {
		return true
	}
	score := matchr.JaroWinkler(heard.word, want.word, false)
	if score >= m.fuzzyThreshold {
		return true
	}
	return score >= m.phoneticThreshold && codesOverlap(heard.codes, want.codes)
}

// tokenize splits normalised text into words with their phonetic codes.
// Punctuation attached to words is dropped.
func tokenize(text string) []wakeToken {
	fields := strings.Fields(text)
	out := make([]wakeToken, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"")
		if f == "" {
			continue
		}
		p, s := matchr.DoubleMetaphone(f)
		out = append(out, wakeToken{word: f, codes: [2]string{p, s}})
	}
	return out
}

func codesOverlap(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
