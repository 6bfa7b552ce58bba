package wakeloop

import "testing"

func TestMatcher_Exact(t *testing.T) {
	t.Parallel()
	m := NewMatcher([]string{"Hey Jarvis", "jarvis", "  "})
	tests := []struct {
		text   string
		phrase string
		ok     bool
	}{
		{"Hey Jarvis!", "hey jarvis", true},
		{"ok, jarvis, are you there", "jarvis", true},
		{"JARVIS", "jarvis", true},
		{"jarvisville is a town", "", false},
		{"hey there", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			phrase, ok := m.Match(tc.text)
			if ok != tc.ok || phrase != tc.phrase {
				t.Errorf("Match(%q) = %q, %v; want %q, %v", tc.text, phrase, ok, tc.phrase, tc.ok)
			}
		})
	}
	if got := m.Phrases(); len(got) != 2 {
		t.Errorf("Phrases = %v", got)
	}
}

func TestMatcher_Phonetic(t *testing.T) {
	t.Parallel()
	exact := NewMatcher([]string{"hey jarvis"})
	fuzzy := NewMatcher([]string{"hey jarvis"}, WithPhonetic(0))

	tests := []struct {
		text      string
		wantFuzzy bool
	}{
		{"hey jarvus", true},
		{"hey jarviss what time is it", true},
		{"hey harvest", false},
		{"jarvus", false},
		{"play some music", false},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			if _, ok := exact.Match(tc.text); ok {
				t.Errorf("exact matcher accepted %q", tc.text)
			}
			if _, ok := fuzzy.Match(tc.text); ok != tc.wantFuzzy {
				t.Errorf("phonetic Match(%q) = %v, want %v", tc.text, ok, tc.wantFuzzy)
			}
		})
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()
	m := NewMatcher([]string{"jarvis"}, WithPhonetic(0.99), WithFuzzyThreshold(1))
	if _, ok := m.Match("jarvus"); ok {
		t.Error("strict thresholds should reject near misses")
	}
	if _, ok := m.Match("jarvis"); !ok {
		t.Error("exact words always match")
	}
}
