package intent

import "slices"

// Rule is one deterministic fast-path predicate. Match receives normalised
// text; Resolve is only called when Match returned true.
type Rule struct {
	Name    string
	Match   func(text string) bool
	Resolve func(text string) Record
}

// FastPath resolves common utterances without consulting the cache or the
// classifier. Rules are evaluated in order and the first match wins, so more
// specific rules must come before broader ones ("file explorer" before a bare
// folder keyword).
//
// A FastPath is immutable after construction and safe for concurrent use.
type FastPath struct {
	rules []Rule
}

// NewFastPath returns a FastPath evaluating rules in the given order. With no
// arguments it uses [DefaultRules].
func NewFastPath(rules ...Rule) *FastPath {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &FastPath{rules: slices.Clone(rules)}
}

// Match returns the record produced by the first matching rule along with the
// rule name. ok is false when no rule applies.
func (f *FastPath) Match(text string) (rec Record, rule string, ok bool) {
	text = Normalize(text)
	if text == "" {
		return Record{}, "", false
	}
	for _, r := range f.rules {
		if r.Match(text) {
			return r.Resolve(text).Clone(), r.Name, true
		}
	}
	return Record{}, "", false
}

// Rules returns the rule names in evaluation order.
func (f *FastPath) Rules() []string {
	names := make([]string, len(f.rules))
	for i, r := range f.rules {
		names[i] = r.Name
	}
	return names
}

// ── default rule set ─────────────────────────────────────────────────────────

// folder maps spoken aliases to an explorer location.
type folder struct {
	location string
	aliases  []string
}

var folders = []folder{
	{"downloads", []string{"downloads", "download"}},
	{"documents", []string{"documents", "document"}},
	{"pictures", []string{"pictures", "picture", "photos"}},
	{"desktop", []string{"desktop"}},
	{"music", []string{"music"}},
	{"videos", []string{"videos", "video"}},
}

// DefaultRules returns the built-in rule set, most specific first.
func DefaultRules() []Rule {
	rules := []Rule{
		phraseRule("list_timers", rec(IntentTimer, "list_timers", nil),
			"list timers", "list my timers", "active timers", "show timers", "what timers"),
		{
			Name: "time",
			Match: func(t string) bool {
				return ContainsAny(t, "what time", "what's the time", "the time", "time is it", "current time") &&
					!ContainsAny(t, "timer", "timers")
			},
			Resolve: func(string) Record { return rec(IntentProductivity, "get_time", nil) },
		},
		phraseRule("date", rec(IntentProductivity, "get_date", nil),
			"what day", "what date", "what's the date", "today's date", "the date"),
		phraseRule("calculator", openApp("calculator"), "calculator", "open calc", "calc"),
		phraseRule("notepad", openApp("notepad"), "notepad"),
		phraseRule("paint", openApp("paint"), "open paint", "ms paint"),
		phraseRule("file_explorer", explorer("home"), "file explorer", "open explorer", "explorer"),
	}
	for _, f := range folders {
		var phrases []string
		for _, a := range f.aliases {
			phrases = append(phrases, "open "+a, "open my "+a, "show "+a, "my "+a, a+" folder")
		}
		loc := f.location
		aliases := f.aliases
		rules = append(rules, Rule{
			Name: "folder_" + loc,
			Match: func(t string) bool {
				return slices.Contains(aliases, t) || ContainsAny(t, phrases...)
			},
			Resolve: func(string) Record { return explorer(loc) },
		})
	}
	rules = append(rules,
		phraseRule("volume_up", rec(IntentMediaControl, "volume_up", nil),
			"volume up", "louder", "increase volume", "turn it up", "turn up the volume"),
		phraseRule("volume_down", rec(IntentMediaControl, "volume_down", nil),
			"volume down", "quieter", "decrease volume", "turn it down", "turn down the volume"),
		phraseRule("mute", rec(IntentMediaControl, "mute", nil), "mute", "silence"),
		phraseRule("next_track", rec(IntentMediaControl, "next_track", nil),
			"next song", "next track", "skip song", "skip track", "skip"),
		phraseRule("previous_track", rec(IntentMediaControl, "previous_track", nil),
			"previous song", "previous track", "last song", "previous"),
		phraseRule("play_pause", rec(IntentMediaControl, "play_pause", nil),
			"pause", "resume", "play music", "stop music", "pause music"),
		Rule{
			Name:    "help",
			Match:   func(t string) bool { return t == "help" || ContainsAny(t, "what can you do", "help me with commands") },
			Resolve: func(string) Record { return rec(IntentGeneral, "help", nil) },
		},
	)
	return rules
}

func phraseRule(name string, r Record, phrases ...string) Rule {
	return Rule{
		Name:    name,
		Match:   func(t string) bool { return ContainsAny(t, phrases...) },
		Resolve: func(string) Record { return r.Clone() },
	}
}

func rec(intent, action string, params map[string]any) Record {
	if params == nil {
		params = map[string]any{}
	}
	return Record{Intent: intent, Action: action, Parameters: params}
}

func openApp(app string) Record {
	return rec(IntentSystemControl, "open_app", map[string]any{"app": app})
}

func explorer(location string) Record {
	return rec(IntentFileOperation, "open_explorer", map[string]any{"location": location})
}
