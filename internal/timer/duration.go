package timer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "forty-five": 45, "fifty": 50,
	"sixty": 60, "ninety": 90,
}

var (
	// digitQuantity matches "5 minutes", "90s", "2h".
	digitQuantity = regexp.MustCompile(`\b(\d+)\s*(hours?|hrs?|h|minutes?|mins?|m|seconds?|secs?|s)\b`)
	// wordQuantity matches "ten seconds", "an hour", "twenty-five minutes".
	wordQuantity = regexp.MustCompile(`\b([a-z]+(?:-[a-z]+)?)\s+(hours?|hrs?|minutes?|mins?|seconds?|secs?)\b`)

	halfAnHour    = regexp.MustCompile(`\bhalf an? hour\b`)
	andAHalfHours = regexp.MustCompile(`\bhours? and a half\b`)
)

// MaxSpokenDuration bounds what [ParseDuration] accepts.
const MaxSpokenDuration = 7 * 24 * time.Hour

// ParseDuration extracts hour, minute and second quantities from free text
// and sums them. Quantities may be digits ("5 minutes") or number words
// ("ten seconds", "an hour"). ok is false when the total is zero or exceeds
// [MaxSpokenDuration].
//
//	ParseDuration("1 hour 30 min") == 90*time.Minute, true
func ParseDuration(text string) (d time.Duration, ok bool) {
	text = strings.ToLower(text)
	if halfAnHour.MatchString(text) {
		d += 30 * time.Minute
		text = halfAnHour.ReplaceAllString(text, " ")
	}
	if andAHalfHours.MatchString(text) {
		d += 30 * time.Minute
	}
	matches := digitQuantity.FindAllStringSubmatch(text, -1)
	matches = append(matches, wordQuantity.FindAllStringSubmatch(text, -1)...)
	for _, m := range matches {
		n, known := parseQuantity(m[1])
		if !known {
			continue
		}
		unit := time.Second
		switch u := m[2]; {
		case strings.HasPrefix(u, "h"):
			unit = time.Hour
		case strings.HasPrefix(u, "m"):
			unit = time.Minute
		}
		// Checked before multiplying so large quantities cannot wrap.
		if n > int(MaxSpokenDuration/unit) {
			return 0, false
		}
		d += time.Duration(n) * unit
		if d > MaxSpokenDuration {
			return 0, false
		}
	}
	return d, d > 0
}

func parseQuantity(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	// "twenty-five"
	if tens, ones, found := strings.Cut(s, "-"); found {
		t, ok1 := numberWords[tens]
		o, ok2 := numberWords[ones]
		if ok1 && ok2 && t >= 20 && o < 10 {
			return t + o, true
		}
	}
	return 0, false
}

// FormatDuration renders d for speech, e.g. "1 hour, 5 minutes and 30
// seconds". Sub-second parts are dropped; zero renders as "0 seconds".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	var parts []string
	if h > 0 {
		parts = append(parts, plural(h, "hour"))
	}
	if m > 0 {
		parts = append(parts, plural(m, "minute"))
	}
	if s > 0 {
		parts = append(parts, plural(s, "second"))
	}
	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
