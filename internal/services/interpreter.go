package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
)

// Keyword sets used by the default flow
var (
	BookingIntentKeywords = []string{"book", "appointment", "booking", "schedule", "reserve"}
	ConfirmIntentKeywords = []string{"yes", "confirm", "book", "ok", "okay", "proceed"}
	CancelIntentKeywords  = []string{"cancel", "no", "stop", "restart"}
)

// Clock patterns, tried in this order
var (
	meridiemPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?\s?m\b\.?`)
	clockPattern    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	bareHourPattern = regexp.MustCompile(`\b(\d{1,2})\b`)
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// normalizeInput folds compatibility characters (full-width digits, ligatures) and trims
func normalizeInput(message string) string {
	return strings.TrimSpace(norm.NFKC.String(message))
}

// compact lowercases and strips all whitespace, the form used for name matching
func compact(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(normalizeInput(s))), "")
}

// ResolveOrdinal parses message as a 1-based position into a list of n items.
// It returns the zero-based index.
func ResolveOrdinal(message string, n int) (int, bool) {
	v, err := strconv.Atoi(normalizeInput(message))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

// MatchByName returns the index of the first name that contains, or is contained in, the
// message once both are lowercased with whitespace removed. List order decides ties.
func MatchByName(message string, names []string) (int, bool) {
	needle := compact(message)
	if needle == "" {
		return 0, false
	}
	for i, name := range names {
		candidate := compact(name)
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, needle) || strings.Contains(needle, candidate) {
			return i, true
		}
	}
	return 0, false
}

// ParseClockTime extracts a time of day from free text and returns canonical HH:MM
func ParseClockTime(message string) (string, bool) {
	msg := normalizeInput(message)

	if m := meridiemPattern.FindStringSubmatch(msg); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 {
			return "", false
		}
		switch strings.ToLower(m[3]) {
		case "p":
			if hour != 12 {
				hour += 12
			}
		case "a":
			if hour == 12 {
				hour = 0
			}
		}
		return canonicalTime(hour, minute)
	}

	if m := clockPattern.FindStringSubmatch(msg); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return canonicalTime(hour, minute)
	}

	if m := bareHourPattern.FindStringSubmatch(msg); m != nil {
		hour, _ := strconv.Atoi(m[1])
		return canonicalTime(hour, 0)
	}

	return "", false
}

func canonicalTime(hour, minute int) (string, bool) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// ResolveTime picks a slot at the time-selection step. Ordinals index the available
// subset only; otherwise the parsed time must equal an available slot exactly.
func ResolveTime(message string, slots []models.TimeSlot) (string, bool) {
	available := AvailableOnly(slots)
	if idx, ok := ResolveOrdinal(message, len(available)); ok {
		return available[idx].Time, true
	}
	parsed, ok := ParseClockTime(message)
	if !ok {
		return "", false
	}
	for _, slot := range available {
		if slot.Time == parsed {
			return slot.Time, true
		}
	}
	return "", false
}

// ResolveDate picks one of the offered dates by ordinal, "today"/"tomorrow",
// or a substring of the long label such as "monday" or "october 17"
func ResolveDate(message string, dates []models.DateOption) (int, bool) {
	if len(dates) == 0 {
		return 0, false
	}
	if idx, ok := ResolveOrdinal(message, len(dates)); ok {
		return idx, true
	}

	msg := strings.ToLower(normalizeInput(message))
	if msg == "" {
		return 0, false
	}
	// The same day is never offered, so both words land on the first offered date
	if HasKeyword(msg, []string{"today", "tomorrow"}) {
		return 0, true
	}

	// An out-of-range number is not a date, and very short input matches every label
	if _, err := strconv.Atoi(msg); err == nil {
		return 0, false
	}
	collapsed := strings.Join(strings.Fields(strings.ReplaceAll(msg, ",", " ")), " ")
	if len([]rune(collapsed)) < 3 {
		return 0, false
	}
	for i, d := range dates {
		label := strings.ToLower(strings.ReplaceAll(d.Label, ",", ""))
		if strings.Contains(label, collapsed) || collapsed == d.Date {
			return i, true
		}
	}
	// Looser pass: a weekday name anywhere in the message, e.g. "monday please"
	for i, d := range dates {
		weekday := strings.ToLower(strings.SplitN(d.Label, ",", 2)[0])
		if weekday != "" && HasKeyword(msg, []string{weekday}) {
			return i, true
		}
	}
	return 0, false
}

// HasKeyword reports whether any keyword appears in message as a run of whole words.
// The last word of a keyword also matches its plural.
func HasKeyword(message string, keywords []string) bool {
	words := keywordWords(message)
	for _, k := range keywords {
		if containsPhrase(words, keywordWords(k)) {
			return true
		}
	}
	return false
}

// keywordWords splits s into lowercase letter and digit runs
func keywordWords(s string) []string {
	return wordPattern.FindAllString(strings.ToLower(normalizeInput(s)), -1)
}

func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	last := len(phrase) - 1
	for start := 0; start+len(phrase) <= len(words); start++ {
		matched := true
		for i, p := range phrase {
			w := words[start+i]
			if w != p && (i != last || w != p+"s") {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
