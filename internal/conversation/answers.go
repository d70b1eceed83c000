package conversation

import (
	"strconv"
	"strings"

	"github.com/joescharf/voicecal/internal/models"
)

var affirmativeWords = []string{
	"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm", "confirmed", "correct",
	"right", "that's right", "thats right", "sounds good", "do it", "go ahead", "book it",
	"yes please", "perfect", "affirmative",
}

var cancelWords = []string{
	"cancel", "cancel it", "cancel that", "stop", "never mind", "nevermind", "forget it", "abort",
}

var negativeWords = append([]string{"no", "nope", "nah", "don't", "dont"}, cancelWords...)

var overridePhrases = []string{
	"anyway", "anyways", "override", "keep it", "keep that", "ignore the conflict",
	"ignore conflict", "double book", "double-book", "proceed",
}

var politeSuffixes = []string{" please", " thanks", " thank you"}

var ordinalWords = map[string]int{
	"first": 1, "1st": 1, "one": 1,
	"second": 2, "2nd": 2, "two": 2,
	"third": 3, "3rd": 3, "three": 3,
	"fourth": 4, "4th": 4, "four": 4,
	"fifth": 5, "5th": 5, "five": 5,
}

// normalize lowercases text, drops punctuation at the ends and polite suffixes.
func normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.Trim(s, ".,!?;: ")
	for _, suf := range politeSuffixes {
		s = strings.TrimSuffix(s, suf)
	}
	s = strings.TrimPrefix(s, "please ")
	return strings.Trim(s, ".,!?;: ")
}

func matchesExactly(text string, words []string) bool {
	s := normalize(text)
	for _, w := range words {
		if s == w {
			return true
		}
	}
	return false
}

func isAffirmative(text string) bool { return matchesExactly(text, affirmativeWords) }

func isNegative(text string) bool {
	return matchesExactly(text, negativeWords) || strings.HasPrefix(normalize(text), "no thanks")
}

func isCancel(text string) bool { return matchesExactly(text, cancelWords) }

func isOverride(text string) bool {
	s := normalize(text)
	for _, p := range overridePhrases {
		if s == p || strings.HasPrefix(s, p+" ") || strings.HasSuffix(s, " "+p) || strings.Contains(s, " "+p+" ") {
			return true
		}
	}
	return false
}

// parseChoice reads "2", "the second one", "option 3" or "last" as a 0-based
// index into n choices.
func parseChoice(text string, n int) (int, bool) {
	s := normalize(text)
	for _, p := range []string{"the ", "option ", "number ", "slot ", "#"} {
		s = strings.TrimPrefix(s, p)
	}
	for _, suf := range []string{" one", " option", " slot"} {
		s = strings.TrimSuffix(s, suf)
	}
	s = strings.TrimSpace(s)

	idx := 0
	if s == "last" {
		idx = n
	} else if v, err := strconv.Atoi(s); err == nil {
		idx = v
	} else if v, ok := ordinalWords[s]; ok {
		idx = v
	}
	if idx < 1 || idx > n {
		return 0, false
	}
	return idx - 1, true
}

// matchOption picks the single option whose label contains text.
func matchOption(text string, options []models.ActionCandidate) (int, bool) {
	s := normalize(text)
	if len(s) < 3 {
		return 0, false
	}
	found := -1
	for i := range options {
		if strings.Contains(strings.ToLower(options[i].Label()), s) {
			if found >= 0 {
				return 0, false
			}
			found = i
		}
	}
	return found, found >= 0
}
