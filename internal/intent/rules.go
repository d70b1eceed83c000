package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/joescharf/voicecal/internal/models"
)

var (
	reReminderCue = regexp.MustCompile(`(?i)\b(?:remind\s+me|reminder|don'?t\s+let\s+me\s+forget|alert\s+me|ping\s+me)\b`)
	reTaskCue     = regexp.MustCompile(`(?i)\b(?:add\s+(?:a\s+)?task|task|todo|to-do|to\s+do\s+list|my\s+list)\b`)
	reEventCue    = regexp.MustCompile(`(?i)\b(?:meeting|meet|lunch|dinner|breakfast|brunch|coffee|call\s+with|appointment|schedule|book|sync|standup|stand-up|interview|party|event|session|class|calendar)\b`)
	reFiller      = regexp.MustCompile(`(?i)\b(?:to|on|in)\s+(?:my\s+)?(?:calendar|to\s*do\s+list|todo\s+list|task\s+list|list)\b`)
	reLoneHour    = regexp.MustCompile(`^\s*(\d{1,2})(?::(\d{2}))?\s*[.!]?\s*$`)
)

// leadingPhrases are stripped from the front of a title, repeatedly.
var leadingPhrases = []string{
	"please ", "can you ", "could you ", "i need to ", "i have to ", "i want to ", "need to ", "have to ",
	"remind me to ", "remind me about ", "remind me ", "set a reminder to ", "set a reminder for ",
	"set a reminder ", "reminder to ", "reminder for ", "reminder ", "don't let me forget to ",
	"dont let me forget to ", "alert me to ", "ping me to ",
	"add a task to ", "add task to ", "add a task ", "add task ", "add a todo to ", "add a todo ",
	"todo ", "to-do ", "task ", "schedule ", "book ", "set up ", "create ", "add ", "put ",
	"a ", "an ", "the ",
}

// trailingWords dangle once a date or time was cut from the end of a sentence.
var trailingWords = map[string]bool{
	"at": true, "on": true, "for": true, "from": true, "by": true, "in": true,
	"to": true, "and": true, "with": true, "until": true, "starting": true, "due": true,
}

var attendeeStopWords = map[string]bool{
	"me": true, "my": true, "the": true, "a": true, "an": true, "team": true, "everyone": true,
	"him": true, "her": true, "them": true, "us": true, "you": true, "someone": true, "somebody": true,
	"about": true, "regarding": true, "and": true,
}

// RuleExtractor is the deterministic, offline extractor.
type RuleExtractor struct {
	policy Policy
	dir    *Directory
}

// NewRuleExtractor returns a rule based extractor. dir may be nil.
func NewRuleExtractor(policy Policy, dir *Directory) *RuleExtractor {
	return &RuleExtractor{policy: policy.withDefaults(), dir: dir}
}

// Extract parses a transcript into one candidate, or several when an attendee
// name matches more than one contact.
func (e *RuleExtractor) Extract(_ context.Context, transcript string, tc TemporalContext) (*Result, error) {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return nil, fmt.Errorf("empty transcript: %w", ErrExtractionFailure)
	}
	t := scanTemporal(text, tc.now())

	kind, conf := detectKind(text, t)
	c := models.ActionCandidate{
		Kind:       kind,
		Title:      cleanTitle(t.rest()),
		Priority:   t.priority,
		Recurrence: t.recurrence,
		Confidence: conf,
	}
	if c.Title == "" && !t.hasCue() {
		return nil, fmt.Errorf("nothing recognisable in %q: %w", text, ErrExtractionFailure)
	}

	start, tentative := t.start()
	switch {
	case start != nil:
		c.Start = start
		if kind == models.ActionKindCalendarEvent {
			c.End = t.end(*start)
		}
	case t.date != nil:
		d := *t.date
		c.DateHint = &d
	}
	if kind == models.ActionKindCalendarEvent && t.duration > 0 && c.End == nil {
		c.Duration = t.duration
	}
	if tentative {
		c.Confidence = min(c.Confidence, ambiguousHourConfidence)
	}

	return e.policy.finish(e.withAttendees(c, attendeeNames(t.rest())))
}

// withAttendees resolves spoken names against the directory. Every name with
// several matching contacts multiplies the interpretations.
func (e *RuleExtractor) withAttendees(c models.ActionCandidate, names []string) *Result {
	if len(names) == 0 {
		return &Result{Candidate: &c}
	}
	combos := [][]string{nil}
	for _, name := range names {
		choices := []string{titleCase(name)}
		if matches := e.dir.Match(name); len(matches) > 0 {
			choices = choices[:0]
			for _, m := range matches {
				choices = append(choices, m.Name)
			}
		}
		var next [][]string
		for _, prefix := range combos {
			for _, choice := range choices {
				next = append(next, append(append([]string(nil), prefix...), choice))
			}
		}
		combos = next
	}
	if len(combos) == 1 {
		c.Attendees = combos[0]
		return &Result{Candidate: &c}
	}
	res := &Result{}
	for _, combo := range combos {
		opt := *c.Clone()
		opt.Attendees = combo
		res.Ambiguous = append(res.Ambiguous, opt)
	}
	return res
}

// Refine merges a clarification answer into the pending candidate. Fields the
// answer does not mention are kept.
func (e *RuleExtractor) Refine(_ context.Context, pending *models.ActionCandidate, answer string, tc TemporalContext) (*Result, error) {
	if pending == nil {
		return nil, fmt.Errorf("refine without a pending candidate: %w", ErrExtractionFailure)
	}
	now := tc.now()
	t := scanTemporal(answer, now)
	if t.clock == nil {
		if m := reLoneHour.FindStringSubmatch(answer); m != nil {
			if cl, ok := parseClock(m[1], m[2], ""); ok {
				t.clock = &cl
				t.work = []byte{}
			}
		}
	}

	c := pending.Clone()
	supplied := false
	ambiguous := false

	switch {
	case t.instant != nil:
		s := *t.instant
		c.Start, c.End = &s, nil
		supplied = true
	case t.clock != nil:
		h, m, amb := t.resolveClock(*t.clock)
		day, roll := midnight(now), true
		switch {
		case t.date != nil:
			day, roll = *t.date, false
		case c.DateHint != nil:
			day, roll = *c.DateHint, false
		case c.Start != nil:
			day, roll = midnight(*c.Start), false
		}
		s := atClock(day, h, m)
		if roll && !s.After(now) {
			s = s.AddDate(0, 0, 1)
		}
		amb = amb || (roll && t.recurrence == "" && pending.Recurrence == "") || s.Before(now)
		if c.Start != nil && c.End != nil && t.endClock == nil {
			c.Duration = c.End.Sub(*c.Start)
		}
		c.Start, c.End = &s, nil
		if c.Kind == models.ActionKindCalendarEvent {
			c.End = t.end(s)
		}
		ambiguous = amb
		supplied = true
	case t.date != nil:
		if c.Start != nil {
			s := atClock(*t.date, c.Start.Hour(), c.Start.Minute())
			if c.End != nil {
				end := s.Add(c.End.Sub(*c.Start))
				c.End = &end
			}
			c.Start = &s
		} else {
			d := *t.date
			c.DateHint = &d
		}
		supplied = true
	}

	if t.duration > 0 && c.Kind == models.ActionKindCalendarEvent {
		if c.Start != nil && c.End != nil {
			c.End = nil
		}
		c.Duration = t.duration
		c.DurationDefaulted = false
		supplied = true
	}
	if t.recurrence != "" {
		c.Recurrence = t.recurrence
		supplied = true
	}
	if t.priority != "" {
		c.Priority = t.priority
		supplied = true
	}
	if !c.HasField(models.FieldTitle) {
		if title := cleanTitle(t.rest()); title != "" {
			c.Title = title
			supplied = true
		}
	}

	if supplied {
		c.Confidence = baseConfidence
		if ambiguous {
			c.Confidence = ambiguousHourConfidence
		}
	}
	return e.policy.finish(&Result{Candidate: c})
}

func detectKind(text string, t *temporal) (models.ActionKind, float64) {
	switch {
	case reReminderCue.MatchString(text):
		return models.ActionKindReminder, baseConfidence
	case reTaskCue.MatchString(text):
		return models.ActionKindTask, baseConfidence
	case reEventCue.MatchString(text):
		return models.ActionKindCalendarEvent, baseConfidence
	case t.endClock != nil || t.duration > 0:
		return models.ActionKindCalendarEvent, baseConfidence - 0.05
	}
	return models.ActionKindTask, baseConfidence - 0.1
}

// hasTemporalCue reports whether text mentions any date or time.
func hasTemporalCue(text string, tc TemporalContext) bool {
	return scanTemporal(text, tc.now()).hasCue()
}

func cleanTitle(s string) string {
	s = reFiller.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, " ,", ",")

	for changed := true; changed; {
		changed = false
		s = strings.TrimLeft(s, ",.;:!?- ")
		lower := strings.ToLower(s)
		for _, p := range leadingPhrases {
			if strings.HasPrefix(lower, p) {
				s = s[len(p):]
				changed = true
				break
			}
		}
	}
	for {
		s = strings.TrimRight(s, ",.;:!?- ")
		i := strings.LastIndexByte(s, ' ')
		if i < 0 || !trailingWords[strings.ToLower(s[i+1:])] {
			break
		}
		s = s[:i]
	}
	if trailingWords[strings.ToLower(s)] {
		s = ""
	}
	if s == "" {
		return ""
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// attendeeNames collects the names following "with".
func attendeeNames(rest string) []string {
	words := strings.Fields(rest)
	var names []string
	for i := 0; i < len(words); i++ {
		if !strings.EqualFold(words[i], "with") {
			continue
		}
		j := i + 1
		for j < len(words) {
			w, comma := trimComma(words[j])
			lw := strings.ToLower(w)
			if attendeeStopWords[lw] || !isNameToken(w) {
				break
			}
			name := w
			j++
			if !comma && j < len(words) {
				nw, nc := trimComma(words[j])
				if isCapitalized(nw) && !attendeeStopWords[strings.ToLower(nw)] {
					name += " " + nw
					comma = nc
					j++
				}
			}
			names = append(names, name)
			if j < len(words) && strings.EqualFold(words[j], "and") {
				j++
				continue
			}
			if !comma {
				break
			}
		}
		i = j - 1
	}
	return names
}

func trimComma(w string) (string, bool) {
	t := strings.TrimRight(w, ",.;:!?")
	return t, strings.HasSuffix(w, ",")
}

func isNameToken(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if !unicode.IsLetter(r) && r != '\'' && r != '-' {
			return false
		}
	}
	return true
}

func isCapitalized(w string) bool {
	if !isNameToken(w) {
		return false
	}
	return unicode.IsUpper([]rune(w)[0])
}

func titleCase(name string) string {
	parts := strings.Fields(name)
	for i, p := range parts {
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}
