package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/models"
)

const numWords = `(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)`

const monthNames = `(january|jan|february|feb|march|mar|april|apr|may|june|jun|july|jul|august|aug|september|sept|sep|october|oct|november|nov|december|dec)`

const weekdayNames = `(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun)`

var (
	reInHalfHour = regexp.MustCompile(`(?i)\bin\s+half\s+an\s+hour\b`)
	reInRelative = regexp.MustCompile(`(?i)\bin\s+` + numWords + `\s+(minutes?|mins?|hours?|hrs?|days?|weeks?)\b`)

	reRangeMeridiem = regexp.MustCompile(`(?i)\b(?:from\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*(?:-|–|to|until|till)\s*(\d{1,2})(?::(\d{2}))?\s*(am\b|pm\b)`)
	reRange24       = regexp.MustCompile(`(?i)\b(?:from\s+)?(\d{1,2}):(\d{2})\s*(?:-|–|to|until|till)\s*(\d{1,2}):(\d{2})\b`)
	reTimeMeridiem  = regexp.MustCompile(`(?i)\b(?:at\s+|@\s*)?(\d{1,2})(?::(\d{2}))?\s*(am\b|pm\b|a\.m\.|p\.m\.)`)
	reTime24        = regexp.MustCompile(`(?i)(?:\bat\s+|@\s*|\b)(\d{1,2}):(\d{2})\b`)
	reNamedTime     = regexp.MustCompile(`(?i)\b(?:at\s+)?(noon|midday|midnight)\b`)
	reOClock        = regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2})\s*o'?clock\b`)
	reBareHour      = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})\b`)
	rePartOfDay     = regexp.MustCompile(`(?i)\b(?:(this|in\s+the)\s+)?(morning|afternoon|evening|tonight)\b`)

	reHalfHour    = regexp.MustCompile(`(?i)\b(?:for\s+)?half\s+an?\s+hour\b`)
	reHourAndHalf = regexp.MustCompile(`(?i)\b(?:for\s+)?(?:an?|one|1)\s+hour\s+and\s+a\s+half\b`)
	reDuration    = regexp.MustCompile(`(?i)\b(?:for\s+)?(\d+(?:\.\d+)?|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s*(hours?|hrs?|minutes?|mins?)\b`)

	reEveryWeekday = regexp.MustCompile(`(?i)\b(?:every\s+weekday|on\s+weekdays|weekdays|every\s+work\s*day)\b`)
	reEveryDay     = regexp.MustCompile(`(?i)\b(?:every\s+day|daily|each\s+day|every\s+morning|every\s+evening|every\s+night)\b`)
	reEveryDOW     = regexp.MustCompile(`(?i)\b(?:every|each)\s+` + weekdayNames + `\b`)
	rePluralDOW    = regexp.MustCompile(`(?i)\b(?:on\s+)?(mondays|tuesdays|wednesdays|thursdays|fridays|saturdays|sundays)\b`)
	reEveryWeek    = regexp.MustCompile(`(?i)\b(?:every\s+week|weekly|each\s+week)\b`)
	reEveryMonth   = regexp.MustCompile(`(?i)\b(?:every\s+month|monthly|each\s+month)\b`)
	reEveryYear    = regexp.MustCompile(`(?i)\b(?:every\s+year|yearly|annually)\b`)

	reDayAfterTomorrow = regexp.MustCompile(`(?i)\b(?:the\s+)?day\s+after\s+tomorrow\b`)
	reTomorrow         = regexp.MustCompile(`(?i)\b(?:tomorrow|tmrw|tmr)\b`)
	reToday            = regexp.MustCompile(`(?i)\btoday\b`)
	reNextWeek         = regexp.MustCompile(`(?i)\bnext\s+week\b`)
	reISODate          = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	reMonthDay         = regexp.MustCompile(`(?i)\b(?:on\s+)?` + monthNames + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	reDayMonth         = regexp.MustCompile(`(?i)\b(?:on\s+)?(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthNames + `\b`)
	reSlashDate        = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	reWeekday          = regexp.MustCompile(`(?i)\b(?:on\s+)?(?:(next|this|coming)\s+)?` + weekdayNames + `\b`)

	reHighPriority   = regexp.MustCompile(`(?i)\b(?:high\s+priority|urgent(?:ly)?|asap|important|critical)\b`)
	reLowPriority    = regexp.MustCompile(`(?i)\b(?:low\s+priority|no\s+rush|whenever|someday)\b`)
	reMediumPriority = regexp.MustCompile(`(?i)\b(?:medium|normal)\s+priority\b`)
)

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tues": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thurs": time.Thursday, "thur": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

var rruleDays = map[time.Weekday]string{
	time.Monday: "MO", time.Tuesday: "TU", time.Wednesday: "WE", time.Thursday: "TH",
	time.Friday: "FR", time.Saturday: "SA", time.Sunday: "SU",
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January, "february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March, "april": time.April, "apr": time.April, "may": time.May,
	"june": time.June, "jun": time.June, "july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August, "september": time.September, "sept": time.September,
	"sep": time.September, "october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November, "december": time.December, "dec": time.December,
}

// clock is a parsed time of day before meridiem resolution.
type clock struct {
	hour, min int
	meridiem  string // "am", "pm" or ""
	explicit  bool   // 24h notation or a named time
}

// temporal is everything time related found in a piece of text.
type temporal struct {
	work []byte // text with recognised spans blanked out

	now      time.Time
	date     *time.Time
	clock    *clock
	endClock *clock
	instant  *time.Time
	duration time.Duration

	recurrence string
	recurDay   *time.Weekday
	priority   models.Priority

	amHint, pmHint bool
	partOfDay      bool
}

func numberValue(s string) (int, bool) {
	s = strings.ToLower(s)
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// scanTemporal extracts dates, times, durations, recurrence and priority from text.
func scanTemporal(text string, now time.Time) *temporal {
	t := &temporal{work: []byte(text), now: now}
	today := midnight(now)

	t.take(reInHalfHour, func(m []string) bool {
		at := now.Add(30 * time.Minute)
		t.instant = &at
		return true
	})
	t.take(reInRelative, func(m []string) bool {
		n, ok := numberValue(m[1])
		if !ok {
			return false
		}
		unit := strings.ToLower(m[2])
		switch {
		case strings.HasPrefix(unit, "min"):
			at := now.Add(time.Duration(n) * time.Minute)
			t.instant = &at
		case strings.HasPrefix(unit, "h"):
			at := now.Add(time.Duration(n) * time.Hour)
			t.instant = &at
		case strings.HasPrefix(unit, "day"):
			t.setDate(today.AddDate(0, 0, n))
		default:
			t.setDate(today.AddDate(0, 0, 7*n))
		}
		return true
	})

	t.take(reRangeMeridiem, func(m []string) bool {
		start, ok1 := parseClock(m[1], m[2], m[3])
		end, ok2 := parseClock(m[4], m[5], m[6])
		if !ok1 || !ok2 {
			return false
		}
		if start.meridiem == "" {
			start.meridiem = end.meridiem
			if to24(start) > to24(end) {
				start.meridiem = "am"
			}
		}
		t.clock, t.endClock = &start, &end
		return true
	})
	t.take(reRange24, func(m []string) bool {
		start, ok1 := parseClock(m[1], m[2], "")
		end, ok2 := parseClock(m[3], m[4], "")
		if !ok1 || !ok2 {
			return false
		}
		start.explicit, end.explicit = true, true
		t.clock, t.endClock = &start, &end
		return true
	})
	// An out-of-range clock such as "at 25:00" is still consumed so it does
	// not leak into the title; the start stays unknown.
	t.take(reTimeMeridiem, func(m []string) bool {
		c, ok := parseClock(m[1], m[2], m[3])
		if !ok {
			return true
		}
		if t.clock != nil {
			return false
		}
		t.clock = &c
		return true
	})
	t.take(reTime24, func(m []string) bool {
		c, ok := parseClock(m[1], m[2], "")
		if !ok {
			return true
		}
		if t.clock != nil {
			return false
		}
		c.explicit = c.hour >= 13 || c.hour == 0 || strings.HasPrefix(m[1], "0")
		t.clock = &c
		return true
	})
	t.take(reNamedTime, func(m []string) bool {
		if t.clock != nil {
			return false
		}
		c := clock{hour: 12, explicit: true}
		if strings.EqualFold(m[1], "midnight") {
			c.hour = 24
		}
		t.clock = &c
		return true
	})
	t.take(reOClock, func(m []string) bool {
		c, ok := parseClock(m[1], "", "")
		if !ok || t.clock != nil {
			return false
		}
		t.clock = &c
		return true
	})
	t.take(reBareHour, func(m []string) bool {
		c, ok := parseClock(m[1], "", "")
		if !ok || t.clock != nil {
			return false
		}
		t.clock = &c
		return true
	})
	t.take(rePartOfDay, func(m []string) bool {
		t.partOfDay = true
		switch strings.ToLower(m[2]) {
		case "morning":
			t.amHint = true
		case "tonight":
			t.pmHint = true
			t.setDate(today)
		default:
			t.pmHint = true
		}
		if m[1] != "" && strings.EqualFold(m[1], "this") {
			t.setDate(today)
		}
		return true
	})

	t.take(reHourAndHalf, func(m []string) bool {
		t.duration = 90 * time.Minute
		return true
	})
	t.take(reHalfHour, func(m []string) bool {
		t.duration = 30 * time.Minute
		return true
	})
	t.take(reDuration, func(m []string) bool {
		if t.duration > 0 {
			return false
		}
		var n float64
		if v, ok := numberWords[strings.ToLower(m[1])]; ok {
			n = float64(v)
		} else {
			f, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return false
			}
			n = f
		}
		unit := time.Minute
		if strings.HasPrefix(strings.ToLower(m[2]), "h") {
			unit = time.Hour
		}
		t.duration = time.Duration(n * float64(unit))
		return t.duration > 0
	})

	t.take(reEveryWeekday, func(m []string) bool {
		t.recurrence = "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR"
		return true
	})
	t.take(reEveryDay, func(m []string) bool {
		t.recurrence = "FREQ=DAILY"
		return true
	})
	t.take(reEveryDOW, func(m []string) bool {
		wd := weekdays[strings.ToLower(m[1])]
		t.recurrence = "FREQ=WEEKLY;BYDAY=" + rruleDays[wd]
		t.recurDay = &wd
		return true
	})
	t.take(rePluralDOW, func(m []string) bool {
		wd := weekdays[strings.TrimSuffix(strings.ToLower(m[1]), "s")]
		t.recurrence = "FREQ=WEEKLY;BYDAY=" + rruleDays[wd]
		t.recurDay = &wd
		return true
	})
	t.take(reEveryWeek, func(m []string) bool {
		t.recurrence = "FREQ=WEEKLY"
		return true
	})
	t.take(reEveryMonth, func(m []string) bool {
		t.recurrence = "FREQ=MONTHLY"
		return true
	})
	t.take(reEveryYear, func(m []string) bool {
		t.recurrence = "FREQ=YEARLY"
		return true
	})
	if t.recurrence != "" && calendar.ValidateRule(t.recurrence) != nil {
		t.recurrence = ""
	}

	t.take(reDayAfterTomorrow, func(m []string) bool {
		t.setDate(today.AddDate(0, 0, 2))
		return true
	})
	t.take(reTomorrow, func(m []string) bool {
		t.setDate(today.AddDate(0, 0, 1))
		return true
	})
	t.take(reToday, func(m []string) bool {
		t.setDate(today)
		return true
	})
	t.take(reNextWeek, func(m []string) bool {
		t.setDate(nextWeekday(today, time.Monday))
		return true
	})
	t.take(reISODate, func(m []string) bool {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return t.setCalendarDate(y, time.Month(mo), d, true)
	})
	t.take(reMonthDay, func(m []string) bool {
		d, _ := strconv.Atoi(m[2])
		return t.setCalendarDate(today.Year(), months[strings.ToLower(m[1])], d, false)
	})
	t.take(reDayMonth, func(m []string) bool {
		d, _ := strconv.Atoi(m[1])
		return t.setCalendarDate(today.Year(), months[strings.ToLower(m[2])], d, false)
	})
	t.take(reSlashDate, func(m []string) bool {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		if m[3] == "" {
			return t.setCalendarDate(today.Year(), time.Month(mo), d, false)
		}
		y, _ := strconv.Atoi(m[3])
		if y < 100 {
			y += 2000
		}
		return t.setCalendarDate(y, time.Month(mo), d, true)
	})
	t.take(reWeekday, func(m []string) bool {
		if t.date != nil {
			return false
		}
		t.setDate(nextWeekday(today, weekdays[strings.ToLower(m[2])]))
		return true
	})
	if t.date == nil && t.recurDay != nil {
		t.setDate(nextWeekday(today, *t.recurDay))
	}

	t.take(reHighPriority, func(m []string) bool {
		t.priority = models.PriorityHigh
		return true
	})
	t.take(reLowPriority, func(m []string) bool {
		if t.priority == "" {
			t.priority = models.PriorityLow
		}
		return true
	})
	t.take(reMediumPriority, func(m []string) bool {
		if t.priority == "" {
			t.priority = models.PriorityMedium
		}
		return true
	})

	return t
}

// take runs re over the unconsumed text and blanks every match fn accepts.
func (t *temporal) take(re *regexp.Regexp, fn func(m []string) bool) {
	for _, loc := range re.FindAllSubmatchIndex(t.work, -1) {
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = string(t.work[loc[2*i]:loc[2*i+1]])
			}
		}
		if fn(m) {
			for i := loc[0]; i < loc[1]; i++ {
				t.work[i] = ' '
			}
		}
	}
}

func (t *temporal) setDate(d time.Time) {
	if t.date == nil {
		t.date = &d
	}
}

func (t *temporal) setCalendarDate(y int, mo time.Month, d int, yearGiven bool) bool {
	if mo < time.January || mo > time.December || d < 1 || d > 31 {
		return false
	}
	date := time.Date(y, mo, d, 0, 0, 0, 0, t.now.Location())
	if date.Month() != mo {
		return false
	}
	if !yearGiven && date.Before(midnight(t.now)) {
		date = date.AddDate(1, 0, 0)
	}
	t.setDate(date)
	return true
}

// rest returns the text left after every recognised span was removed.
func (t *temporal) rest() string { return string(t.work) }

// hasCue reports whether any date or time expression was found.
func (t *temporal) hasCue() bool {
	return t.date != nil || t.clock != nil || t.instant != nil || t.recurrence != "" || t.partOfDay
}

// resolveClock applies meridiem rules. Bare hours 1-7 with no hint are read as
// afternoon and flagged ambiguous.
func (t *temporal) resolveClock(c clock) (hour, min int, ambiguous bool) {
	switch {
	case c.meridiem != "":
		return to24(c), c.min, false
	case c.explicit:
		return c.hour, c.min, false
	case c.hour >= 13:
		return c.hour, c.min, false
	case t.pmHint && c.hour < 12:
		return c.hour + 12, c.min, false
	case t.amHint:
		return c.hour, c.min, false
	case c.hour >= 1 && c.hour <= 7:
		return c.hour + 12, c.min, true
	}
	return c.hour, c.min, false
}

// start resolves the start instant, if the text named one. The start is
// tentative when the hour was ambiguous, when only a clock time was said and
// the day had to be assumed, or when it lies in the past.
func (t *temporal) start() (start *time.Time, tentative bool) {
	if t.instant != nil {
		s := *t.instant
		return &s, false
	}
	if t.clock == nil {
		return nil, false
	}
	h, m, amb := t.resolveClock(*t.clock)
	day := midnight(t.now)
	if t.date != nil {
		day = *t.date
	}
	s := atClock(day, h, m)
	if t.date == nil && !s.After(t.now) {
		s = atClock(day.AddDate(0, 0, 1), h, m)
	}
	return &s, amb || t.dayAssumed() || s.Before(t.now)
}

// dayAssumed reports a clock time with nothing naming the day.
func (t *temporal) dayAssumed() bool {
	return t.clock != nil && t.date == nil && t.instant == nil && t.recurrence == ""
}

// end resolves the explicit end of a time range relative to start.
func (t *temporal) end(start time.Time) *time.Time {
	if t.endClock == nil {
		return nil
	}
	h, m, _ := t.resolveClock(*t.endClock)
	e := atClock(midnight(start), h, m)
	if !e.After(start) {
		e = e.AddDate(0, 0, 1)
	}
	return &e
}

func parseClock(hour, min, meridiem string) (clock, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil || h > 24 {
		return clock{}, false
	}
	c := clock{hour: h}
	if min != "" {
		mi, err := strconv.Atoi(min)
		if err != nil || mi > 59 {
			return clock{}, false
		}
		c.min = mi
	}
	mer := strings.ToLower(strings.ReplaceAll(meridiem, ".", ""))
	if mer != "" {
		if h < 1 || h > 12 {
			return clock{}, false
		}
		c.meridiem = mer
	}
	return c, true
}

func to24(c clock) int {
	switch {
	case c.meridiem == "am" && c.hour == 12:
		return 0
	case c.meridiem == "pm" && c.hour < 12:
		return c.hour + 12
	}
	return c.hour
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func atClock(day time.Time, hour, min int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, day.Location())
}

// nextWeekday returns the next wd strictly after today.
func nextWeekday(today time.Time, wd time.Weekday) time.Time {
	ahead := (int(wd) - int(today.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return today.AddDate(0, 0, ahead)
}
