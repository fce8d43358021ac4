package dateparse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// errNoMatch tells the resolver to move on to the next strategy.
var errNoMatch = errors.New("no match")

// Strategy is one way of reading a date. TryParse gets the sanitized,
// lower-cased input and returns errNoMatch when the text is not its shape.
// Relative strategies compute dates from now and skip the year policy.
type Strategy interface {
	Name() string
	Relative() bool
	TryParse(input string, now time.Time) (time.Time, error)
}

// DefaultStrategies returns the resolution chain in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		numericStrategy{},
		namedDayStrategy{},
		weekdayStrategy{},
		namedPeriodStrategy{},
		offsetStrategy{},
		calendarStrategy{},
		fuzzyUnitStrategy{},
	}
}

/* ----------------------------- 1. numeric ----------------------------- */

var (
	mdyPattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	ymdPattern = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	mdPattern  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`)
)

type numericStrategy struct{}

func (numericStrategy) Name() string   { return "numeric" }
func (numericStrategy) Relative() bool { return false }

func (numericStrategy) TryParse(input string, now time.Time) (time.Time, error) {
	var y, m, d int
	switch {
	case mdyPattern.MatchString(input):
		g := mdyPattern.FindStringSubmatch(input)
		m, d, y = atoi(g[1]), atoi(g[2]), atoi(g[3])
	case ymdPattern.MatchString(input):
		g := ymdPattern.FindStringSubmatch(input)
		y, m, d = atoi(g[1]), atoi(g[2]), atoi(g[3])
	case mdPattern.MatchString(input):
		g := mdPattern.FindStringSubmatch(input)
		m, d, y = atoi(g[1]), atoi(g[2]), now.Year()
	default:
		return time.Time{}, errNoMatch
	}
	t, ok := calendarDate(y, m, d, now.Location())
	if !ok {
		return time.Time{}, impossible(input)
	}
	return t, nil
}

/* --------------------------- 2. named days ---------------------------- */

var namedDayPattern = regexp.MustCompile(`^(today|tomorrow|yesterday)\b`)

type namedDayStrategy struct{}

func (namedDayStrategy) Name() string   { return "named_day" }
func (namedDayStrategy) Relative() bool { return true }

func (namedDayStrategy) TryParse(input string, now time.Time) (time.Time, error) {
	g := namedDayPattern.FindStringSubmatch(input)
	if g == nil {
		return time.Time{}, errNoMatch
	}
	today := noonOf(now)
	switch g[1] {
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	default:
		return today, nil
	}
}

/* ----------------------------- 3. weekday ----------------------------- */

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var weekdayPattern = regexp.MustCompile(`^(?:(this|next)\s+)?([a-z]+)$`)

type weekdayStrategy struct{}

func (weekdayStrategy) Name() string   { return "weekday" }
func (weekdayStrategy) Relative() bool { return false }

// "this X" is the next X counting today; "next X" is X in the following
// Sunday-started week, so it is never the X of the current week.
func (weekdayStrategy) TryParse(input string, now time.Time) (time.Time, error) {
	g := weekdayPattern.FindStringSubmatch(input)
	if g == nil {
		return time.Time{}, errNoMatch
	}
	target, ok := weekdays[g[2]]
	if !ok {
		return time.Time{}, errNoMatch
	}
	today := noonOf(now)
	cur := int(today.Weekday())
	var offset int
	if g[1] == "next" {
		offset = 7 - cur + int(target)
	} else {
		offset = (int(target) - cur + 7) % 7
	}
	return today.AddDate(0, 0, offset), nil
}

/* --------------------------- 4. named periods ------------------------- */

var namedPeriodPattern = regexp.MustCompile(`^next\s+(week|month|year)$`)

type namedPeriodStrategy struct{}

func (namedPeriodStrategy) Name() string   { return "named_period" }
func (namedPeriodStrategy) Relative() bool { return true }

func (namedPeriodStrategy) TryParse(input string, now time.Time) (time.Time, error) {
	g := namedPeriodPattern.FindStringSubmatch(input)
	if g == nil {
		return time.Time{}, errNoMatch
	}
	return addUnits(noonOf(now), 1, g[1]), nil
}

/* ------------------------- 5. quantified offsets ---------------------- */

const quantity = `(\d+|one|two|three|four|five|six|seven|eight|nine|ten|an|a)`

var (
	fromNowPattern = regexp.MustCompile(`^` + quantity + `\s+(day|week|month|year)s?\s+from\s+(?:today|now)$`)
	inPattern      = regexp.MustCompile(`^in\s+` + quantity + `\s+(day|week|month|year)s?$`)
)

type offsetStrategy struct{}

func (offsetStrategy) Name() string   { return "offset" }
func (offsetStrategy) Relative() bool { return true }

func (offsetStrategy) TryParse(input string, now time.Time) (time.Time, error) {
	g := fromNowPattern.FindStringSubmatch(input)
	if g == nil {
		g = inPattern.FindStringSubmatch(input)
	}
	if g == nil {
		return time.Time{}, errNoMatch
	}
	n, ok := parseQuantity(g[1])
	if !ok {
		return time.Time{}, errNoMatch
	}
	return addUnits(noonOf(now), n, g[2]), nil
}

/* ------------------------- 6. generic calendar ------------------------ */

var (
	ordinalSuffix = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)
	hasLetter     = regexp.MustCompile(`[a-z]`)
	hasYear       = regexp.MustCompile(`\b\d{4}\b`)
)

// Layouts for month-name dates written without a year.
var yearlessLayouts = []string{
	"January 2",
	"Jan 2",
	"2 January",
	"2 Jan",
	"Jan. 2",
}

type calendarStrategy struct{}

func (calendarStrategy) Name() string   { return "calendar" }
func (calendarStrategy) Relative() bool { return false }

func (calendarStrategy) TryParse(input string, now time.Time) (time.Time, error) {
	// Bare digit runs would be read as unix timestamps.
	if !hasLetter.MatchString(input) && !strings.ContainsAny(input, "/-.") {
		return time.Time{}, errNoMatch
	}
	text := ordinalSuffix.ReplaceAllString(input, "$1")

	if !hasYear.MatchString(text) {
		for _, layout := range yearlessLayouts {
			if t, err := time.ParseInLocation(layout, text, now.Location()); err == nil {
				return atNoon(now.Year(), t.Month(), t.Day(), now.Location()), nil
			}
		}
	}

	t, err := dateparse.ParseIn(text, now.Location())
	if err != nil {
		return time.Time{}, errNoMatch
	}
	if t.Year() == 0 {
		return atNoon(now.Year(), t.Month(), t.Day(), now.Location()), nil
	}
	return atNoon(t.Year(), t.Month(), t.Day(), now.Location()), nil
}

/* -------------------------- 7. fuzzy unit ----------------------------- */

var (
	unitWord     = regexp.MustCompile(`\b(day|week|month|year)s?\b`)
	quantityWord = regexp.MustCompile(`\b` + quantity + `\b`)
)

type fuzzyUnitStrategy struct{}

func (fuzzyUnitStrategy) Name() string   { return "fuzzy_unit" }
func (fuzzyUnitStrategy) Relative() bool { return true }

func (fuzzyUnitStrategy) TryParse(input string, now time.Time) (time.Time, error) {
	u := unitWord.FindStringSubmatch(input)
	if u == nil {
		return time.Time{}, errNoMatch
	}
	n := 1
	if q := quantityWord.FindStringSubmatch(input); q != nil {
		v, ok := parseQuantity(q[1])
		if !ok {
			return time.Time{}, errNoMatch
		}
		n = v
	}
	return addUnits(noonOf(now), n, u[1]), nil
}

/* ------------------------------ helpers ------------------------------- */

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// maxQuantity bounds offsets so AddDate stays far from overflow.
const maxQuantity = 10000

func parseQuantity(s string) (int, bool) {
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > maxQuantity {
		return 0, false
	}
	return n, true
}

func addUnits(t time.Time, n int, unit string) time.Time {
	switch unit {
	case "week":
		return t.AddDate(0, 0, 7*n)
	case "month":
		return t.AddDate(0, n, 0)
	case "year":
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// calendarDate builds local noon of y-m-d and reports whether the date
// exists, i.e. time.Date did not have to normalize it.
func calendarDate(y, m, d int, loc *time.Location) (time.Time, bool) {
	t := atNoon(y, time.Month(m), d, loc)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func atNoon(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, loc)
}

func noonOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return atNoon(y, m, d, t.Location())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
