package dateparse

import "time"

const (
	DefaultEventMaxYearsAhead = 10
	// DefaultBirthdayMinYear admits contacts born in the nineteenth century.
	DefaultBirthdayMinYear = 1800
)

// YearPolicy decides whether a parsed date is plausible for the context it
// was collected in, possibly correcting it.
type YearPolicy interface {
	Check(input string, date time.Time, now time.Time) (time.Time, error)
}

// RelativePolicy is implemented by policies that also bound dates computed
// relative to now ("tomorrow", "in 2 weeks").
type RelativePolicy interface {
	CheckRelative(input string, date time.Time, now time.Time) (time.Time, error)
}

// EventPolicy accepts dates from today up to MaxYearsAhead years out. A date
// earlier in the current year is moved to the same day next year.
type EventPolicy struct {
	MaxYearsAhead int
}

func (p EventPolicy) Check(input string, date time.Time, now time.Time) (time.Time, error) {
	ahead := p.MaxYearsAhead
	if ahead <= 0 {
		ahead = DefaultEventMaxYearsAhead
	}
	cur := now.Year()
	if date.Year() < cur {
		return time.Time{}, implausible(input, cur, cur+ahead)
	}
	if date.Year() == cur && date.Before(startOfDay(now)) {
		date = atNoon(cur+1, date.Month(), date.Day(), date.Location())
	}
	if date.Year() > cur+ahead {
		return time.Time{}, implausible(input, cur, cur+ahead)
	}
	return date, nil
}

// BirthdayPolicy accepts years from MinYear through the current year.
type BirthdayPolicy struct {
	MinYear int
}

func (p BirthdayPolicy) Check(input string, date time.Time, now time.Time) (time.Time, error) {
	minYear := p.minYear()
	if date.Year() < minYear || date.Year() > now.Year() {
		return time.Time{}, implausible(input, minYear, now.Year())
	}
	return date, nil
}

// CheckRelative rejects relative birthdays that land after today.
func (p BirthdayPolicy) CheckRelative(input string, date time.Time, now time.Time) (time.Time, error) {
	if !date.Before(startOfDay(now).AddDate(0, 0, 1)) {
		return time.Time{}, implausible(input, p.minYear(), now.Year())
	}
	return p.Check(input, date, now)
}

func (p BirthdayPolicy) minYear() int {
	if p.MinYear <= 0 {
		return DefaultBirthdayMinYear
	}
	return p.MinYear
}
