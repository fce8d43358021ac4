// Package dateparse turns free-form date text from a chat turn into a
// calendar date at local noon.
//
// Resolution runs an ordered list of strategies and stops at the first one
// that matches. Absolute results are then checked against a YearPolicy
// (events: this year through ten years out, birthdays: a floor year through
// this year).
package dateparse

import (
	"errors"
	"strings"
	"time"

	"github.com/tanpawarit/chative-toolflow/agent/sanitize"
)

const (
	NumericLayout = "01/02/2006"
	DisplayLayout = "January 2, 2006"
)

// Result is a resolved date. Time is always local noon so that later
// timezone or DST arithmetic cannot push it onto a neighbouring day.
type Result struct {
	Time     time.Time
	Strategy string
}

func (r Result) UnixMilli() int64 {
	return r.Time.UnixMilli()
}

type Resolver struct {
	strategies []Strategy
	policy     YearPolicy
}

type Option func(*Resolver)

// WithStrategies replaces the default chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(r *Resolver) {
		if len(strategies) > 0 {
			r.strategies = strategies
		}
	}
}

func New(policy YearPolicy, opts ...Option) *Resolver {
	r := &Resolver{
		strategies: DefaultStrategies(),
		policy:     policy,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func NewEventResolver(maxYearsAhead int) *Resolver {
	return New(EventPolicy{MaxYearsAhead: maxYearsAhead})
}

func NewBirthdayResolver(minYear int) *Resolver {
	return New(BirthdayPolicy{MinYear: minYear})
}

// Resolve returns the first strategy match, corrected by the year policy.
// Every failure is a *ParseError.
func (r *Resolver) Resolve(input string, now time.Time) (Result, error) {
	text := strings.ToLower(sanitize.Text(input))
	if text == "" {
		return Result{}, unparseable(input)
	}

	sawImpossible := false
	for _, s := range r.strategies {
		t, err := s.TryParse(text, now)
		if err != nil {
			if errors.Is(err, ErrImpossibleCalendarDate) {
				sawImpossible = true
			}
			continue
		}

		checked, err := r.check(s, input, t, now)
		if err != nil {
			return Result{}, err
		}
		t = checked
		return Result{Time: noonOf(t), Strategy: s.Name()}, nil
	}

	if sawImpossible {
		return Result{}, impossible(input)
	}
	return Result{}, unparseable(input)
}

// check applies the year policy. Relative results are only checked by
// policies that implement RelativePolicy.
func (r *Resolver) check(s Strategy, input string, t, now time.Time) (time.Time, error) {
	if r.policy == nil {
		return t, nil
	}
	if !s.Relative() {
		return r.policy.Check(input, t, now)
	}
	if rp, ok := r.policy.(RelativePolicy); ok {
		return rp.CheckRelative(input, t, now)
	}
	return t, nil
}

// Format renders t as MM/DD/YYYY.
func Format(t time.Time) string {
	return t.Format(NumericLayout)
}

// Display renders t for chat replies, e.g. "December 10, 1815".
func Display(t time.Time) string {
	return t.Format(DisplayLayout)
}
