package dateparse

import (
	"errors"
	"fmt"
)

type FailureKind string

const (
	UnparseableFormat      FailureKind = "unparseable_format"
	ImpossibleCalendarDate FailureKind = "impossible_calendar_date"
	ImplausibleYear        FailureKind = "implausible_year"
)

var (
	ErrUnparseableFormat      = errors.New("unparseable date format")
	ErrImpossibleCalendarDate = errors.New("impossible calendar date")
	ErrImplausibleYear        = errors.New("implausible year")
)

const acceptedFormats = `MM/DD/YYYY, YYYY-MM-DD, MM/DD, "June 25", "tomorrow", "next Friday", "next month" or "in 2 weeks"`

// ParseError is returned by Resolve for every failure. Message is written
// for the end user; Input is the text as the caller sent it.
type ParseError struct {
	Kind    FailureKind
	Input   string
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrUnparseableFormat:
		return e.Kind == UnparseableFormat
	case ErrImpossibleCalendarDate:
		return e.Kind == ImpossibleCalendarDate
	case ErrImplausibleYear:
		return e.Kind == ImplausibleYear
	}
	return false
}

func unparseable(input string) *ParseError {
	return &ParseError{
		Kind:    UnparseableFormat,
		Input:   input,
		Message: fmt.Sprintf("I couldn't understand the date %q. Try formats like %s.", input, acceptedFormats),
	}
}

func impossible(input string) *ParseError {
	return &ParseError{
		Kind:    ImpossibleCalendarDate,
		Input:   input,
		Message: fmt.Sprintf("%q is not a real calendar date. Check the month and day and use a format like MM/DD/YYYY.", input),
	}
}

func implausible(input string, minYear, maxYear int) *ParseError {
	return &ParseError{
		Kind:    ImplausibleYear,
		Input:   input,
		Message: fmt.Sprintf("The year in %q must be between %d and %d.", input, minYear, maxYear),
	}
}
