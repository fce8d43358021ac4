// Package toolflow drives the multi-turn collection of a contact or an
// event. Each call executes one step, validates the field that step owns and
// tells the caller which step comes next.
package toolflow

import (
	"time"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	"github.com/tanpawarit/chative-toolflow/agent/dateparse"
)

type Step string

const (
	StepStart            Step = "start"
	StepCollectName      Step = "collect-name"
	StepCollectEmail     Step = "collect-email"
	StepCollectBirthday  Step = "collect-birthday"
	StepCollectDate      Step = "collect-date"
	StepCollectRecurring Step = "collect-recurring"
	StepConfirm          Step = "confirm"
	StepSubmit           Step = "submit"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Result is what one Execute call reports back to the chat layer. NextStep
// is set on every non-success result.
type Result struct {
	Status    Status             `json:"status"`
	Message   string             `json:"message"`
	NextStep  Step               `json:"next_step,omitempty"`
	SessionID string             `json:"session_id"`
	Fields    map[string]any     `json:"fields,omitempty"`
	ErrorKind contract.ErrorKind `json:"error_kind,omitempty"`
	Contact   *ContactDetails    `json:"contact,omitempty"`
	Event     *EventDetails      `json:"event,omitempty"`
}

type ContactDetails struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Birthday        time.Time `json:"birthday"`
	BirthdayDisplay string    `json:"birthday_display"`
}

type EventDetails struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	DateDisplay string    `json:"date_display"`
	IsRecurring bool      `json:"is_recurring"`
}

// Config carries the executor knobs. The retry ceiling belongs to the flow
// store.
type Config struct {
	SubmitTimeout      time.Duration `split_words:"true" default:"10s"`
	BirthdayMinYear    int           `split_words:"true" default:"1800"`
	EventMaxYearsAhead int           `split_words:"true" default:"10"`
}

const defaultSubmitTimeout = 10 * time.Second

func (c Config) withDefaults() Config {
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = defaultSubmitTimeout
	}
	if c.BirthdayMinYear <= 0 {
		c.BirthdayMinYear = dateparse.DefaultBirthdayMinYear
	}
	if c.EventMaxYearsAhead <= 0 {
		c.EventMaxYearsAhead = dateparse.DefaultEventMaxYearsAhead
	}
	return c
}
