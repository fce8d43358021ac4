// Package sanitize cleans free text coming from chat turns and validates the
// handful of field formats the tool flows collect.
package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	MaxNameLength  = 100
	MaxEmailLength = 254
	MaxDateLength  = 100
)

var ErrInvalidInput = errors.New("invalid input")

// FieldError names the field that failed and a message fit for the end user.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

var unsafeChars = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Text trims s, drops the characters <>"'& and collapses runs of whitespace.
func Text(s string) string {
	return strings.Join(strings.Fields(unsafeChars.Replace(s)), " ")
}

func Name(s string) (string, error) {
	name := Text(s)
	if name == "" {
		return "", &FieldError{Field: "name", Message: "name cannot be empty"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", &FieldError{Field: "name", Message: fmt.Sprintf("name must be at most %d characters", MaxNameLength)}
	}
	return name, nil
}

func Email(s string) (string, error) {
	email := strings.ToLower(Text(s))
	if email == "" {
		return "", &FieldError{Field: "email", Message: "email cannot be empty"}
	}
	if len(email) > MaxEmailLength {
		return "", &FieldError{Field: "email", Message: fmt.Sprintf("email must be at most %d characters", MaxEmailLength)}
	}
	if err := validatorInstance().Var(email, "email"); err != nil {
		return "", &FieldError{Field: "email", Message: fmt.Sprintf("%q is not a valid email address, e.g. name@example.com", email)}
	}
	return email, nil
}

// DateText only checks shape; whether the text resolves to a date is the
// resolver's job.
func DateText(field, s string) (string, error) {
	text := Text(s)
	if text == "" {
		return "", &FieldError{Field: field, Message: field + " cannot be empty"}
	}
	if len(text) > MaxDateLength {
		return "", &FieldError{Field: field, Message: fmt.Sprintf("%s must be at most %d characters", field, MaxDateLength)}
	}
	return text, nil
}

// Bool accepts a real bool or the usual yes/no spellings a chat user types.
func Bool(field string, v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case *bool:
		if t != nil {
			return *t, nil
		}
	case string:
		switch strings.ToLower(Text(t)) {
		case "yes", "y", "true", "1", "recurring", "repeat", "repeats":
			return true, nil
		case "no", "n", "false", "0", "once", "one-time", "one time":
			return false, nil
		}
	}
	return false, &FieldError{Field: field, Message: field + " must be yes or no"}
}
