package contract

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidDate      = errors.New("invalid date")
	ErrPersistence      = errors.New("persistence failed")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrModelInvoke      = errors.New("model invoke failed")
	ErrSchemaViolation  = errors.New("model response violates schema")
)

// ErrorKind is the closed set of failure classes a flow result can carry.
// Step routing is decided from the kind, never from message text.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindValidation     ErrorKind = "validation"
	KindDate           ErrorKind = "date"
	KindAuth           ErrorKind = "auth"
	KindPersistence    ErrorKind = "persistence"
	KindTimeout        ErrorKind = "timeout"
	KindRetryExhausted ErrorKind = "retry_exhausted"
)

// ClassifyPersistence maps an error returned by a persistence collaborator to its kind.
func ClassifyPersistence(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotAuthenticated):
		return KindAuth
	case errors.Is(err, ErrInvalidDate):
		return KindDate
	default:
		return KindPersistence
	}
}
