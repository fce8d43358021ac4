package contract

import (
	"context"
	"time"
)

// IdentityProvider resolves the caller identity for the current request.
// Implementations return ErrNotAuthenticated when no valid identity exists.
type IdentityProvider interface {
	Identity(ctx context.Context) (Identity, error)
}

type ContactCreator interface {
	CreateContact(ctx context.Context, who Identity, in NewContact) (string, error)
}

type EventCreator interface {
	CreateEvent(ctx context.Context, who Identity, in NewEvent) (string, error)
}

type ToolGateway interface {
	Execute(ctx context.Context, reqs []ToolRequest) ([]ToolResult, error)
}

type Identity struct {
	UserID string
	Token  string
}

// NewContact is the validated payload for a contact creation.
// DedupKey lets the store collapse retried submits of the same flow.
type NewContact struct {
	Name     string
	Email    string
	Birthday time.Time
	DedupKey string
}

type NewEvent struct {
	Name        string
	Date        time.Time
	IsRecurring bool
	DedupKey    string
}
