// Package persist holds the collaborators that store finished contacts and events.
package persist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
)

type Contact struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Birthday time.Time `json:"birthday"`
}

type Event struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	IsRecurring bool      `json:"is_recurring"`
}

// MemoryRepository keeps records in process. A repeated dedup key returns
// the id of the first record instead of creating another one.
type MemoryRepository struct {
	mu       sync.RWMutex
	byKey    map[string]string
	contacts []Contact
	events   []Event
	newID    func() string
}

var (
	_ contract.ContactCreator = (*MemoryRepository)(nil)
	_ contract.EventCreator   = (*MemoryRepository)(nil)
)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byKey: make(map[string]string),
		newID: uuid.NewString,
	}
}

func (r *MemoryRepository) CreateContact(ctx context.Context, who contract.Identity, in contract.NewContact) (string, error) {
	if err := checkCall(ctx, who); err != nil {
		return "", err
	}
	if in.Birthday.IsZero() {
		return "", fmt.Errorf("%w: birthday is empty", contract.ErrInvalidDate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.lookup("contact", in.DedupKey); ok {
		return id, nil
	}
	id := r.newID()
	r.contacts = append(r.contacts, Contact{
		ID:       id,
		UserID:   who.UserID,
		Name:     in.Name,
		Email:    in.Email,
		Birthday: in.Birthday,
	})
	r.remember("contact", in.DedupKey, id)
	return id, nil
}

func (r *MemoryRepository) CreateEvent(ctx context.Context, who contract.Identity, in contract.NewEvent) (string, error) {
	if err := checkCall(ctx, who); err != nil {
		return "", err
	}
	if in.Date.IsZero() {
		return "", fmt.Errorf("%w: event date is empty", contract.ErrInvalidDate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.lookup("event", in.DedupKey); ok {
		return id, nil
	}
	id := r.newID()
	r.events = append(r.events, Event{
		ID:          id,
		UserID:      who.UserID,
		Name:        in.Name,
		Date:        in.Date,
		IsRecurring: in.IsRecurring,
	})
	r.remember("event", in.DedupKey, id)
	return id, nil
}

func (r *MemoryRepository) Contacts(userID string) []Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (r *MemoryRepository) Events(userID string) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (r *MemoryRepository) lookup(kind, key string) (string, bool) {
	if strings.TrimSpace(key) == "" {
		return "", false
	}
	id, ok := r.byKey[kind+"/"+key]
	return id, ok
}

func (r *MemoryRepository) remember(kind, key, id string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	r.byKey[kind+"/"+key] = id
}

func checkCall(ctx context.Context, who contract.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(who.UserID) == "" {
		return fmt.Errorf("%w: user id is empty", contract.ErrNotAuthenticated)
	}
	return nil
}
