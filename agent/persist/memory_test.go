package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
)

func TestMemoryRepositoryDedup(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	who := contract.Identity{UserID: "u1"}
	in := contract.NewContact{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Birthday: time.Date(1815, time.December, 10, 12, 0, 0, 0, time.UTC),
		DedupKey: "s-1:1000",
	}

	first, err := repo.CreateContact(context.Background(), who, in)
	if err != nil {
		t.Fatalf("CreateContact() error = %v", err)
	}
	second, err := repo.CreateContact(context.Background(), who, in)
	if err != nil {
		t.Fatalf("CreateContact() error = %v", err)
	}
	if first == "" || first != second {
		t.Fatalf("expected same id for a repeated dedup key, got %q and %q", first, second)
	}
	if got := len(repo.Contacts("u1")); got != 1 {
		t.Fatalf("expected 1 contact, got %d", got)
	}

	in.DedupKey = "s-1:2000"
	third, err := repo.CreateContact(context.Background(), who, in)
	if err != nil {
		t.Fatalf("CreateContact() error = %v", err)
	}
	if third == first {
		t.Fatalf("a new dedup key must create a new record")
	}
	if got := len(repo.Contacts("u1")); got != 2 {
		t.Fatalf("expected 2 contacts, got %d", got)
	}
}

func TestMemoryRepositoryKeysAreScopedByKind(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	who := contract.Identity{UserID: "u1"}
	date := time.Date(2026, time.June, 19, 12, 0, 0, 0, time.UTC)

	contactID, err := repo.CreateContact(context.Background(), who, contract.NewContact{Name: "A", Email: "a@b.co", Birthday: date, DedupKey: "k"})
	if err != nil {
		t.Fatalf("CreateContact() error = %v", err)
	}
	eventID, err := repo.CreateEvent(context.Background(), who, contract.NewEvent{Name: "Standup", Date: date, IsRecurring: true, DedupKey: "k"})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if contactID == eventID {
		t.Fatalf("contact and event must not share ids")
	}

	events := repo.Events("u1")
	if len(events) != 1 || !events[0].IsRecurring || !events[0].Date.Equal(date) {
		t.Fatalf("unexpected events: %#v", events)
	}
	if len(repo.Events("someone-else")) != 0 {
		t.Fatalf("events must be listed per user")
	}
}

func TestMemoryRepositoryErrors(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	date := time.Date(2026, time.June, 19, 12, 0, 0, 0, time.UTC)

	_, err := repo.CreateEvent(context.Background(), contract.Identity{}, contract.NewEvent{Name: "x", Date: date})
	if !errors.Is(err, contract.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	_, err = repo.CreateEvent(context.Background(), contract.Identity{UserID: "u1"}, contract.NewEvent{Name: "x"})
	if !errors.Is(err, contract.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.CreateContact(ctx, contract.Identity{UserID: "u1"}, contract.NewContact{Name: "x", Birthday: date})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMapErrorKeepsContextErrors(t *testing.T) {
	t.Parallel()

	err := mapError("insert contact", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline to survive, got %v", err)
	}

	err = mapError("insert contact", errors.New("connection reset"))
	if !errors.Is(err, contract.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if contract.ClassifyPersistence(err) != contract.KindPersistence {
		t.Fatalf("unexpected kind %q", contract.ClassifyPersistence(err))
	}
}
