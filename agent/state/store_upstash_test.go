package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeUpstash is a tiny in-memory Redis answering the REST commands the
// store issues.
type fakeUpstash struct {
	mu       sync.Mutex
	values   map[string]string
	commands [][]any
}

func newFakeUpstash(t *testing.T) (*fakeUpstash, *httptest.Server) {
	t.Helper()

	f := &fakeUpstash{values: make(map[string]string)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		f.commands = append(f.commands, cmd)

		key, _ := cmd[1].(string)
		switch cmd[0] {
		case "SET":
			f.values[key], _ = cmd[2].(string)
			fmt.Fprint(w, `{"result":"OK"}`)
		case "GET":
			v, ok := f.values[key]
			if !ok {
				fmt.Fprint(w, `{"result":null}`)
				return
			}
			encoded, _ := json.Marshal(v)
			fmt.Fprintf(w, `{"result":%s}`, encoded)
		case "DEL":
			delete(f.values, key)
			fmt.Fprint(w, `{"result":1}`)
		default:
			fmt.Fprint(w, `{"error":"ERR unknown command"}`)
		}
	}))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeUpstash) lastCommand() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return nil
	}
	return f.commands[len(f.commands)-1]
}

func newTestUpstashStore(t *testing.T, server *httptest.Server, opts ...StoreOption) *UpstashRedisStore {
	t.Helper()

	opts = append([]StoreOption{WithHTTPClient(server.Client())}, opts...)
	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: server.URL, Token: "token"}, opts...)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	return store
}

func TestUpstashRedisStoreRedisKey(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{keyPrefix: defaultStoreKeyPrefix}
	got, err := store.redisKey("abc")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "toolflow:flow:abc" {
		t.Fatalf("redisKey() = %q, want %q", got, "toolflow:flow:abc")
	}
}

func TestUpstashRedisStoreRedisKeyEmptySession(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{}
	_, err := store.redisKey("   ")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("redisKey() error = %v, want ErrInvalidSession", err)
	}
}

func TestNewUpstashRedisStoreRequiresConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashRedisStore(UpstashRedisConfig{Token: "token"}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "https://example.upstash.io"}); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "https://example.upstash.io", Token: "t"}, WithTTL(-time.Second)); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestUpstashRedisStoreStartSetsKeyWithTTL(t *testing.T) {
	t.Parallel()

	fake, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server, WithTTL(90*time.Second))

	if _, err := store.Start(context.Background(), "session-1", "contact"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cmd := fake.lastCommand()
	if len(cmd) != 5 {
		t.Fatalf("unexpected command: %#v", cmd)
	}
	if cmd[0] != "SET" || cmd[1] != "toolflow:flow:session-1" {
		t.Fatalf("command = %v %v, want SET toolflow:flow:session-1", cmd[0], cmd[1])
	}
	if cmd[3] != "EX" || cmd[4] != float64(90) {
		t.Fatalf("ttl args = %v %v, want EX 90", cmd[3], cmd[4])
	}
}

func TestUpstashRedisStoreWithoutTTLOmitsExpiry(t *testing.T) {
	t.Parallel()

	fake, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server, WithTTL(0))

	if _, err := store.Start(context.Background(), "session-1", "event"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if cmd := fake.lastCommand(); len(cmd) != 3 {
		t.Fatalf("unexpected command: %#v", cmd)
	}
}

func TestUpstashRedisStoreFlowLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, server := newFakeUpstash(t)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store := newTestUpstashStore(t, server, WithRedisClock(func() time.Time { return now }))

	if _, err := store.Start(ctx, "session-2", "contact"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec, err := store.Update(ctx, "session-2", "collect-email", map[string]any{"name": "Ada"}, StepInProgress)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if rec.CurrentStep != "collect-email" {
		t.Fatalf("CurrentStep = %q, want collect-email", rec.CurrentStep)
	}

	_, retry, err := store.MarkError(ctx, "session-2", "collect-email", errors.New("invalid email"))
	if err != nil {
		t.Fatalf("MarkError() error = %v", err)
	}
	if !retry {
		t.Fatal("expected retry after first error")
	}

	got, err := store.Get(ctx, "session-2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Fields["name"] != "Ada" || got.RetryCount != 1 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.LastStatus() != StepError {
		t.Fatalf("LastStatus() = %s, want error", got.LastStatus())
	}

	if err := store.Complete(ctx, "session-2"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	got, err = store.Get(ctx, "session-2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.IsCompleted() {
		t.Fatal("expected completed record")
	}

	if err := store.Cancel(ctx, "session-2"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := store.Get(ctx, "session-2"); !errors.Is(err, ErrFlowNotFound) {
		t.Fatalf("Get() after cancel error = %v, want ErrFlowNotFound", err)
	}
}

func TestUpstashRedisStoreUpdateUnknownSession(t *testing.T) {
	t.Parallel()

	_, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server)

	_, err := store.Update(context.Background(), "missing", "collect-name", nil, StepInProgress)
	if !errors.Is(err, ErrFlowNotFound) {
		t.Fatalf("Update() error = %v, want ErrFlowNotFound", err)
	}
}

func TestUpstashRedisStoreSurfacesRedisErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGPASS invalid password"}`)
	}))
	t.Cleanup(server.Close)
	store := newTestUpstashStore(t, server)

	_, err := store.Get(context.Background(), "session-4")
	if err == nil || err.Error() != "WRONGPASS invalid password" {
		t.Fatalf("Get() error = %v, want redis error", err)
	}
}
