package openrouter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newModelsServer(t *testing.T, seen *http.Header) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/models" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			*seen = r.Header.Clone()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"openai/gpt-4o-mini","object":"model","created":0,"owned_by":"openai"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyModel(t *testing.T) {
	t.Parallel()

	var seen http.Header
	srv := newModelsServer(t, &seen)
	cfg := Config{
		BaseURL:  srv.URL + "/api/v1/",
		APIKey:   "sk-test",
		Model:    "openai/gpt-4o-mini",
		SiteURL:  "https://example.com",
		SiteName: "toolflow",
	}

	if err := VerifyModel(context.Background(), cfg); err != nil {
		t.Fatalf("VerifyModel() error = %v", err)
	}
	if got := seen.Get("Authorization"); got != "Bearer sk-test" {
		t.Fatalf("unexpected authorization header: %q", got)
	}
	if got := seen.Get("X-Title"); got != "toolflow" {
		t.Fatalf("unexpected X-Title header: %q", got)
	}
	if got := seen.Get("HTTP-Referer"); got != "https://example.com" {
		t.Fatalf("unexpected HTTP-Referer header: %q", got)
	}
}

func TestVerifyModelUnknown(t *testing.T) {
	t.Parallel()

	srv := newModelsServer(t, nil)
	cfg := Config{BaseURL: srv.URL + "/api/v1", APIKey: "sk-test", Model: "nobody/none"}

	err := VerifyModel(context.Background(), cfg)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Parallel()

	if NewClient(Config{}) != nil {
		t.Fatalf("expected nil client without api key")
	}
	if err := VerifyModel(context.Background(), Config{Model: "m"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestHeaderTransport(t *testing.T) {
	t.Parallel()

	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
	}))
	t.Cleanup(srv.Close)

	client := &http.Client{Transport: &headerTransport{
		headers: Config{SiteName: "toolflow"}.headers(),
		base:    http.DefaultTransport,
	}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()

	if seen.Get("X-Title") != "toolflow" {
		t.Fatalf("expected X-Title header, got %#v", seen)
	}
	if seen.Get("HTTP-Referer") != "" {
		t.Fatalf("unexpected HTTP-Referer header")
	}
}

func TestBaseURLDefault(t *testing.T) {
	t.Parallel()

	if got := (Config{}).baseURL(); got != DefaultBaseURL {
		t.Fatalf("unexpected default base url: %s", got)
	}
	if got := (Config{BaseURL: "http://x/api/"}).baseURL(); got != "http://x/api" {
		t.Fatalf("unexpected trimmed base url: %s", got)
	}
}
