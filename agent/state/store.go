package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultStoreKeyPrefix = "toolflow:flow:"
	defaultFlowTimeout    = 30 * time.Minute
	maxResponseSizeBytes  = 2 << 20
)

// Store keeps flow records addressed by session id. Update, MarkError,
// Complete return ErrFlowNotFound for unknown sessions; the caller then
// starts a fresh flow.
type Store interface {
	Start(ctx context.Context, sessionID, toolName string) (*FlowRecord, error)
	Get(ctx context.Context, sessionID string) (*FlowRecord, error)
	Update(ctx context.Context, sessionID, step string, fields map[string]any, status StepStatus) (*FlowRecord, error)
	MarkError(ctx context.Context, sessionID, step string, cause error) (*FlowRecord, bool, error)
	Complete(ctx context.Context, sessionID string) error
	Cancel(ctx context.Context, sessionID string) error
}

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithRedisClock(now func() time.Time) StoreOption {
	return func(s *UpstashRedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// UpstashRedisStore keeps flow records in Upstash Redis over REST so several
// instances can serve the same conversations. Expiry is the key TTL, which
// is refreshed on every write; there is no sweep.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
	maxRetries int
	now        func() time.Time
}

var _ Store = (*UpstashRedisStore)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL        string        `envconfig:"URL" split_words:"true" required:"true"`
	Token      string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	FlowTTL    time.Duration `envconfig:"FLOW_TTL" split_words:"true" default:"30m"`
	MaxRetries int           `envconfig:"MAX_RETRIES" split_words:"true" default:"3"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.FlowTTL
	if ttl == 0 {
		ttl = defaultFlowTimeout
	}

	store := &UpstashRedisStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix:  defaultStoreKeyPrefix,
		ttl:        ttl,
		maxRetries: cfg.MaxRetries,
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	if store.maxRetries <= 0 {
		store.maxRetries = DefaultMaxRetries
	}

	return store, nil
}

func (s *UpstashRedisStore) Start(ctx context.Context, sessionID, toolName string) (*FlowRecord, error) {
	if strings.TrimSpace(toolName) == "" {
		return nil, ErrInvalidTool
	}
	rec := NewFlowRecord(sessionID, toolName, s.now())
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *UpstashRedisStore) Get(ctx context.Context, sessionID string) (*FlowRecord, error) {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrFlowNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode flow payload: %w", err)
	}

	var rec FlowRecord
	if err := json.Unmarshal([]byte(encoded), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal flow record: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow record loaded from store: %w", err)
	}

	return &rec, nil
}

// Update is a read-modify-write; concurrent turns for one session resolve
// last-write-wins, which is safe because turns only add fields.
func (s *UpstashRedisStore) Update(ctx context.Context, sessionID, step string, fields map[string]any, status StepStatus) (*FlowRecord, error) {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec.Apply(step, fields, status, s.now())
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *UpstashRedisStore) MarkError(ctx context.Context, sessionID, step string, cause error) (*FlowRecord, bool, error) {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	retry := rec.MarkError(step, cause, s.maxRetries, s.now())
	if err := s.save(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec, retry, nil
}

func (s *UpstashRedisStore) Complete(ctx context.Context, sessionID string) error {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.Complete(s.now())
	return s.save(ctx, rec)
}

func (s *UpstashRedisStore) Cancel(ctx context.Context, sessionID string) error {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", key})
	return err
}

func (s *UpstashRedisStore) save(ctx context.Context, rec *FlowRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	key, err := s.redisKey(rec.SessionID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal flow record: %w", err)
	}

	cmd := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}

	if _, err := s.exec(ctx, cmd); err != nil {
		return err
	}
	return nil
}

func (s *UpstashRedisStore) redisKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return strings.TrimSpace(s.keyPrefix) + sessionID, nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
