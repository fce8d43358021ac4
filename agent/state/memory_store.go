package state

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultSweepInterval = 5 * time.Minute

type MemoryStoreConfig struct {
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"30m"`
	SweepInterval time.Duration `split_words:"true" default:"5m"`
	MaxRetries    int           `split_words:"true" default:"3"`
}

// Stats is a point-in-time snapshot of the store.
type Stats struct {
	Total             int   `json:"total"`
	Active            int   `json:"active"`
	Completed         int   `json:"completed"`
	Errored           int   `json:"errored"`
	AverageDurationMs int64 `json:"average_duration_ms"`
}

// MemoryStore is the process-local Store. Records do not survive a restart
// and are not shared between instances; use UpstashRedisStore for that.
type MemoryStore struct {
	mu    sync.RWMutex
	flows map[string]*FlowRecord

	timeout       time.Duration
	sweepInterval time.Duration
	maxRetries    int
	now           func() time.Time
	logger        zerolog.Logger

	cronMu    sync.Mutex
	scheduler *cron.Cron
}

var _ Store = (*MemoryStore)(nil)

type MemoryOption func(*MemoryStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

func NewMemoryStore(cfg MemoryStoreConfig, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		flows:         make(map[string]*FlowRecord),
		timeout:       cfg.Timeout,
		sweepInterval: cfg.SweepInterval,
		maxRetries:    cfg.MaxRetries,
		now:           time.Now,
		logger:        log.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = defaultFlowTimeout
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = defaultSweepInterval
	}
	if s.maxRetries <= 0 {
		s.maxRetries = DefaultMaxRetries
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start creates a record for sessionID, replacing any existing one.
func (s *MemoryStore) Start(_ context.Context, sessionID, toolName string) (*FlowRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	if strings.TrimSpace(toolName) == "" {
		return nil, ErrInvalidTool
	}
	rec := NewFlowRecord(sessionID, toolName, s.now())

	s.mu.Lock()
	s.flows[sessionID] = rec
	s.mu.Unlock()

	return rec.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.flows[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, sessionID)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, sessionID, step string, fields map[string]any, status StepStatus) (*FlowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.flows[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, sessionID)
	}
	rec.Apply(step, fields, status, s.now())
	return rec.Clone(), nil
}

func (s *MemoryStore) MarkError(_ context.Context, sessionID, step string, cause error) (*FlowRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.flows[sessionID]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrFlowNotFound, sessionID)
	}
	retry := rec.MarkError(step, cause, s.maxRetries, s.now())
	return rec.Clone(), retry, nil
}

// Complete closes the record but keeps it readable until the next sweep.
func (s *MemoryStore) Complete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.flows[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFlowNotFound, sessionID)
	}
	rec.Complete(s.now())
	return nil
}

func (s *MemoryStore) Cancel(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.flows, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		st    Stats
		total time.Duration
	)
	for _, rec := range s.flows {
		st.Total++
		if rec.IsCompleted() {
			st.Completed++
			total += rec.Duration()
			continue
		}
		st.Active++
		if rec.LastStatus() == StepError {
			st.Errored++
		}
	}
	if st.Completed > 0 {
		st.AverageDurationMs = (total / time.Duration(st.Completed)).Milliseconds()
	}
	return st
}

// Sweep evicts every record idle for longer than the timeout and returns
// how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	evicted := 0
	for id, rec := range s.flows {
		if now.Sub(rec.LastActivity) > s.timeout {
			delete(s.flows, id)
			evicted++
		}
	}
	s.mu.Unlock()

	st := s.Stats()
	event := s.logger.Debug()
	if evicted > 0 {
		event = s.logger.Info()
	}
	event.
		Int("evicted", evicted).
		Int("total", st.Total).
		Int("active", st.Active).
		Int("completed", st.Completed).
		Int("errored", st.Errored).
		Int64("average_duration_ms", st.AverageDurationMs).
		Dur("timeout", s.timeout).
		Msg("flow sweep finished")
	return evicted
}

// StartCleanup schedules Sweep every interval (the configured sweep interval
// when interval <= 0). Calling it while a schedule is running is a no-op.
func (s *MemoryStore) StartCleanup(interval time.Duration) error {
	if interval <= 0 {
		interval = s.sweepInterval
	}
	if interval < time.Second {
		return fmt.Errorf("sweep interval %s is below one second", interval)
	}

	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.scheduler != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+interval.String(), func() { s.Sweep() }); err != nil {
		return fmt.Errorf("schedule flow sweep: %w", err)
	}
	c.Start()
	s.scheduler = c

	s.logger.Info().Dur("interval", interval).Dur("timeout", s.timeout).Msg("flow sweep started")
	return nil
}

// StopCleanup stops the schedule and waits for a running sweep to finish.
func (s *MemoryStore) StopCleanup() {
	s.cronMu.Lock()
	c := s.scheduler
	s.scheduler = nil
	s.cronMu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info().Msg("flow sweep stopped")
}
