package state

import (
	"errors"
	"maps"
	"time"
)

// StartStep is the step every flow record begins in.
const StartStep = "start"

// DefaultMaxRetries is the number of validation failures a flow survives.
const DefaultMaxRetries = 3

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
	StepCancelled  StepStatus = "cancelled"
)

// StepEntry is one line of the append-only audit trail.
type StepEntry struct {
	Step      string     `json:"step"`
	Timestamp time.Time  `json:"timestamp"`
	Status    StepStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
}

// FlowRecord tracks one multi-turn collection for a session.
// Fields only grows; keys are added as steps are passed.
type FlowRecord struct {
	SessionID    string         `json:"session_id"`
	ToolName     string         `json:"tool_name"`
	CurrentStep  string         `json:"current_step"`
	Fields       map[string]any `json:"fields,omitempty"`
	RetryCount   int            `json:"retry_count"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	CompletedAt  time.Time      `json:"completed_at,omitzero"`
	StepHistory  []StepEntry    `json:"step_history,omitempty"`
}

var (
	ErrFlowNotFound   = errors.New("flow not found")
	ErrNilFlowRecord  = errors.New("flow record is nil")
	ErrInvalidSession = errors.New("session id is empty")
	ErrInvalidTool    = errors.New("tool name is empty")
)

func NewFlowRecord(sessionID, toolName string, now time.Time) *FlowRecord {
	return &FlowRecord{
		SessionID:    sessionID,
		ToolName:     toolName,
		CurrentStep:  StartStep,
		Fields:       make(map[string]any, 4),
		CreatedAt:    now,
		LastActivity: now,
		StepHistory: []StepEntry{
			{Step: StartStep, Timestamp: now, Status: StepInProgress},
		},
	}
}

func (r *FlowRecord) IsCompleted() bool {
	return r != nil && !r.CompletedAt.IsZero()
}

// LastStatus returns the status of the latest history entry.
func (r *FlowRecord) LastStatus() StepStatus {
	if r == nil || len(r.StepHistory) == 0 {
		return ""
	}
	return r.StepHistory[len(r.StepHistory)-1].Status
}

func (r *FlowRecord) Duration() time.Duration {
	if r == nil {
		return 0
	}
	if r.IsCompleted() {
		return r.CompletedAt.Sub(r.CreatedAt)
	}
	return r.LastActivity.Sub(r.CreatedAt)
}

// Apply merges fields, records step with status and makes it current.
// In-progress entries of other steps are closed as completed.
func (r *FlowRecord) Apply(step string, fields map[string]any, status StepStatus, now time.Time) {
	if r.Fields == nil {
		r.Fields = make(map[string]any, len(fields))
	}
	maps.Copy(r.Fields, fields)

	for i := range r.StepHistory {
		e := &r.StepHistory[i]
		if e.Step != step && e.Status == StepInProgress {
			e.Status = StepCompleted
		}
	}
	r.record(step, status, "", now)
	r.CurrentStep = step
	r.LastActivity = now
}

// MarkError counts a failed attempt at step and moves the record back to it.
// It reports false once the retry ceiling is reached, cancelling every
// in-progress entry.
func (r *FlowRecord) MarkError(step string, cause error, maxRetries int, now time.Time) bool {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	r.RetryCount++
	r.record(step, StepError, msg, now)
	r.CurrentStep = step
	r.LastActivity = now

	if r.RetryCount < maxRetries {
		return true
	}
	for i := range r.StepHistory {
		if r.StepHistory[i].Status == StepInProgress {
			r.StepHistory[i].Status = StepCancelled
		}
	}
	return false
}

// Complete closes every pending or in-progress entry.
func (r *FlowRecord) Complete(now time.Time) {
	for i := range r.StepHistory {
		switch r.StepHistory[i].Status {
		case StepPending, StepInProgress:
			r.StepHistory[i].Status = StepCompleted
		}
	}
	r.CompletedAt = now
	r.LastActivity = now
}

func (r *FlowRecord) record(step string, status StepStatus, errMsg string, now time.Time) {
	if n := len(r.StepHistory); n > 0 && r.StepHistory[n-1].Step == step && r.StepHistory[n-1].Status == StepInProgress {
		last := &r.StepHistory[n-1]
		last.Status = status
		last.Error = errMsg
		last.Timestamp = now
		return
	}
	r.StepHistory = append(r.StepHistory, StepEntry{
		Step:      step,
		Timestamp: now,
		Status:    status,
		Error:     errMsg,
	})
}

func (r *FlowRecord) Clone() *FlowRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = maps.Clone(r.Fields)
	if out.Fields == nil {
		out.Fields = make(map[string]any)
	}
	out.StepHistory = append([]StepEntry(nil), r.StepHistory...)
	return &out
}

func (r *FlowRecord) Validate() error {
	if r == nil {
		return ErrNilFlowRecord
	}
	if r.SessionID == "" {
		return ErrInvalidSession
	}
	if r.ToolName == "" {
		return ErrInvalidTool
	}
	if r.CurrentStep == "" {
		return errors.New("current step is empty")
	}
	return nil
}
