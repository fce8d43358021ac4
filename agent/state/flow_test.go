package state

import (
	"errors"
	"testing"
	"time"
)

func TestFlowRecordApplyAdvancesAndClosesPreviousStep(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := NewFlowRecord("s1", "contact", now)

	rec.Apply("collect-name", nil, StepInProgress, now.Add(time.Second))
	rec.Apply("collect-email", map[string]any{"name": "Ada"}, StepInProgress, now.Add(2*time.Second))

	if rec.CurrentStep != "collect-email" {
		t.Fatalf("CurrentStep = %q, want collect-email", rec.CurrentStep)
	}
	if rec.Fields["name"] != "Ada" {
		t.Fatalf("Fields[name] = %v, want Ada", rec.Fields["name"])
	}
	if got := len(rec.StepHistory); got != 3 {
		t.Fatalf("len(StepHistory) = %d, want 3", got)
	}
	for i, want := range []StepStatus{StepCompleted, StepCompleted, StepInProgress} {
		if rec.StepHistory[i].Status != want {
			t.Fatalf("StepHistory[%d].Status = %s, want %s", i, rec.StepHistory[i].Status, want)
		}
	}
	if !rec.LastActivity.Equal(now.Add(2 * time.Second)) {
		t.Fatalf("LastActivity not bumped: %s", rec.LastActivity)
	}
}

func TestFlowRecordMarkErrorCeiling(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := NewFlowRecord("s1", "contact", now)
	rec.Apply("collect-email", map[string]any{"name": "Ada"}, StepInProgress, now)

	cause := errors.New("bad email")
	if !rec.MarkError("collect-email", cause, 3, now) {
		t.Fatal("first error must allow retry")
	}
	rec.Apply("collect-email", nil, StepInProgress, now)
	if !rec.MarkError("collect-email", cause, 3, now) {
		t.Fatal("second error must allow retry")
	}
	rec.Apply("collect-email", nil, StepInProgress, now)
	if rec.MarkError("collect-email", cause, 3, now) {
		t.Fatal("third error must exhaust retries")
	}
	if rec.RetryCount != 3 {
		t.Fatalf("RetryCount = %d, want 3", rec.RetryCount)
	}
	for _, e := range rec.StepHistory {
		if e.Status == StepInProgress {
			t.Fatalf("in-progress entry left after exhaustion: %+v", e)
		}
	}
	last := rec.StepHistory[len(rec.StepHistory)-1]
	if last.Status != StepError || last.Error != "bad email" {
		t.Fatalf("unexpected last entry: %+v", last)
	}
}

func TestFlowRecordMarkErrorMovesBackward(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := NewFlowRecord("s1", "contact", now)
	rec.Apply("confirm", map[string]any{"name": "Ada", "email": "ada@example.com", "birthday": "x"}, StepInProgress, now)

	rec.MarkError("collect-birthday", errors.New("bad date"), 3, now)
	if rec.CurrentStep != "collect-birthday" {
		t.Fatalf("CurrentStep = %q, want collect-birthday", rec.CurrentStep)
	}
	if rec.Fields["name"] != "Ada" {
		t.Fatal("fields must survive an error")
	}
}

func TestFlowRecordComplete(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := NewFlowRecord("s1", "event", now)
	rec.Apply("submit", nil, StepInProgress, now)
	rec.Complete(now.Add(90 * time.Second))

	if !rec.IsCompleted() {
		t.Fatal("expected completed")
	}
	for _, e := range rec.StepHistory {
		if e.Status != StepCompleted {
			t.Fatalf("entry %s not completed: %s", e.Step, e.Status)
		}
	}
	if rec.Duration() != 90*time.Second {
		t.Fatalf("Duration() = %s, want 90s", rec.Duration())
	}
}

func TestFlowRecordCloneIsDeep(t *testing.T) {
	t.Parallel()

	rec := NewFlowRecord("s1", "event", time.Now())
	rec.Fields["name"] = "Launch"
	clone := rec.Clone()
	clone.Fields["name"] = "Changed"
	clone.StepHistory[0].Status = StepCancelled

	if rec.Fields["name"] != "Launch" {
		t.Fatal("clone shares fields map")
	}
	if rec.StepHistory[0].Status != StepInProgress {
		t.Fatal("clone shares history slice")
	}
}
