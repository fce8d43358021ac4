package tool

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	"github.com/tanpawarit/chative-toolflow/agent/toolflow"
)

type recordingContacts struct {
	step      toolflow.Step
	fields    toolflow.ContactFields
	sessionID string
}

func (r *recordingContacts) Execute(_ context.Context, step toolflow.Step, fields toolflow.ContactFields, sessionID string) toolflow.Result {
	r.step, r.fields, r.sessionID = step, fields, sessionID
	return toolflow.Result{Status: toolflow.StatusInProgress, SessionID: sessionID, NextStep: toolflow.StepCollectEmail}
}

type recordingEvents struct {
	fields toolflow.EventFields
}

func (r *recordingEvents) Execute(_ context.Context, _ toolflow.Step, fields toolflow.EventFields, sessionID string) toolflow.Result {
	r.fields = fields
	return toolflow.Result{Status: toolflow.StatusInProgress, SessionID: sessionID}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	infos, executor := Build(&recordingContacts{}, &recordingEvents{})
	if len(infos) != 2 {
		t.Fatalf("expected 2 tool infos, got %d", len(infos))
	}
	if infos[0].Name != ToolContactFlow {
		t.Fatalf("unexpected first tool: %s", infos[0].Name)
	}
	if infos[1].Name != ToolEventFlow {
		t.Fatalf("unexpected second tool: %s", infos[1].Name)
	}
	if executor == nil {
		t.Fatal("executor must not be nil")
	}
}

func TestDefaultExecutorUnknownTool(t *testing.T) {
	t.Parallel()

	out, err := DefaultExecutor()(context.Background(), "math.evaluate", map[string]any{"expression": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Tool != "math.evaluate" {
		t.Fatalf("unexpected tool: %s", out.Tool)
	}
	if out.Error == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestExecutorContactFlow(t *testing.T) {
	t.Parallel()

	contacts := &recordingContacts{}
	executor := NewExecutor(contacts, &recordingEvents{})
	out, err := executor(context.Background(), ToolContactFlow, map[string]any{
		"session_id": "s-1",
		"step":       "collect-name",
		"name":       "Ada",
		"unexpected": 42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("unexpected tool error: %s", out.Error)
	}
	res, ok := out.Result.(toolflow.Result)
	if !ok {
		t.Fatalf("unexpected result type: %T", out.Result)
	}
	if res.NextStep != toolflow.StepCollectEmail {
		t.Fatalf("unexpected next step: %s", res.NextStep)
	}
	if contacts.step != toolflow.StepCollectName || contacts.fields.Name != "Ada" || contacts.sessionID != "s-1" {
		t.Fatalf("executor received %+v", contacts)
	}
}

func TestExecutorEventFlowRecurringSpellings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  any
		want *bool
	}{
		{name: "bool", raw: true, want: ptr(true)},
		{name: "yes", raw: "yes", want: ptr(true)},
		{name: "no", raw: "No", want: ptr(false)},
		{name: "gibberish", raw: "perhaps", want: nil},
		{name: "absent", raw: nil, want: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			events := &recordingEvents{}
			args := map[string]any{"session_id": "s-2", "step": "collect-recurring"}
			if tt.raw != nil {
				args["is_recurring"] = tt.raw
			}
			out, err := NewExecutor(&recordingContacts{}, events)(context.Background(), ToolEventFlow, args)
			if err != nil || out.Error != "" {
				t.Fatalf("unexpected failure: err=%v tool error=%s", err, out.Error)
			}
			got := events.fields.IsRecurring
			switch {
			case tt.want == nil && got != nil:
				t.Fatalf("IsRecurring = %v, want nil", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Fatalf("IsRecurring = %v, want %v", got, *tt.want)
			}
		})
	}
}

func TestExecutorRejectsMalformedArgs(t *testing.T) {
	t.Parallel()

	out, err := NewExecutor(&recordingContacts{}, &recordingEvents{})(context.Background(), ToolContactFlow, map[string]any{
		"step": 7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Error == "" {
		t.Fatal("expected schema violation")
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	var in ContactArgs
	if err := DecodeJSON(`{"step":"collect-email","email":"ada@example.com"}`, &in); err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if in.Step != "collect-email" || in.Email != "ada@example.com" {
		t.Fatalf("unexpected args: %+v", in)
	}

	if err := DecodeJSON(`[1,2]`, &in); !errors.Is(err, contract.ErrSchemaViolation) {
		t.Fatalf("DecodeJSON() error = %v, want ErrSchemaViolation", err)
	}
	if err := DecodeJSON("", &in); err != nil {
		t.Fatalf("DecodeJSON(empty) error = %v", err)
	}
}

func TestJSONSchema(t *testing.T) {
	t.Parallel()

	raw, err := JSONSchema(ToolEventFlow)
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}

	var doc struct {
		Type       string `json:"type"`
		Required   []string
		Properties map[string]struct {
			Type string   `json:"type"`
			Enum []string `json:"enum"`
		} `json:"properties"`
		AdditionalProperties *bool `json:"additionalProperties"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if doc.Type != "object" {
		t.Fatalf("type = %q, want object", doc.Type)
	}
	if !slices.Equal(doc.Required, []string{"step"}) {
		t.Fatalf("required = %v, want [step]", doc.Required)
	}
	if !slices.Equal(doc.Properties["step"].Enum, eventSteps) {
		t.Fatalf("step enum = %v, want %v", doc.Properties["step"].Enum, eventSteps)
	}
	if got := doc.Properties["is_recurring"].Type; got != "boolean" {
		t.Fatalf("is_recurring type = %q, want boolean", got)
	}
	if doc.AdditionalProperties == nil || *doc.AdditionalProperties {
		t.Fatal("expected additionalProperties=false")
	}

	if _, err := JSONSchema("math.evaluate"); !errors.Is(err, contract.ErrUnknownTool) {
		t.Fatalf("JSONSchema(unknown) error = %v, want ErrUnknownTool", err)
	}
}

func TestJSONSchemaMatchesCatalogEnum(t *testing.T) {
	t.Parallel()

	raw, err := JSONSchema(ToolContactFlow)
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	var doc struct {
		Properties map[string]struct {
			Enum []string `json:"enum"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if !slices.Equal(doc.Properties["step"].Enum, contactSteps) {
		t.Fatalf("step enum = %v, want %v", doc.Properties["step"].Enum, contactSteps)
	}
}

func ptr(b bool) *bool { return &b }
