package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	"github.com/tanpawarit/chative-toolflow/agent/toolflow"
)

const (
	ToolContactFlow = "contact_flow"
	ToolEventFlow   = "event_flow"
)

var (
	contactSteps = []string{
		string(toolflow.StepStart),
		string(toolflow.StepCollectName),
		string(toolflow.StepCollectEmail),
		string(toolflow.StepCollectBirthday),
		string(toolflow.StepConfirm),
		string(toolflow.StepSubmit),
	}
	eventSteps = []string{
		string(toolflow.StepStart),
		string(toolflow.StepCollectName),
		string(toolflow.StepCollectDate),
		string(toolflow.StepCollectRecurring),
		string(toolflow.StepConfirm),
		string(toolflow.StepSubmit),
	}
)

// ContactFlow and EventFlow are the step executors the catalog dispatches to.
type ContactFlow interface {
	Execute(ctx context.Context, step toolflow.Step, fields toolflow.ContactFields, sessionID string) toolflow.Result
}

type EventFlow interface {
	Execute(ctx context.Context, step toolflow.Step, fields toolflow.EventFields, sessionID string) toolflow.Result
}

type Executor func(ctx context.Context, tool string, args map[string]any) (contract.ToolResult, error)

// Build returns the tool infos to bind to a chat model together with the
// executor that runs them.
func Build(contacts ContactFlow, events EventFlow) ([]*schema.ToolInfo, Executor) {
	return Infos(), NewExecutor(contacts, events)
}

func NewExecutor(contacts ContactFlow, events EventFlow) Executor {
	fallback := DefaultExecutor()
	return func(ctx context.Context, tool string, args map[string]any) (contract.ToolResult, error) {
		switch tool {
		case ToolContactFlow:
			var in ContactArgs
			if err := Decode(args, &in); err != nil {
				return contract.ToolResult{Tool: tool, Error: err.Error()}, nil
			}
			res := contacts.Execute(ctx, toolflow.Step(in.Step), in.Fields(), in.SessionID)
			return contract.ToolResult{Tool: tool, Result: res}, nil
		case ToolEventFlow:
			var in EventArgs
			if err := Decode(args, &in); err != nil {
				return contract.ToolResult{Tool: tool, Error: err.Error()}, nil
			}
			res := events.Execute(ctx, toolflow.Step(in.Step), in.Fields(), in.SessionID)
			return contract.ToolResult{Tool: tool, Result: res}, nil
		default:
			return fallback(ctx, tool, args)
		}
	}
}

func DefaultExecutor() Executor {
	return func(_ context.Context, tool string, _ map[string]any) (contract.ToolResult, error) {
		return contract.ToolResult{
			Tool:  tool,
			Error: fmt.Sprintf("%s: %s", contract.ErrUnknownTool, tool),
		}, nil
	}
}

func Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: ToolContactFlow,
			Desc: "Create a contact one step at a time. Call step=start first, then send each collected field with its step, then confirm and submit. Always pass back the session_id you were given and follow next_step from the result.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"session_id": {Type: schema.String, Desc: "Session id returned by the start step. Omit it only on start."},
				"step":       {Type: schema.String, Desc: "Step to execute", Required: true, Enum: contactSteps},
				"name":       {Type: schema.String, Desc: "Contact name, sent with collect-name"},
				"email":      {Type: schema.String, Desc: "Contact email address, sent with collect-email"},
				"birthday":   {Type: schema.String, Desc: "Birthday exactly as the user wrote it, sent with collect-birthday"},
			}),
		},
		{
			Name: ToolEventFlow,
			Desc: "Create a calendar event one step at a time. Call step=start first, then send each collected field with its step, then confirm and submit. Always pass back the session_id you were given and follow next_step from the result.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"session_id":   {Type: schema.String, Desc: "Session id returned by the start step. Omit it only on start."},
				"step":         {Type: schema.String, Desc: "Step to execute", Required: true, Enum: eventSteps},
				"name":         {Type: schema.String, Desc: "Event name, sent with collect-name"},
				"date":         {Type: schema.String, Desc: "Date exactly as the user wrote it, e.g. next Friday, sent with collect-date"},
				"is_recurring": {Type: schema.Boolean, Desc: "Whether the event repeats every year, sent with collect-recurring"},
			}),
		},
	}
}
