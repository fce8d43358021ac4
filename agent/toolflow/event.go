package toolflow

import (
	"context"
	"fmt"
	"time"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	"github.com/tanpawarit/chative-toolflow/agent/dateparse"
	"github.com/tanpawarit/chative-toolflow/agent/state"
)

// EventTool is the tool name recorded on event flows.
const EventTool = "event"

type EventFields struct {
	Name        string `json:"name,omitempty"`
	Date        string `json:"date,omitempty"`
	IsRecurring *bool  `json:"is_recurring,omitempty"`
}

func (f EventFields) values() map[string]any {
	m := make(map[string]any, 3)
	put(m, KeyName, f.Name)
	put(m, KeyDate, f.Date)
	if f.IsRecurring != nil {
		m[KeyIsRecurring] = *f.IsRecurring
	}
	return m
}

// EventExecutor runs start → collect-name → collect-date →
// collect-recurring → confirm → submit.
type EventExecutor struct {
	eng *engine
}

func NewEventExecutor(store state.Store, identity contract.IdentityProvider, events contract.EventCreator, cfg Config, opts ...Option) *EventExecutor {
	cfg = cfg.withDefaults()
	dates := dateparse.NewEventResolver(cfg.EventMaxYearsAhead)

	def := definition{
		tool:   EventTool,
		entity: "event",
		fields: []field{
			nameField("What should the event be called?"),
			dateField(KeyDate, StepCollectDate, "date", "When is it? You can say 06/25/2027, next Friday or in 2 weeks.", dates),
			boolField(KeyIsRecurring, StepCollectRecurring, "recurrence", "Does it repeat every year? Answer yes or no."),
		},
		dateStep: StepCollectDate,
		summary: func(typed map[string]any) string {
			return fmt.Sprintf("Name: %s\nDate: %s\nRepeats yearly: %s",
				typed[KeyName], dateparse.Display(typed[KeyDate].(time.Time)), yesNo(typed[KeyIsRecurring].(bool)))
		},
		create: func(ctx context.Context, who contract.Identity, typed map[string]any, dedupKey string) (string, error) {
			return events.CreateEvent(ctx, who, contract.NewEvent{
				Name:        typed[KeyName].(string),
				Date:        typed[KeyDate].(time.Time),
				IsRecurring: typed[KeyIsRecurring].(bool),
				DedupKey:    dedupKey,
			})
		},
		success: func(id string, typed map[string]any, res *Result) {
			d := &EventDetails{
				ID:          id,
				Name:        typed[KeyName].(string),
				Date:        typed[KeyDate].(time.Time),
				IsRecurring: typed[KeyIsRecurring].(bool),
			}
			d.DateDisplay = dateparse.Display(d.Date)
			res.Event = d
			suffix := ""
			if d.IsRecurring {
				suffix = ", repeating every year"
			}
			res.Message = fmt.Sprintf("Saved %s on %s%s.", d.Name, d.DateDisplay, suffix)
		},
	}
	return &EventExecutor{eng: newEngine(def, store, identity, cfg, opts...)}
}

func (e *EventExecutor) Execute(ctx context.Context, step Step, fields EventFields, sessionID string) Result {
	return e.eng.execute(ctx, step, fields.values(), sessionID)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
