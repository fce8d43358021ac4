package toolflow

import (
	"context"
	"fmt"
	"time"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	"github.com/tanpawarit/chative-toolflow/agent/dateparse"
	"github.com/tanpawarit/chative-toolflow/agent/state"
)

// ContactTool is the tool name recorded on contact flows.
const ContactTool = "contact"

// ContactFields is what a caller may send with a contact step. Only the
// field owned by the step (and those of earlier steps) is looked at.
type ContactFields struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Birthday string `json:"birthday,omitempty"`
}

func (f ContactFields) values() map[string]any {
	m := make(map[string]any, 3)
	put(m, KeyName, f.Name)
	put(m, KeyEmail, f.Email)
	put(m, KeyBirthday, f.Birthday)
	return m
}

// ContactExecutor runs start → collect-name → collect-email →
// collect-birthday → confirm → submit.
type ContactExecutor struct {
	eng *engine
}

func NewContactExecutor(store state.Store, identity contract.IdentityProvider, contacts contract.ContactCreator, cfg Config, opts ...Option) *ContactExecutor {
	cfg = cfg.withDefaults()
	birthdays := dateparse.NewBirthdayResolver(cfg.BirthdayMinYear)

	def := definition{
		tool:   ContactTool,
		entity: "contact",
		fields: []field{
			nameField("What is the contact's name?"),
			emailField("What is the contact's email address?"),
			dateField(KeyBirthday, StepCollectBirthday, "birthday", "When is the contact's birthday? For example 12/10/1990.", birthdays),
		},
		dateStep: StepCollectBirthday,
		summary: func(typed map[string]any) string {
			return fmt.Sprintf("Name: %s\nEmail: %s\nBirthday: %s",
				typed[KeyName], typed[KeyEmail], dateparse.Display(typed[KeyBirthday].(time.Time)))
		},
		create: func(ctx context.Context, who contract.Identity, typed map[string]any, dedupKey string) (string, error) {
			return contacts.CreateContact(ctx, who, contract.NewContact{
				Name:     typed[KeyName].(string),
				Email:    typed[KeyEmail].(string),
				Birthday: typed[KeyBirthday].(time.Time),
				DedupKey: dedupKey,
			})
		},
		success: func(id string, typed map[string]any, res *Result) {
			d := &ContactDetails{
				ID:       id,
				Name:     typed[KeyName].(string),
				Email:    typed[KeyEmail].(string),
				Birthday: typed[KeyBirthday].(time.Time),
			}
			d.BirthdayDisplay = dateparse.Display(d.Birthday)
			res.Contact = d
			res.Message = fmt.Sprintf("Saved %s (%s) with birthday %s.", d.Name, d.Email, d.BirthdayDisplay)
		},
	}
	return &ContactExecutor{eng: newEngine(def, store, identity, cfg, opts...)}
}

func (e *ContactExecutor) Execute(ctx context.Context, step Step, fields ContactFields, sessionID string) Result {
	return e.eng.execute(ctx, step, fields.values(), sessionID)
}
