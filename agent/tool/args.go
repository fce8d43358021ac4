package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	"github.com/tanpawarit/chative-toolflow/agent/sanitize"
	"github.com/tanpawarit/chative-toolflow/agent/toolflow"
)

type ContactArgs struct {
	SessionID string `json:"session_id,omitempty" jsonschema_description:"Session id returned by the start step"`
	Step      string `json:"step" jsonschema:"enum=start,enum=collect-name,enum=collect-email,enum=collect-birthday,enum=confirm,enum=submit"`
	Name      string `json:"name,omitempty" jsonschema_description:"Contact name"`
	Email     string `json:"email,omitempty" jsonschema_description:"Contact email address"`
	Birthday  string `json:"birthday,omitempty" jsonschema_description:"Birthday as the user wrote it"`
}

func (a ContactArgs) Fields() toolflow.ContactFields {
	return toolflow.ContactFields{Name: a.Name, Email: a.Email, Birthday: a.Birthday}
}

type EventArgs struct {
	SessionID   string  `json:"session_id,omitempty" jsonschema_description:"Session id returned by the start step"`
	Step        string  `json:"step" jsonschema:"enum=start,enum=collect-name,enum=collect-date,enum=collect-recurring,enum=confirm,enum=submit"`
	Name        string  `json:"name,omitempty" jsonschema_description:"Event name"`
	Date        string  `json:"date,omitempty" jsonschema_description:"Date as the user wrote it"`
	IsRecurring *Answer `json:"is_recurring,omitempty"`
}

func (a EventArgs) Fields() toolflow.EventFields {
	return toolflow.EventFields{Name: a.Name, Date: a.Date, IsRecurring: a.IsRecurring.Ptr()}
}

// Answer is a yes/no the model may send as a JSON boolean or as text such as
// "yes". Text that is neither stays unset so the flow asks again.
type Answer struct {
	Value bool
	Set   bool
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if ok, err := sanitize.Bool(toolflow.KeyIsRecurring, v); err == nil {
		a.Value, a.Set = ok, true
	}
	return nil
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if !a.Set {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

func (Answer) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "boolean",
		Description: "Whether the event repeats every year",
	}
}

func (a *Answer) Ptr() *bool {
	if a == nil || !a.Set {
		return nil
	}
	v := a.Value
	return &v
}

// Decode maps raw tool-call arguments onto one of the args structs.
func Decode(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", contract.ErrSchemaViolation, err)
	}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", contract.ErrSchemaViolation, err)
	}
	return nil
}

// DecodeJSON is Decode for arguments still encoded as a JSON object, the way
// chat models return them.
func DecodeJSON(raw string, out any) error {
	if len(bytes.TrimSpace([]byte(raw))) == 0 {
		raw = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return fmt.Errorf("%w: arguments are not a json object", contract.ErrSchemaViolation)
	}
	return Decode(args, out)
}
