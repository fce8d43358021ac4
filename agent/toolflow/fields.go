package toolflow

import (
	"time"

	"github.com/tanpawarit/chative-toolflow/agent/dateparse"
	"github.com/tanpawarit/chative-toolflow/agent/sanitize"
)

// Record keys of the collected fields.
const (
	KeyName        = "name"
	KeyEmail       = "email"
	KeyBirthday    = "birthday"
	KeyDate        = "date"
	KeyIsRecurring = "is_recurring"
)

func nameField(prompt string) field {
	return field{
		key:    KeyName,
		step:   StepCollectName,
		label:  "name",
		prompt: prompt,
		check: func(raw any, _ time.Time) (any, any, error) {
			name, err := sanitize.Name(asText(raw))
			if err != nil {
				return nil, nil, err
			}
			return name, name, nil
		},
	}
}

func emailField(prompt string) field {
	return field{
		key:    KeyEmail,
		step:   StepCollectEmail,
		label:  "email address",
		prompt: prompt,
		check: func(raw any, _ time.Time) (any, any, error) {
			email, err := sanitize.Email(asText(raw))
			if err != nil {
				return nil, nil, err
			}
			return email, email, nil
		},
	}
}

// dateField keeps the text the user typed and resolves it on every check,
// so relative dates are always measured from the current time.
func dateField(key string, step Step, label, prompt string, resolver *dateparse.Resolver) field {
	return field{
		key:    key,
		step:   step,
		label:  label,
		prompt: prompt,
		check: func(raw any, now time.Time) (any, any, error) {
			text, err := sanitize.DateText(key, asText(raw))
			if err != nil {
				return nil, nil, err
			}
			res, err := resolver.Resolve(text, now)
			if err != nil {
				return nil, nil, err
			}
			return text, res.Time, nil
		},
	}
}

func boolField(key string, step Step, label, prompt string) field {
	return field{
		key:    key,
		step:   step,
		label:  label,
		prompt: prompt,
		check: func(raw any, _ time.Time) (any, any, error) {
			b, err := sanitize.Bool(key, raw)
			if err != nil {
				return nil, nil, err
			}
			return b, b, nil
		},
	}
}

func put(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
