package llm

import (
	"errors"
	"testing"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{APIKey: "k", Model: "m", Temperature: 0.2}},
		{name: "no key", cfg: Config{Model: "m"}, wantErr: true},
		{name: "no model", cfg: Config{APIKey: "k"}, wantErr: true},
		{name: "hot", cfg: Config{APIKey: "k", Model: "m", Temperature: 3}, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.cfg.Validate()
			if tc.wantErr && !errors.Is(err, contract.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigOpenRouter(t *testing.T) {
	t.Parallel()

	cfg := Config{APIKey: " k ", Model: " m ", MaxCompletionToken: 500, SiteName: "app"}
	out := cfg.OpenRouter()
	if out.APIKey != "k" || out.Model != "m" || out.SiteName != "app" {
		t.Fatalf("unexpected openrouter config: %#v", out)
	}
	if out.MaxCompletionToken == nil || *out.MaxCompletionToken != 500 {
		t.Fatalf("unexpected max tokens: %v", out.MaxCompletionToken)
	}
	if (Config{}).OpenRouter().MaxCompletionToken != nil {
		t.Fatalf("zero max tokens must stay unset")
	}
}
