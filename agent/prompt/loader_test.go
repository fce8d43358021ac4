package prompt

import (
	"strings"
	"testing"
)

func TestLoadPromptSet(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	if set.Assistant == "" {
		t.Fatal("assistant prompt is empty")
	}
	for _, want := range []string{"{today}", "contact_flow", "event_flow", "next_step"} {
		if !strings.Contains(set.Assistant, want) {
			t.Fatalf("assistant prompt is missing %q", want)
		}
	}
	if strings.Count(set.Assistant, "{") != 1 || strings.Count(set.Assistant, "}") != 1 {
		t.Fatal("assistant prompt must contain only the {today} placeholder")
	}
}
