package llm

import (
	"errors"
	"testing"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	if err := (Config{Model: "m"}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Validate() without key error = %v, want ErrValidation", err)
	}
	if err := (Config{APIKey: "k"}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Validate() without model error = %v, want ErrValidation", err)
	}
	if err := (Config{APIKey: "k", Model: "m"}).Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestConfigPlannerOverrides(t *testing.T) {
	t.Parallel()

	base := Config{APIKey: " key ", Model: "openai/gpt-4o-mini", Temperature: 0.2, PlannerTemperature: -1, MaxCompletionToken: 500}
	got := base.Planner()
	if got.Model != "openai/gpt-4o-mini" || got.Temperature != 0.2 || got.APIKey != "key" {
		t.Fatalf("Planner() = %+v, want defaults", got)
	}
	if got.MaxCompletionToken == nil || *got.MaxCompletionToken != 500 {
		t.Fatalf("MaxCompletionToken = %v, want 500", got.MaxCompletionToken)
	}

	base.PlannerModel = "anthropic/claude-haiku"
	base.PlannerTemperature = 0
	got = base.Planner()
	if got.Model != "anthropic/claude-haiku" || got.Temperature != 0 {
		t.Fatalf("Planner() = %+v, want overrides", got)
	}
}
