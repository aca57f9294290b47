package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	statex "github.com/tanpawarit/a2a-host-orchestrator/agent/state"
)

// stuckClient never looks at ctx. The first stuckAttempts calls per tool block
// until release is closed; later calls answer with Success("Sunny").
type stuckClient struct {
	mu            sync.Mutex
	calls         map[string]int
	stuckAttempts int
	release       chan struct{}
}

func newStuckClient(t *testing.T, stuckAttempts int) *stuckClient {
	t.Helper()
	c := &stuckClient{calls: make(map[string]int), stuckAttempts: stuckAttempts, release: make(chan struct{})}
	t.Cleanup(func() { close(c.release) })
	return c
}

func (c *stuckClient) Invoke(_ context.Context, ep contractx.AgentEndpoint, args map[string]any, _ time.Duration) contractx.ToolCallResult {
	c.mu.Lock()
	c.calls[ep.Name]++
	attempt := c.calls[ep.Name]
	c.mu.Unlock()

	if attempt <= c.stuckAttempts {
		<-c.release
		return contractx.ToolCallResult{Name: ep.Name, Arguments: args, Outcome: contractx.Success("late")}
	}
	return contractx.ToolCallResult{Name: ep.Name, Arguments: args, Outcome: contractx.Success("Sunny")}
}

func (c *stuckClient) callCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func TestHandleMessagePlannerIgnoringContextDegrades(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := plannerFunc(func(context.Context, contractx.PlannerRequest) (contractx.Plan, error) {
		<-release
		return contractx.Plan{Calls: []contractx.ToolCall{weatherCall("Tokyo")}}, nil
	})

	cfg := testConfig()
	cfg.PlanningTimeout = 50 * time.Millisecond
	client := newFakeClient(alwaysSucceed("x"))
	store := statex.NewMemoryStore()
	orch, err := New(store, stuck, travelRegistry(t), client, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	resp, err := orch.HandleMessage(context.Background(), contractx.ChatRequest{Message: "weather in Tokyo", SessionID: "s"})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("elapsed = %s, planning timeout not enforced", elapsed)
	}
	if resp.Phase != contractx.PhaseCompleted || len(resp.ToolCalls) != 0 || client.totalCalls() != 0 {
		t.Fatalf("resp = %+v, want completed tool-free reply", resp)
	}
	if resp.Response == "" {
		t.Fatal("Response is empty")
	}
	if got := store.History(store.GetOrCreate(context.Background(), "", "s")); len(got) != 2 {
		t.Fatalf("history len = %d, want 2", len(got))
	}
}

func TestHandleMessageClientIgnoringContextTimesOut(t *testing.T) {
	t.Parallel()

	client := newStuckClient(t, 2)
	cfg := testConfig()
	cfg.CallTimeout = 100 * time.Millisecond
	orch, err := New(statex.NewMemoryStore(), staticPlan(weatherCall("Tokyo")), travelRegistry(t), client, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	resp, err := orch.HandleMessage(context.Background(), contractx.ChatRequest{Message: "weather in Tokyo"})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("elapsed = %s, call timeout not enforced", elapsed)
	}
	if got := client.callCount("get_weather"); got != 2 {
		t.Fatalf("get_weather calls = %d, want 2", got)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("Results = %#v", resp.Results)
	}
	res := resp.Results[0]
	if res.Outcome.Kind != contractx.OutcomeTimeout || res.Attempts != 2 {
		t.Fatalf("result = %#v, want timeout after 2 attempts", res)
	}
}

func TestHandleMessageRetryAfterIgnoredDeadlineSucceeds(t *testing.T) {
	t.Parallel()

	client := newStuckClient(t, 1)
	cfg := testConfig()
	cfg.CallTimeout = 100 * time.Millisecond
	orch, err := New(statex.NewMemoryStore(), staticPlan(weatherCall("Tokyo")), travelRegistry(t), client, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := orch.HandleMessage(context.Background(), contractx.ChatRequest{Message: "weather in Tokyo"})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	res := resp.Results[0]
	if !res.Outcome.OK() || res.Outcome.Payload != "Sunny" || res.Attempts != 2 {
		t.Fatalf("result = %#v, want second attempt success", res)
	}
}
