package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	specialistx "github.com/tanpawarit/a2a-host-orchestrator/agent/agents/specialist"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	statex "github.com/tanpawarit/a2a-host-orchestrator/agent/state"
)

type fakePlanner struct {
	mu   sync.Mutex
	plan func(req contractx.PlannerRequest) (contractx.Plan, error)
	reqs []contractx.PlannerRequest
}

func (f *fakePlanner) Plan(ctx context.Context, req contractx.PlannerRequest) (contractx.Plan, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.plan(req)
}

func (f *fakePlanner) requests() []contractx.PlannerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]contractx.PlannerRequest, len(f.reqs))
	copy(out, f.reqs)
	return out
}

func staticPlan(calls ...contractx.ToolCall) *fakePlanner {
	return &fakePlanner{plan: func(contractx.PlannerRequest) (contractx.Plan, error) {
		out := make([]contractx.ToolCall, len(calls))
		copy(out, calls)
		return contractx.Plan{Calls: out}, nil
	}}
}

// fakeClient answers from script, keyed by tool name and 1-based attempt.
type fakeClient struct {
	mu     sync.Mutex
	calls  map[string]int
	delay  map[string]time.Duration
	script func(name string, attempt int) contractx.Outcome
}

func newFakeClient(script func(name string, attempt int) contractx.Outcome) *fakeClient {
	return &fakeClient{
		calls:  make(map[string]int),
		delay:  make(map[string]time.Duration),
		script: script,
	}
}

func (f *fakeClient) Invoke(ctx context.Context, ep contractx.AgentEndpoint, args map[string]any, timeout time.Duration) contractx.ToolCallResult {
	f.mu.Lock()
	f.calls[ep.Name]++
	attempt := f.calls[ep.Name]
	delay := f.delay[ep.Name]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return contractx.ToolCallResult{Name: ep.Name, Arguments: args, Outcome: contractx.Failure(contractx.OutcomeTimeout, "deadline exceeded"), Attempts: 1}
		}
	}
	return contractx.ToolCallResult{Name: ep.Name, Arguments: args, Outcome: f.script(ep.Name, attempt), Attempts: 1}
}

func (f *fakeClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeClient) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func testConfig() Config {
	return Config{
		PlanningTimeout: time.Second,
		CallTimeout:     300 * time.Millisecond,
		RetryBackoff:    5 * time.Millisecond,
		MaxConcurrency:  4,
		ChunkSize:       16,
	}
}

func travelRegistry(t *testing.T) *specialistx.Registry {
	t.Helper()
	reg, err := specialistx.NewRegistry(
		contractx.AgentEndpoint{Name: "get_weather", Address: "http://weather.local/invoke"},
		contractx.AgentEndpoint{Name: "search_accommodation", Address: "http://stays.local/invoke"},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

type harness struct {
	orch     *Orchestrator
	store    *statex.MemoryStore
	planner  *fakePlanner
	client   *fakeClient
	registry *specialistx.Registry
}

func newHarness(t *testing.T, planner *fakePlanner, client *fakeClient) *harness {
	t.Helper()
	store := statex.NewMemoryStore()
	reg := travelRegistry(t)
	orch, err := New(store, planner, reg, client, testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &harness{orch: orch, store: store, planner: planner, client: client, registry: reg}
}

func alwaysSucceed(payload any) func(string, int) contractx.Outcome {
	return func(string, int) contractx.Outcome {
		return contractx.Success(payload)
	}
}
