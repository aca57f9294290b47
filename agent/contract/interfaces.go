package contract

import (
	"context"
	"time"
)

type Planner interface {
	Plan(ctx context.Context, req PlannerRequest) (Plan, error)
}

// AgentClient performs exactly one call to a specialist agent. It never retries
// and always returns a classified result.
type AgentClient interface {
	Invoke(ctx context.Context, endpoint AgentEndpoint, args map[string]any, timeout time.Duration) ToolCallResult
}

type Registry interface {
	Resolve(name string) (AgentEndpoint, error)
	SetHealth(name string, health HealthStatus)
	IsReady() bool
}
