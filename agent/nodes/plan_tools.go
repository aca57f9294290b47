package orchestratornode

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

// PlanTools asks the planner for a plan within timeout. A planner error never
// fails the request; it yields an empty degraded plan instead.
func PlanTools(ctx context.Context, in *GraphState, planner contractx.Planner, timeout time.Duration) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: session is not loaded", contractx.ErrValidation)
	}

	planCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		planCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	plan, err := planWithin(planCtx, planner, contractx.PlannerRequest{
		Message:  in.Message,
		History:  in.History,
		LastArgs: in.Session.LastArguments(),
	})
	if err != nil {
		log.Warn().
			Err(fmt.Errorf("%w: %v", contractx.ErrPlanningFailed, err)).
			Str("request_id", in.RequestID).
			Str("session", in.Key.String()).
			Msg("planner failed, answering without tools")
		plan = contractx.Plan{Degraded: true}
	}
	if plan.Calls == nil {
		plan.Calls = []contractx.ToolCall{}
	}

	in.Plan = plan
	in.setPhase(contractx.PhasePlanned)
	if in.Hooks.OnPlan != nil {
		in.Hooks.OnPlan(plan)
	}

	log.Debug().
		Str("request_id", in.RequestID).
		Int("calls", len(plan.Calls)).
		Bool("degraded", plan.Degraded).
		Msg("plan ready")
	return in, nil
}

type planOutcome struct {
	plan contractx.Plan
	err  error
}

// planWithin returns when the planner does or when ctx is done, whichever is
// first. A planner that outlives ctx is abandoned; its result is dropped.
func planWithin(ctx context.Context, planner contractx.Planner, req contractx.PlannerRequest) (contractx.Plan, error) {
	done := make(chan planOutcome, 1)
	go func() {
		plan, err := planner.Plan(ctx, req)
		done <- planOutcome{plan: plan, err: err}
	}()

	select {
	case out := <-done:
		return out.plan, out.err
	case <-ctx.Done():
		return contractx.Plan{}, fmt.Errorf("planner did not answer in time: %w", ctx.Err())
	}
}

// HasCalls selects the graph branch after planning.
func HasCalls(in *GraphState) bool {
	return in != nil && len(in.Plan.Calls) > 0
}
