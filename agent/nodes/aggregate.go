package orchestratornode

import (
	"fmt"
	"strings"

	aggregatex "github.com/tanpawarit/a2a-host-orchestrator/agent/aggregate"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

// Composer builds the reply text from a plan and its settled results.
type Composer func(history []contractx.Turn, plan contractx.Plan, results []contractx.ToolCallResult) (string, error)

// Aggregate runs before the session commit, so every way of failing here
// leaves the session untouched.
func Aggregate(in *GraphState, compose Composer) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if compose == nil {
		compose = aggregatex.Aggregate
	}

	in.setPhase(contractx.PhaseAggregating)
	reply, err := compose(in.History, in.Plan, in.Results)
	if err != nil {
		in.setPhase(contractx.PhaseFailed)
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		in.setPhase(contractx.PhaseFailed)
		return nil, fmt.Errorf("%w: reply is empty", contractx.ErrAggregationFailure)
	}
	in.Reply = reply
	return in, nil
}
