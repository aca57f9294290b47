package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	statex "github.com/tanpawarit/a2a-host-orchestrator/agent/state"
)

// CommitSession appends the exchange and remembers the arguments of every
// successful call for context carry-over.
func CommitSession(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: session is not loaded", contractx.ErrValidation)
	}

	toolArgs := make(map[string]map[string]any, len(in.Results))
	for _, res := range in.Results {
		if res.Outcome.OK() {
			toolArgs[res.Name] = res.Arguments
		}
	}

	if err := store.AppendExchange(ctx, in.Session, statex.Exchange{
		UserText:      in.Message,
		AssistantText: in.Reply,
		ToolArgs:      toolArgs,
	}); err != nil {
		return nil, err
	}
	return in, nil
}
