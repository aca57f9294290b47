package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	statex "github.com/tanpawarit/a2a-host-orchestrator/agent/state"
)

func LoadSession(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Session = store.GetOrCreate(ctx, in.Key.UserID, in.Key.SessionID)
	in.Lease.hold(in.Session)
	in.History = store.History(in.Session)
	return in, nil
}
