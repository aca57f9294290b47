package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

func FinalizeResponse(in *GraphState) (contractx.ChatResponse, error) {
	if in == nil {
		return contractx.ChatResponse{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	responses := make([]contractx.ToolResponse, 0, len(in.Results))
	for _, res := range in.Results {
		responses = append(responses, res.ToolResponse())
	}

	in.setPhase(contractx.PhaseCompleted)
	return contractx.ChatResponse{
		Response:      in.Reply,
		SessionID:     in.Key.SessionID,
		UserID:        in.Key.UserID,
		ToolCalls:     in.Plan.Calls,
		ToolResponses: responses,
		RequestID:     in.RequestID,
		Phase:         in.Phase,
		Results:       in.Results,
	}, nil
}
