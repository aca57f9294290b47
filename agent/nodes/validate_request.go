package orchestratornode

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	statex "github.com/tanpawarit/a2a-host-orchestrator/agent/state"
)

var requestValidator = validator.New()

// NormalizeRequest trims the request and checks it against the ChatRequest
// validation tags. A blank message is an invalid request.
func NormalizeRequest(req contractx.ChatRequest) (contractx.ChatRequest, error) {
	req.Message = strings.TrimSpace(req.Message)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.UserID = strings.TrimSpace(req.UserID)

	if err := requestValidator.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", contractx.ErrInvalidRequest, err)
	}
	return req, nil
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	req, err := NormalizeRequest(in.Request)
	if err != nil {
		return nil, err
	}

	return &GraphState{
		RequestID: in.RequestID,
		Key:       statex.NewKey(req.UserID, req.SessionID),
		Message:   req.Message,
		Now:       nowFn().UTC(),
		Phase:     contractx.PhaseReceived,
		Hooks:     in.Hooks,
		Lease:     in.Lease,
	}, nil
}
