package contract

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type PlannerRequest struct {
	Message  string                    `json:"message"`
	History  []Turn                    `json:"history,omitempty"`
	LastArgs map[string]map[string]any `json:"last_args,omitempty"`
}

type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Plan is the ordered list of tool calls decided for one message. An empty plan
// means the message is answered without delegation.
type Plan struct {
	Calls []ToolCall `json:"calls"`
	// Reply is the planner's own answer when it chose not to call any tool.
	Reply string `json:"reply,omitempty"`
	// Degraded is set when planning failed and the engine fell back to a
	// tool-free answer.
	Degraded bool `json:"degraded,omitempty"`
}

type HealthStatus string

const (
	HealthUnknown     HealthStatus = "unknown"
	HealthHealthy     HealthStatus = "healthy"
	HealthUnreachable HealthStatus = "unreachable"
)

type ParamSpec struct {
	Type     string `json:"type" mapstructure:"type" validate:"omitempty,oneof=string integer number boolean object array"`
	Desc     string `json:"desc,omitempty" mapstructure:"desc"`
	Required bool   `json:"required,omitempty" mapstructure:"required"`
}

// AgentEndpoint describes one specialist agent reachable as a named tool.
type AgentEndpoint struct {
	Name        string               `json:"name" mapstructure:"name" validate:"required"`
	Address     string               `json:"address" mapstructure:"address" validate:"required,url"`
	HealthURL   string               `json:"health_url,omitempty" mapstructure:"health_url" validate:"omitempty,url"`
	Description string               `json:"description,omitempty" mapstructure:"description"`
	Params      map[string]ParamSpec `json:"params,omitempty" mapstructure:"params" validate:"dive"`
	Health      HealthStatus         `json:"health" mapstructure:"-"`
}

type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeTimeout         OutcomeKind = "timeout"
	OutcomeUnreachable     OutcomeKind = "unreachable"
	OutcomeInvalidResponse OutcomeKind = "invalid_response"
	OutcomeRemoteError     OutcomeKind = "remote_error"
	OutcomeToolNotFound    OutcomeKind = "tool_not_found"
)

type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Payload any         `json:"payload,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

func Success(payload any) Outcome {
	return Outcome{Kind: OutcomeSuccess, Payload: payload}
}

func Failure(kind OutcomeKind, detail string) Outcome {
	return Outcome{Kind: kind, Detail: detail}
}

func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Retryable reports whether the failure is transient. Only timeouts and
// unreachable agents qualify.
func (o Outcome) Retryable() bool {
	return o.Kind == OutcomeTimeout || o.Kind == OutcomeUnreachable
}

// Err maps a failed outcome onto its sentinel error. It returns nil on success.
func (o Outcome) Err() error {
	var base error
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeTimeout:
		base = ErrTimeout
	case OutcomeUnreachable:
		base = ErrUnreachable
	case OutcomeInvalidResponse:
		base = ErrInvalidResponse
	case OutcomeRemoteError:
		base = ErrRemoteError
	case OutcomeToolNotFound:
		base = ErrToolNotFound
	default:
		return fmt.Errorf("unknown outcome kind=%q", o.Kind)
	}
	if o.Detail == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, o.Detail)
}

type ToolCallResult struct {
	Index     int            `json:"index"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Outcome   Outcome        `json:"outcome"`
	Latency   time.Duration  `json:"latency"`
	Attempts  int            `json:"attempts"`
}

type ChatRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
	UserID    string `json:"user_id,omitempty" validate:"omitempty,max=128"`
}

type ToolResponse struct {
	Name     string `json:"name"`
	Response any    `json:"response"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type Phase string

const (
	PhaseReceived    Phase = "RECEIVED"
	PhasePlanned     Phase = "PLANNED"
	PhaseDispatching Phase = "DISPATCHING"
	PhaseAggregating Phase = "AGGREGATING"
	PhaseCompleted   Phase = "COMPLETED"
	PhaseFailed      Phase = "FAILED"
)

type ChatResponse struct {
	Response      string         `json:"response"`
	SessionID     string         `json:"session_id"`
	UserID        string         `json:"user_id"`
	ToolCalls     []ToolCall     `json:"tool_calls"`
	ToolResponses []ToolResponse `json:"tool_responses"`

	RequestID string           `json:"-"`
	Phase     Phase            `json:"-"`
	Results   []ToolCallResult `json:"-"`
}

type EventType string

const (
	EventPlanEmitted EventType = "plan_emitted"
	EventToolResult  EventType = "tool_result"
	EventAnswerChunk EventType = "answer_chunk"
	EventError       EventType = "error"
	EventDone        EventType = "done"
)

type StreamEvent struct {
	Type      EventType     `json:"type"`
	Seq       int           `json:"seq"`
	RequestID string        `json:"request_id"`
	Plan      []ToolCall    `json:"plan,omitempty"`
	Result    *ToolResponse `json:"result,omitempty"`
	Chunk     string        `json:"chunk,omitempty"`
	Error     string        `json:"error,omitempty"`
	Response  *ChatResponse `json:"response,omitempty"`
}

// ToolResponse renders the result in the wire shape. A map payload carrying a
// "response" key is replaced by that value; sibling keys are dropped.
func (r ToolCallResult) ToolResponse() ToolResponse {
	if !r.Outcome.OK() {
		return ToolResponse{
			Name:     r.Name,
			Response: map[string]any{"error": string(r.Outcome.Kind), "detail": r.Outcome.Detail},
			Status:   string(r.Outcome.Kind),
			Error:    r.Outcome.Err().Error(),
		}
	}

	payload := r.Outcome.Payload
	if m, ok := payload.(map[string]any); ok {
		if inner, ok := m["response"]; ok {
			payload = inner
		}
	}
	return ToolResponse{
		Name:     r.Name,
		Response: payload,
		Status:   string(OutcomeSuccess),
	}
}
