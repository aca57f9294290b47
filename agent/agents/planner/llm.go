package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

const defaultHistoryLimit = 20

type LLMOption func(*LLMPlanner)

// WithHistoryLimit caps how many trailing turns are sent to the model.
func WithHistoryLimit(n int) LLMOption {
	return func(p *LLMPlanner) {
		if n >= 0 {
			p.historyLimit = n
		}
	}
}

// LLMPlanner asks a tool-calling chat model for the plan. Every tool call in
// the reply becomes one plan entry; plain content becomes Plan.Reply.
type LLMPlanner struct {
	runner       compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
}

var _ contractx.Planner = (*LLMPlanner)(nil)

func NewLLMPlanner(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	tools []*schema.ToolInfo,
	systemPrompt string,
	opts ...LLMOption,
) (*LLMPlanner, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: planner chat model is nil", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, contractx.ErrPromptMissing
	}

	bound := chatModel
	if len(tools) > 0 {
		var err error
		bound, err = chatModel.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("%w: bind planner tools: %v", contractx.ErrModelInvoke, err)
		}
	}

	runner, err := compilePlanningGraph(ctx, bound, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile planner graph: %v", contractx.ErrModelInvoke, err)
	}

	p := &LLMPlanner{runner: runner, historyLimit: defaultHistoryLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func compilePlanningGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{input}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add planner prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add planner model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add planner edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add planner edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add planner edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("planner.tool_planning_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile planner tool planning graph: %w", err)
	}
	return runner, nil
}

func (p *LLMPlanner) Plan(ctx context.Context, req contractx.PlannerRequest) (contractx.Plan, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return contractx.Plan{}, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}

	input, err := plannerInput(message, req.LastArgs)
	if err != nil {
		return contractx.Plan{}, err
	}

	msg, err := p.runner.Invoke(ctx, map[string]any{
		"history": p.historyMessages(req.History),
		"input":   input,
	})
	if err != nil {
		return contractx.Plan{}, fmt.Errorf("%w: planner invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.Plan{}, fmt.Errorf("%w: empty planner response", contractx.ErrSchemaViolation)
	}

	calls, err := toToolCalls(msg.ToolCalls)
	if err != nil {
		return contractx.Plan{}, err
	}
	plan := contractx.Plan{Calls: calls}
	if len(calls) == 0 {
		plan.Reply = strings.TrimSpace(msg.Content)
	}
	return plan, nil
}

func (p *LLMPlanner) historyMessages(history []contractx.Turn) []*schema.Message {
	if p.historyLimit == 0 {
		return []*schema.Message{}
	}
	if len(history) > p.historyLimit {
		history = history[len(history)-p.historyLimit:]
	}
	out := make([]*schema.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Role {
		case contractx.RoleUser:
			out = append(out, schema.UserMessage(turn.Text))
		case contractx.RoleAssistant:
			out = append(out, schema.AssistantMessage(turn.Text, nil))
		}
	}
	return out
}

func plannerInput(message string, lastArgs map[string]map[string]any) (string, error) {
	if len(lastArgs) == 0 {
		return message, nil
	}
	raw, err := json.Marshal(lastArgs)
	if err != nil {
		return "", fmt.Errorf("%w: marshal previous arguments: %v", contractx.ErrValidation, err)
	}
	return message + "\n\nprevious arguments: " + string(raw), nil
}

func toToolCalls(calls []schema.ToolCall) ([]contractx.ToolCall, error) {
	out := make([]contractx.ToolCall, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}

		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid arguments for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}
		out = append(out, contractx.ToolCall{Name: name, Arguments: args})
	}
	return out, nil
}
