// Package aggregate turns a plan and its settled tool results into the reply
// text. Everything here is pure: equal inputs give equal output.
package aggregate

import (
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

const (
	noToolReply       = "I couldn't match your request to any of the available specialist agents. Could you rephrase it or ask about something they cover?"
	degradedReply     = "I couldn't work out how to handle your request right now, so no specialist agents were consulted. Please try again in a moment."
	missingResultNote = "no result, the request ended before this call settled"
)

// Aggregate composes the reply. Results are matched to plan entries by Index
// and may cover only part of the plan. Every failed capability is named in
// the text, and the text is never empty.
func Aggregate(_ []contractx.Turn, plan contractx.Plan, results []contractx.ToolCallResult) (string, error) {
	byIndex, err := indexResults(plan, results)
	if err != nil {
		return "", err
	}

	if len(plan.Calls) == 0 {
		return emptyPlanReply(plan), nil
	}

	lines := make([]string, 0, len(plan.Calls))
	var failed, succeeded []string
	for i, call := range plan.Calls {
		res, ok := byIndex[i]
		if !ok {
			failed = append(failed, call.Name)
			lines = append(lines, fmt.Sprintf("- %s: %s", call.Name, missingResultNote))
			continue
		}
		if !res.Outcome.OK() {
			failed = append(failed, call.Name)
			lines = append(lines, fmt.Sprintf("- %s: unavailable (%s)", call.Name, describeFailure(res.Outcome)))
			continue
		}
		text, err := Render(res.ToolResponse().Response)
		if err != nil {
			return "", fmt.Errorf("%w: render result of %s: %v", contractx.ErrAggregationFailure, call.Name, err)
		}
		succeeded = append(succeeded, call.Name)
		lines = append(lines, fmt.Sprintf("- %s: %s", call.Name, text))
	}

	var b strings.Builder
	switch {
	case len(failed) == 0:
		b.WriteString("Here is what I found:\n")
	case len(succeeded) == 0:
		fmt.Fprintf(&b, "I wasn't able to get an answer from %s.\n", joinNames(failed))
	default:
		fmt.Fprintf(&b, "Here is what I found. I couldn't get results from %s.\n", joinNames(failed))
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String(), nil
}

func indexResults(plan contractx.Plan, results []contractx.ToolCallResult) (map[int]contractx.ToolCallResult, error) {
	byIndex := make(map[int]contractx.ToolCallResult, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(plan.Calls) {
			return nil, fmt.Errorf("%w: result index %d outside plan of %d calls", contractx.ErrAggregationFailure, res.Index, len(plan.Calls))
		}
		if _, dup := byIndex[res.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate result for call %d", contractx.ErrAggregationFailure, res.Index)
		}
		if want := plan.Calls[res.Index].Name; res.Name != want {
			return nil, fmt.Errorf("%w: result %d is for %q, plan has %q", contractx.ErrAggregationFailure, res.Index, res.Name, want)
		}
		byIndex[res.Index] = res
	}
	return byIndex, nil
}

func emptyPlanReply(plan contractx.Plan) string {
	if reply := strings.TrimSpace(plan.Reply); reply != "" {
		return reply
	}
	if plan.Degraded {
		return degradedReply
	}
	return noToolReply
}

func describeFailure(o contractx.Outcome) string {
	if o.Detail == "" {
		return string(o.Kind)
	}
	return string(o.Kind) + ": " + o.Detail
}

// Render formats a payload for the reply: strings verbatim, anything else as
// compact JSON.
func Render(payload any) (string, error) {
	switch v := payload.(type) {
	case nil:
		return "(empty)", nil
	case string:
		return strings.TrimSpace(v), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
