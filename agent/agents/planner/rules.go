package planner

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

// Rule maps keywords in a message to one tool call. Arguments maps each
// argument name to a regular expression whose first capture group is the value.
type Rule struct {
	Tool      string            `mapstructure:"tool" validate:"required"`
	Keywords  []string          `mapstructure:"keywords" validate:"min=1,dive,required"`
	Arguments map[string]string `mapstructure:"arguments"`
	Defaults  map[string]any    `mapstructure:"defaults"`
}

type compiledRule struct {
	tool      string
	keywords  []string
	arguments map[string]*regexp.Regexp
	argNames  []string
	defaults  map[string]any
}

// RulePlanner is a deterministic keyword planner. Rules are tried in order and
// each tool appears at most once per plan. Arguments the message does not
// supply are carried over from the last successful call of the same tool.
type RulePlanner struct {
	rules []compiledRule
}

var _ contractx.Planner = (*RulePlanner)(nil)

func NewRulePlanner(rules []Rule) (*RulePlanner, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		tool := strings.TrimSpace(r.Tool)
		if tool == "" {
			return nil, fmt.Errorf("%w: rule %d has no tool", contractx.ErrValidation, i)
		}
		keywords := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("%w: rule %d (%s) has no keywords", contractx.ErrValidation, i, tool)
		}

		args := make(map[string]*regexp.Regexp, len(r.Arguments))
		for name, expr := range r.Arguments {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("%w: rule %s argument %s: %v", contractx.ErrValidation, tool, name, err)
			}
			if re.NumSubexp() < 1 {
				return nil, fmt.Errorf("%w: rule %s argument %s needs a capture group", contractx.ErrValidation, tool, name)
			}
			args[name] = re
		}

		compiled = append(compiled, compiledRule{
			tool:      tool,
			keywords:  keywords,
			arguments: args,
			argNames:  slices.Sorted(maps.Keys(args)),
			defaults:  maps.Clone(r.Defaults),
		})
	}
	return &RulePlanner{rules: compiled}, nil
}

func (p *RulePlanner) Plan(ctx context.Context, req contractx.PlannerRequest) (contractx.Plan, error) {
	if err := ctx.Err(); err != nil {
		return contractx.Plan{}, err
	}

	message := strings.TrimSpace(req.Message)
	lower := strings.ToLower(message)
	seen := make(map[string]struct{}, len(p.rules))
	plan := contractx.Plan{Calls: []contractx.ToolCall{}}

	for _, rule := range p.rules {
		if _, dup := seen[rule.tool]; dup {
			continue
		}
		if !rule.matches(lower) {
			continue
		}
		seen[rule.tool] = struct{}{}
		plan.Calls = append(plan.Calls, contractx.ToolCall{
			Name:      rule.tool,
			Arguments: rule.extract(message, req.LastArgs[rule.tool]),
		})
	}
	return plan, nil
}

func (r compiledRule) matches(lower string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extract resolves arguments in order: message, carried-over value, default.
func (r compiledRule) extract(message string, previous map[string]any) map[string]any {
	args := make(map[string]any, len(r.arguments)+len(r.defaults))
	for name, v := range r.defaults {
		args[name] = v
	}
	for name, v := range previous {
		args[name] = v
	}
	for _, name := range r.argNames {
		m := r.arguments[name].FindStringSubmatch(message)
		if len(m) < 2 {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			args[name] = v
		}
	}
	return args
}
