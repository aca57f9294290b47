package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	"golang.org/x/sync/errgroup"
)

// Dispatcher fans a plan out to the specialist agents.
type Dispatcher struct {
	Registry       contractx.Registry
	Client         contractx.AgentClient
	CallTimeout    time.Duration
	RetryBackoff   time.Duration
	MaxConcurrency int
}

func DispatchCalls(ctx context.Context, in *GraphState, d *Dispatcher) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.setPhase(contractx.PhaseDispatching)
	in.Results = d.Dispatch(ctx, in.RequestID, in.Plan.Calls, in.Hooks.OnResult)
	return in, nil
}

// Dispatch runs every call concurrently and returns once all have settled.
// Results come back in plan order; those rejected by observe are left out.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	requestID string,
	calls []contractx.ToolCall,
	observe func(contractx.ToolCallResult) bool,
) []contractx.ToolCallResult {
	settled := make([]*contractx.ToolCallResult, len(calls))
	var mu sync.Mutex
	record := func(res contractx.ToolCallResult) {
		mu.Lock()
		defer mu.Unlock()
		if observe != nil && !observe(res) {
			return
		}
		settled[res.Index] = &res
	}

	var g errgroup.Group
	if d.MaxConcurrency > 0 {
		g.SetLimit(d.MaxConcurrency)
	}

	for i, call := range calls {
		args := maps.Clone(call.Arguments)
		if args == nil {
			args = map[string]any{}
		}

		endpoint, err := d.Registry.Resolve(call.Name)
		if err != nil {
			log.Warn().Str("request_id", requestID).Str("tool", call.Name).Msg("tool not registered")
			record(contractx.ToolCallResult{
				Index:     i,
				Name:      call.Name,
				Arguments: args,
				Outcome:   contractx.Failure(contractx.OutcomeToolNotFound, call.Name),
			})
			continue
		}

		g.Go(func() error {
			res := d.invokeWithRetry(ctx, requestID, endpoint, args)
			res.Index = i
			res.Name = call.Name
			res.Arguments = args
			d.recordHealth(call.Name, res.Outcome)
			record(res)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]contractx.ToolCallResult, 0, len(calls))
	for _, res := range settled {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out
}

// invokeWithRetry makes at most two attempts. Only timeouts and unreachable
// agents are retried, after RetryBackoff.
func (d *Dispatcher) invokeWithRetry(
	ctx context.Context,
	requestID string,
	endpoint contractx.AgentEndpoint,
	args map[string]any,
) contractx.ToolCallResult {
	start := time.Now()
	res := d.attempt(ctx, endpoint, args)
	res.Attempts = 1
	if !res.Outcome.Retryable() {
		res.Latency = time.Since(start)
		return res
	}

	log.Info().
		Str("request_id", requestID).
		Str("tool", endpoint.Name).
		Str("outcome", string(res.Outcome.Kind)).
		Dur("backoff", d.RetryBackoff).
		Msg("retrying tool call")

	if d.RetryBackoff > 0 {
		timer := time.NewTimer(d.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Latency = time.Since(start)
			return res
		case <-timer.C:
		}
	}

	res = d.attempt(ctx, endpoint, args)
	res.Attempts = 2
	res.Latency = time.Since(start)
	if !res.Outcome.OK() {
		log.Warn().
			Str("request_id", requestID).
			Str("tool", endpoint.Name).
			Str("outcome", string(res.Outcome.Kind)).
			Str("detail", res.Outcome.Detail).
			Msg("tool call failed after retry")
	}
	return res
}

// attempt makes one call bounded by CallTimeout. If the client has not
// returned when the deadline passes, the call settles as a timeout and the
// client's late answer is dropped.
func (d *Dispatcher) attempt(
	ctx context.Context,
	endpoint contractx.AgentEndpoint,
	args map[string]any,
) contractx.ToolCallResult {
	callCtx := ctx
	if d.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.CallTimeout)
		defer cancel()
	}

	done := make(chan contractx.ToolCallResult, 1)
	go func() {
		done <- d.Client.Invoke(callCtx, endpoint, args, d.CallTimeout)
	}()

	select {
	case res := <-done:
		return res
	case <-callCtx.Done():
	}

	// an answer that raced the deadline still counts
	select {
	case res := <-done:
		return res
	default:
	}

	detail := fmt.Sprintf("no reply within %s", d.CallTimeout)
	if !errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		detail = "request cancelled before the agent replied"
	}
	return contractx.ToolCallResult{Outcome: contractx.Failure(contractx.OutcomeTimeout, detail)}
}

func (d *Dispatcher) recordHealth(name string, o contractx.Outcome) {
	switch o.Kind {
	case contractx.OutcomeUnreachable:
		d.Registry.SetHealth(name, contractx.HealthUnreachable)
	case contractx.OutcomeSuccess, contractx.OutcomeRemoteError, contractx.OutcomeInvalidResponse:
		d.Registry.SetHealth(name, contractx.HealthHealthy)
	}
}
