package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	nodex "github.com/tanpawarit/a2a-host-orchestrator/agent/nodes"
	statex "github.com/tanpawarit/a2a-host-orchestrator/agent/state"
	"go.uber.org/atomic"
)

var (
	ErrInvalidRequest     = contractx.ErrInvalidRequest
	ErrAggregationFailure = contractx.ErrAggregationFailure
)

// commitAllowance covers aggregation and the session append after the last
// remote call has settled.
const commitAllowance = time.Second

type Config struct {
	PlanningTimeout time.Duration `envconfig:"PLANNING_TIMEOUT" split_words:"true" default:"10s"`
	CallTimeout     time.Duration `envconfig:"CALL_TIMEOUT" split_words:"true" default:"15s"`
	RetryBackoff    time.Duration `envconfig:"RETRY_BACKOFF" split_words:"true" default:"250ms"`
	MaxConcurrency  int           `envconfig:"MAX_CONCURRENCY" split_words:"true" default:"8"`
	ChunkSize       int           `envconfig:"CHUNK_SIZE" split_words:"true" default:"64"`
}

type Stats struct {
	InFlight  int64 `json:"in_flight"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type Orchestrator struct {
	store      statex.Store
	planner    contractx.Planner
	registry   contractx.Registry
	dispatcher *nodex.Dispatcher
	cfg        Config

	graphRunner compose.Runnable[nodex.GraphInput, contractx.ChatResponse]

	inFlight  *atomic.Int64
	completed *atomic.Int64
	failed    *atomic.Int64

	now func() time.Time
}

func New(
	store statex.Store,
	planner contractx.Planner,
	registry contractx.Registry,
	client contractx.AgentClient,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if registry == nil {
		return nil, errors.New("agent registry is required")
	}
	if client == nil {
		return nil, errors.New("agent client is required")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64
	}

	o := &Orchestrator{
		store:    store,
		planner:  planner,
		registry: registry,
		dispatcher: &nodex.Dispatcher{
			Registry:       registry,
			Client:         client,
			CallTimeout:    cfg.CallTimeout,
			RetryBackoff:   cfg.RetryBackoff,
			MaxConcurrency: cfg.MaxConcurrency,
		},
		cfg:       cfg,
		inFlight:  atomic.NewInt64(0),
		completed: atomic.NewInt64(0),
		failed:    atomic.NewInt64(0),
		now:       time.Now,
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Budget is the wall-clock bound of one request: planning, then a call and
// its single retry, then aggregation and commit.
func (o *Orchestrator) Budget() time.Duration {
	return o.cfg.PlanningTimeout + 2*o.cfg.CallTimeout + o.cfg.RetryBackoff + commitAllowance
}

func (o *Orchestrator) IsReady() bool {
	return o.registry.IsReady()
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		InFlight:  o.inFlight.Load(),
		Completed: o.completed.Load(),
		Failed:    o.failed.Load(),
	}
}

func (o *Orchestrator) HandleMessage(ctx context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error) {
	return o.run(ctx, xid.New().String(), req, nodex.Hooks{})
}

func (o *Orchestrator) run(ctx context.Context, requestID string, req contractx.ChatRequest, hooks nodex.Hooks) (contractx.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.Budget())
	defer cancel()

	o.inFlight.Inc()
	defer o.inFlight.Dec()
	start := o.now()

	lease := &nodex.Lease{}
	defer func() {
		o.store.Release(lease.Session())
	}()

	resp, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		RequestID: requestID,
		Request:   req,
		Hooks:     hooks,
		Lease:     lease,
	})
	if err != nil {
		o.failed.Inc()
		log.Warn().
			Err(err).
			Str("request_id", requestID).
			Str("phase", string(contractx.PhaseFailed)).
			Dur("elapsed", o.now().Sub(start)).
			Msg("request failed")
		return contractx.ChatResponse{}, err
	}

	o.completed.Inc()
	log.Info().
		Str("request_id", requestID).
		Str("session", resp.UserID+":"+resp.SessionID).
		Str("phase", string(resp.Phase)).
		Int("calls", len(resp.ToolCalls)).
		Int("settled", len(resp.Results)).
		Dur("elapsed", o.now().Sub(start)).
		Msg("request completed")
	return resp, nil
}
