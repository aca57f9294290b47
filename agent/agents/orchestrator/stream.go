package orchestrator

import (
	"context"
	"iter"
	"sync"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	aggregatex "github.com/tanpawarit/a2a-host-orchestrator/agent/aggregate"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	nodex "github.com/tanpawarit/a2a-host-orchestrator/agent/nodes"
	"go.uber.org/atomic"
)

const streamBuffer = 16

// Stream runs the request and yields its events: plan_emitted, one
// tool_result per settled call in completion order, answer_chunk pieces, then
// done. A failed request yields error before done.
//
// The sequence can be ranged over once. If the consumer stops early or ctx is
// cancelled, the request still runs to completion on a detached context;
// results settling after that point are discarded and the session is
// committed from what had settled.
func (o *Orchestrator) Stream(ctx context.Context, req contractx.ChatRequest) (iter.Seq[contractx.StreamEvent], error) {
	if _, err := nodex.NormalizeRequest(req); err != nil {
		return nil, err
	}

	requestID := xid.New().String()
	used := atomic.NewBool(false)

	return func(yield func(contractx.StreamEvent) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}

		s := newEventStream()
		go o.runStream(context.WithoutCancel(ctx), requestID, req, s)
		defer s.disconnect()

		seq := 0
		for {
			select {
			case ev, ok := <-s.events:
				if !ok {
					return
				}
				seq++
				ev.Seq = seq
				ev.RequestID = requestID
				if !yield(ev) {
					log.Info().Str("request_id", requestID).Msg("stream consumer stopped early")
					return
				}
			case <-ctx.Done():
				log.Info().Str("request_id", requestID).Msg("stream consumer disconnected")
				return
			}
		}
	}, nil
}

type eventStream struct {
	events    chan contractx.StreamEvent
	gone      chan struct{}
	connected *atomic.Bool
	once      sync.Once
}

func newEventStream() *eventStream {
	return &eventStream{
		events:    make(chan contractx.StreamEvent, streamBuffer),
		gone:      make(chan struct{}),
		connected: atomic.NewBool(true),
	}
}

func (s *eventStream) disconnect() {
	s.once.Do(func() {
		s.connected.Store(false)
		close(s.gone)
	})
}

// emit reports whether the event reached the consumer's queue.
func (s *eventStream) emit(ev contractx.StreamEvent) bool {
	if !s.connected.Load() {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-s.gone:
		return false
	}
}

func (o *Orchestrator) runStream(ctx context.Context, requestID string, req contractx.ChatRequest, s *eventStream) {
	defer close(s.events)

	hooks := nodex.Hooks{
		OnPlan: func(plan contractx.Plan) {
			s.emit(contractx.StreamEvent{Type: contractx.EventPlanEmitted, Plan: plan.Calls})
		},
		OnResult: func(res contractx.ToolCallResult) bool {
			tr := res.ToolResponse()
			return s.emit(contractx.StreamEvent{Type: contractx.EventToolResult, Result: &tr})
		},
	}

	resp, err := o.run(ctx, requestID, req, hooks)
	if err != nil {
		s.emit(contractx.StreamEvent{Type: contractx.EventError, Error: err.Error()})
		s.emit(contractx.StreamEvent{Type: contractx.EventDone})
		return
	}

	for _, chunk := range aggregatex.Chunk(resp.Response, o.cfg.ChunkSize) {
		if !s.emit(contractx.StreamEvent{Type: contractx.EventAnswerChunk, Chunk: chunk}) {
			return
		}
	}
	s.emit(contractx.StreamEvent{Type: contractx.EventDone, Response: &resp})
}
