package orchestratornode

import (
	"sync"
	"time"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
	statex "github.com/tanpawarit/a2a-host-orchestrator/agent/state"
)

// Hooks observe a request while it runs. OnResult is called once per settled
// call in completion order; returning false discards the result.
type Hooks struct {
	OnPlan   func(plan contractx.Plan)
	OnResult func(res contractx.ToolCallResult) bool
}

type GraphInput struct {
	RequestID string
	Request   contractx.ChatRequest
	Hooks     Hooks
	Lease     *Lease
}

// Lease remembers the session a request loaded so the caller can release it
// however the graph ends.
type Lease struct {
	mu   sync.Mutex
	sess *statex.ConversationSession
}

func (l *Lease) hold(sess *statex.ConversationSession) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sess = sess
}

// Session returns the held session, or nil if none was loaded.
func (l *Lease) Session() *statex.ConversationSession {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess
}

type GraphState struct {
	RequestID string
	Key       statex.Key
	Message   string
	Now       time.Time
	Phase     contractx.Phase
	Hooks     Hooks
	Lease     *Lease

	Session *statex.ConversationSession
	History []contractx.Turn
	Plan    contractx.Plan
	Results []contractx.ToolCallResult
	Reply   string
}

func (s *GraphState) setPhase(p contractx.Phase) {
	s.Phase = p
}
