package state

import (
	"maps"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

const (
	DefaultUserID    = "default_user"
	DefaultSessionID = "default_session"
)

// Key identifies one conversation.
type Key struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// NewKey applies the sentinel identities to omitted ids.
func NewKey(userID, sessionID string) Key {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = DefaultUserID
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return Key{UserID: userID, SessionID: sessionID}
}

func (k Key) String() string {
	return k.UserID + ":" + k.SessionID
}

// ConversationSession is the conversational context of one identity pair.
// Turns only ever grow; mu is the per-identity exclusion scope.
type ConversationSession struct {
	Key
	Turns     []contractx.Turn          `json:"turns"`
	LastArgs  map[string]map[string]any `json:"last_args,omitempty"` // tool -> last successful arguments
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`

	mu sync.Mutex
	// persistMu orders snapshot saves so an older copy never lands last.
	persistMu sync.Mutex
	// holders counts requests using the session; guarded by MemoryStore.mu.
	holders int
}

// Exchange is one completed request/reply pair.
type Exchange struct {
	UserText      string
	AssistantText string
	ToolArgs      map[string]map[string]any
	At            time.Time
}

func NewConversationSession(key Key, now time.Time) *ConversationSession {
	return &ConversationSession{
		Key:       key,
		Turns:     make([]contractx.Turn, 0, 8),
		LastArgs:  make(map[string]map[string]any, 4),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s *ConversationSession) appendTurnLocked(role contractx.Role, text string, now time.Time) {
	s.Turns = append(s.Turns, contractx.Turn{Role: role, Text: text, At: now.UTC()})
	s.UpdatedAt = now.UTC()
}

func (s *ConversationSession) AppendTurn(role contractx.Role, text string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendTurnLocked(role, text, now)
}

// AppendExchange appends the user turn, then the assistant turn, then records
// the tool arguments, all inside one critical section.
func (s *ConversationSession) AppendExchange(ex Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendTurnLocked(contractx.RoleUser, ex.UserText, ex.At)
	s.appendTurnLocked(contractx.RoleAssistant, ex.AssistantText, ex.At)
	if len(ex.ToolArgs) == 0 {
		return
	}
	if s.LastArgs == nil {
		s.LastArgs = make(map[string]map[string]any, len(ex.ToolArgs))
	}
	for tool, args := range ex.ToolArgs {
		s.LastArgs[tool] = maps.Clone(args)
	}
}

// History returns a copy of the turns.
func (s *ConversationSession) History() []contractx.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contractx.Turn, len(s.Turns))
	copy(out, s.Turns)
	return out
}

func (s *ConversationSession) LastArguments() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]any, len(s.LastArgs))
	for tool, args := range s.LastArgs {
		out[tool] = maps.Clone(args)
	}
	return out
}

func (s *ConversationSession) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Turns)
}

func (s *ConversationSession) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UpdatedAt
}

// snapshot copies the session under its lock so it can be serialised without
// holding the lock during I/O.
func (s *ConversationSession) snapshot() *ConversationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := &ConversationSession{
		Key:       s.Key,
		Turns:     make([]contractx.Turn, len(s.Turns)),
		LastArgs:  make(map[string]map[string]any, len(s.LastArgs)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	copy(cp.Turns, s.Turns)
	for tool, args := range s.LastArgs {
		cp.LastArgs[tool] = maps.Clone(args)
	}
	return cp
}
