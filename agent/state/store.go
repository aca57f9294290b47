package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

var (
	ErrStateNotFound   = errors.New("session state not found")
	ErrNilSessionState = errors.New("session state is nil")
	ErrInvalidSession  = errors.New("session id is empty")
)

// Store is the conversation context contract used by the orchestrator.
type Store interface {
	GetOrCreate(ctx context.Context, userID, sessionID string) *ConversationSession
	AppendTurn(ctx context.Context, sess *ConversationSession, role contractx.Role, text string) error
	AppendExchange(ctx context.Context, sess *ConversationSession, ex Exchange) error
	History(sess *ConversationSession) []contractx.Turn
	// Release ends a GetOrCreate hold. Held sessions are never evicted.
	Release(sess *ConversationSession)
}

// Snapshotter persists copies of sessions outside the process.
type Snapshotter interface {
	Load(ctx context.Context, key Key) (*ConversationSession, error)
	Save(ctx context.Context, st *ConversationSession) error
	Delete(ctx context.Context, key Key) error
}

// MemoryStoreOption customizes MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithSnapshotter writes every committed exchange through to snap and warms
// unseen sessions from it.
func WithSnapshotter(snap Snapshotter) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.snap = snap
	}
}

func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MemoryStore keeps sessions in process. The map is guarded by mu; each
// session carries its own lock for appends.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[Key]*ConversationSession
	snap     Snapshotter
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[Key]*ConversationSession, 64),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// GetOrCreate never fails. A snapshot backend error is logged and an empty
// session is materialised instead.
func (s *MemoryStore) GetOrCreate(ctx context.Context, userID, sessionID string) *ConversationSession {
	key := NewKey(userID, sessionID)

	s.mu.Lock()
	if sess, ok := s.sessions[key]; ok {
		sess.holders++
		s.mu.Unlock()
		return sess
	}
	s.mu.Unlock()

	loaded := s.warm(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	// another request may have created it while we were loading
	if sess, ok := s.sessions[key]; ok {
		sess.holders++
		return sess
	}
	if loaded == nil {
		loaded = NewConversationSession(key, s.now())
	}
	loaded.holders++
	s.sessions[key] = loaded
	return loaded
}

func (s *MemoryStore) Release(sess *ConversationSession) {
	if sess == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.holders > 0 {
		sess.holders--
	}
}

func (s *MemoryStore) warm(ctx context.Context, key Key) *ConversationSession {
	if s.snap == nil {
		return nil
	}
	st, err := s.snap.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			log.Warn().Err(err).Str("session", key.String()).Msg("load session snapshot failed")
		}
		return nil
	}
	st.Key = key
	if st.LastArgs == nil {
		st.LastArgs = make(map[string]map[string]any, 4)
	}
	return st
}

func (s *MemoryStore) AppendTurn(ctx context.Context, sess *ConversationSession, role contractx.Role, text string) error {
	if sess == nil {
		return ErrNilSessionState
	}
	sess.AppendTurn(role, text, s.now())
	s.persist(ctx, sess)
	return nil
}

func (s *MemoryStore) AppendExchange(ctx context.Context, sess *ConversationSession, ex Exchange) error {
	if sess == nil {
		return ErrNilSessionState
	}
	if ex.At.IsZero() {
		ex.At = s.now()
	}
	sess.AppendExchange(ex)
	s.persist(ctx, sess)
	return nil
}

func (s *MemoryStore) History(sess *ConversationSession) []contractx.Turn {
	if sess == nil {
		return nil
	}
	return sess.History()
}

// persist saves a snapshot. Copy and save happen under the session's persist
// lock, so saves land in append order.
func (s *MemoryStore) persist(ctx context.Context, sess *ConversationSession) {
	if s.snap == nil {
		return
	}
	sess.persistMu.Lock()
	defer sess.persistMu.Unlock()
	if err := s.snap.Save(ctx, sess.snapshot()); err != nil {
		log.Warn().Err(err).Str("session", sess.Key.String()).Msg("save session snapshot failed")
	}
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Evict drops sessions idle for longer than idle and returns how many were
// removed. Sessions still held by a request are skipped. Snapshots are left
// untouched so an evicted session can be warmed again on its next message.
func (s *MemoryStore) Evict(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, sess := range s.sessions {
		if sess.holders == 0 && sess.lastActivity().Before(cutoff) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// RunJanitor calls Evict every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, every, idle time.Duration) {
	if every <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(idle); n > 0 {
				log.Info().Int("evicted", n).Dur("idle", idle).Msg("evicted idle sessions")
			}
		}
	}
}
