package session

import (
	"strings"
	"sync"
	"time"
)

// DefaultRetention is the maximum number of stored messages per session
// (10 exchanges). Oldest entries are evicted first.
const DefaultRetention = 20

// Store keeps per-session conversation state in memory. Sessions are created
// lazily on first reference; an unknown session id behaves like an empty one.
// All access is serialized by a single mutex so concurrent requests for the
// same session cannot interleave a commit.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*state
	retention int
}

type state struct {
	history         []Message
	info            UserInfo
	pendingQuestion string
}

// NewStore creates an empty store. retention <= 0 selects DefaultRetention.
func NewStore(retention int) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		sessions:  make(map[string]*state),
		retention: retention,
	}
}

// History returns a copy of the session's retained messages, oldest first.
// Unknown sessions yield an empty slice.
func (s *Store) History(sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]Message, len(st.history))
	copy(out, st.history)
	return out
}

// UserInfo returns the stored caller metadata for the session.
func (s *Store) UserInfo(sessionID string) UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.sessions[sessionID]; ok {
		return st.info
	}
	return UserInfo{}
}

// MergeUserInfo overwrites stored fields with any non-empty incoming fields.
// Empty fields leave previously stored values untouched.
func (s *Store) MergeUserInfo(sessionID string, info UserInfo) {
	name := strings.TrimSpace(info.Name)
	biz := strings.TrimSpace(info.BusinessType)
	if name == "" && biz == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreate(sessionID)
	if name != "" {
		st.info.Name = name
	}
	if biz != "" {
		st.info.BusinessType = biz
	}
}

// PendingQuestion returns the most recently committed assistant reply if it
// ended with a question mark, or "" otherwise.
func (s *Store) PendingQuestion(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.sessions[sessionID]; ok {
		return st.pendingQuestion
	}
	return ""
}

// CommitTurn appends one user/assistant exchange, evicts the oldest entries
// beyond the retention cap and recomputes the pending question. It is the only
// mutator of history and must be called at most once per orchestrated turn.
func (s *Store) CommitTurn(sessionID, userText, assistantText string) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreate(sessionID)
	st.history = append(st.history,
		Message{Role: RoleUser, Content: userText, Timestamp: now},
		Message{Role: RoleAssistant, Content: assistantText, Timestamp: now},
	)
	if excess := len(st.history) - s.retention; excess > 0 {
		st.history = append(st.history[:0], st.history[excess:]...)
	}

	if strings.HasSuffix(strings.TrimSpace(assistantText), "?") {
		st.pendingQuestion = assistantText
	} else {
		st.pendingQuestion = ""
	}
}

// Reset clears session state according to scope and reports whether the
// session was known. Resetting an unknown session is a no-op.
func (s *Store) Reset(sessionID string, scope ResetScope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return false
	}

	if scope == ScopeAll {
		delete(s.sessions, sessionID)
		return true
	}

	found := len(st.history) > 0 || st.pendingQuestion != ""
	st.history = nil
	st.pendingQuestion = ""
	if st.info == (UserInfo{}) {
		// Nothing sticky left worth keeping.
		delete(s.sessions, sessionID)
	}
	return found
}

func (s *Store) getOrCreate(sessionID string) *state {
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &state{}
		s.sessions[sessionID] = st
	}
	return st
}
