// Package session implements the conversational query session: the turn
// list, the dispatch and recording state machines, and the engine that
// orchestrates the backend collaborators.
package session

import (
	"strings"
	"sync"
	"time"

	"medirep-gateway/internal/answer"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchange unit in the conversation. Turns are append-only and
// ordered by creation time.
type Turn struct {
	Role    Role           `json:"role"`
	Content answer.Content `json:"content"`
	// Sources duplicates the record's source database names for consumers
	// that still render a flat source list next to the turn.
	Sources   []string  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the owned state container for one live conversation. It is
// created per browser session, mutated by user actions and async
// completions, and discarded when the session store drops it.
type Session struct {
	ID string

	mu       sync.Mutex
	mode     string
	turns    []Turn
	maxTurns int
	pending  bool
	input    string

	subscribers map[int]chan Turn
	nextSubID   int
}

func New(id, mode string, maxTurns int) *Session {
	return &Session{
		ID:          id,
		mode:        NormalizeMode(mode),
		maxTurns:    maxTurns,
		subscribers: make(map[int]chan Turn),
	}
}

// Mode returns the persona the session dispatches with.
func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the persona. The change applies from the next dispatch;
// an in-flight one keeps the mode it started with.
func (s *Session) SetMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = NormalizeMode(mode)
}

// AppendTurn adds a turn to the end of the conversation and fans it out to
// subscribers. Only the engine appends turns.
func (s *Session) AppendTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.turns = append(s.turns, t)
	s.trimLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- t:
		default: // slow subscriber, drop rather than stall the turn list
		}
	}
}

// Turns returns a copy of the ordered turn list.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) trimLocked() {
	if s.maxTurns <= 0 {
		return
	}
	if len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
}

// TryBeginDispatch flips the pending flag if no dispatch is in flight.
// At most one query runs per session at a time.
func (s *Session) TryBeginDispatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return false
	}
	s.pending = true
	return true
}

func (s *Session) EndDispatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
}

// Pending reports whether a dispatch is in flight.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Input returns the pending input text buffer.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
}

// ClearInput empties the pending input buffer and returns what it held.
func (s *Session) ClearInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.input
	s.input = ""
	return prev
}

// AppendTranscript merges recognized speech into the pending input,
// separated by a single space when both sides are non-empty. Empty text is
// a valid "no speech detected" result and leaves the buffer untouched.
func (s *Session) AppendTranscript(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.input == "" {
		s.input = text
		return
	}
	s.input = s.input + " " + text
}

// Subscribe registers a turn-event listener. The returned cancel func must
// be called when the listener goes away.
func (s *Session) Subscribe() (<-chan Turn, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Turn, 16)
	s.subscribers[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// NormalizeMode coerces blank persona selectors to the doctor default and
// leaves everything else for the backend to judge.
func NormalizeMode(mode string) string {
	m := strings.ToLower(strings.TrimSpace(mode))
	if m == "" {
		return "doctor"
	}
	return m
}
