package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"medirep-gateway/internal/answer"
)

// Dispatcher is the slice of the backend client the engine depends on.
type Dispatcher interface {
	Query(ctx context.Context, query, mode string) (json.RawMessage, error)
	Health(ctx context.Context) bool
}

// User-facing copy for the two failure narratives. The health probe picks
// between them; it is a diagnostic, not a retry.
const (
	RateLimitedMessage = "The AI model is temporarily rate-limited. Please wait a few seconds and try again."
	UnreachableMessage = "Sorry, the backend is not connected yet. Please make sure the inference server is running."
)

var (
	// ErrEmptyQuery means the trimmed query was empty; the send is a no-op.
	ErrEmptyQuery = errors.New("empty query")
	// ErrDispatchPending means a query is already in flight for the session.
	ErrDispatchPending = errors.New("dispatch already pending")
)

const healthProbeTimeout = 5 * time.Second

// Engine runs the per-turn state machine: it appends the user turn, drives
// the dispatch, normalizes the response, and appends the assistant turn.
// It is the only writer of the turn list.
type Engine struct {
	dispatcher Dispatcher
}

func NewEngine(d Dispatcher) *Engine {
	return &Engine{dispatcher: d}
}

// Send runs one complete turn. Every non-trivial outcome, including a
// failed dispatch, ends in exactly one appended assistant turn; the session
// never halts because a turn failed.
func (e *Engine) Send(ctx context.Context, sess *Session, text string) (Turn, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return Turn{}, ErrEmptyQuery
	}
	if !sess.TryBeginDispatch() {
		return Turn{}, ErrDispatchPending
	}
	defer sess.EndDispatch()

	// Optimistic user turn: appended before the dispatch resolves.
	sess.AppendTurn(Turn{Role: RoleUser, Content: answer.PlainText(query)})
	sess.ClearInput()

	raw, err := e.dispatcher.Query(ctx, query, sess.Mode())
	if err != nil {
		log.Printf("[session] dispatch failed for %s: %v", sess.ID, err)
		reply := Turn{Role: RoleAssistant, Content: answer.PlainText(e.failureMessage(ctx))}
		sess.AppendTurn(reply)
		return reply, nil
	}

	content := answer.Normalize(raw)
	reply := Turn{Role: RoleAssistant, Content: content}
	if content.IsStructured() {
		reply.Sources = content.Record.SourceNames()
	}
	sess.AppendTurn(reply)
	return reply, nil
}

// failureMessage probes backend health once to pick the failure copy:
// reachable means the model itself refused (treated as rate limiting),
// unreachable means the backend is down.
func (e *Engine) failureMessage(ctx context.Context) string {
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthProbeTimeout)
	defer cancel()
	if e.dispatcher.Health(probeCtx) {
		return RateLimitedMessage
	}
	return UnreachableMessage
}
