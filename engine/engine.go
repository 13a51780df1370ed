// Package engine wires one arbitration round end to end: collect
// candidates from every agent, arbitrate a winner, write memory back,
// and append the winner to the transcript.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/florean/agora/arbiter"
	"github.com/florean/agora/collector"
	"github.com/florean/agora/core"
	"github.com/florean/agora/events"
	"github.com/florean/agora/history"
	"github.com/florean/agora/roster"
)

// Blocking conditions, surfaced before any network activity.
var (
	ErrNoAgents      = errors.New("no agents configured")
	ErrRoundInFlight = errors.New("a round is already in flight")
)

// PersistFunc writes the trimmed transcript through to storage after
// every append.
type PersistFunc func(ctx context.Context, items []core.HistoryItem) error

// Engine runs arbitration rounds against one active thread.
type Engine struct {
	collector *collector.Collector
	arbiter   *arbiter.Arbiter
	roster    *roster.Roster
	ledger    *history.Ledger
	sink      events.Sink
	persist   PersistFunc

	processing atomic.Bool

	mu   sync.Mutex
	pool []core.CandidateReply // audit pool, newest round first
}

// Option configures the engine.
type Option func(*Engine)

// WithEvents publishes round lifecycle events to the sink.
func WithEvents(s events.Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithPersist sets the transcript write-through hook.
func WithPersist(fn PersistFunc) Option {
	return func(e *Engine) {
		e.persist = fn
	}
}

// New creates an engine.
func New(c *collector.Collector, a *arbiter.Arbiter, r *roster.Roster, l *history.Ledger, opts ...Option) *Engine {
	e := &Engine{
		collector: c,
		arbiter:   a,
		roster:    r,
		ledger:    l,
		sink:      events.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SendMessage appends the user's message to the transcript and runs one
// arbitration round against the updated history.
func (e *Engine) SendMessage(ctx context.Context, text string) (*core.Round, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty message")
	}
	if e.roster.Len() == 0 {
		return nil, ErrNoAgents
	}

	items := e.ledger.Append(core.NewUserItem(text))
	if err := e.persistHistory(ctx, items); err != nil {
		return nil, err
	}
	return e.Next(ctx)
}

// Next runs one arbitration round against the current history without a
// new user message: fan out, arbitrate, remember, append. A round that
// produces zero candidates completes with no transcript change.
func (e *Engine) Next(ctx context.Context) (*core.Round, error) {
	if !e.processing.CompareAndSwap(false, true) {
		return nil, ErrRoundInFlight
	}
	defer e.processing.Store(false)

	agents := e.roster.Agents()
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}

	round := &core.Round{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
	}
	e.sink.Publish(events.Event{
		Type:      events.TypeRoundStarted,
		RoundID:   round.ID,
		Timestamp: round.StartedAt,
	})

	round.Candidates = e.collector.Collect(ctx, agents, e.ledger.Items(), round.ID)
	e.retain(round.Candidates)

	winner := e.arbiter.SelectWinner(ctx, round.Candidates)
	if winner == nil {
		log.Printf("[ENGINE] Round %s produced no candidates", round.ID)
		e.sink.Publish(events.Event{
			Type:      events.TypeRoundEmpty,
			RoundID:   round.ID,
			Timestamp: time.Now(),
		})
		return round, nil
	}
	round.Winner = winner

	// Memory write-back is a side channel; its failure never voids the
	// already-final winner selection.
	if _, err := e.roster.MaybeRemember(ctx, *winner); err != nil {
		log.Printf("[ENGINE] Memory write-back failed: %v", err)
	}

	items := e.ledger.Append(core.NewAssistantItem(*winner))
	if err := e.persistHistory(ctx, items); err != nil {
		return round, err
	}

	e.sink.Publish(events.Event{
		Type:      events.TypeWinnerSelected,
		RoundID:   round.ID,
		Agent:     winner.AgentName,
		Priority:  winner.Priority,
		Content:   winner.Speech,
		Timestamp: time.Now(),
	})
	return round, nil
}

// RunRound adapts Next for the autoplay scheduler.
func (e *Engine) RunRound(ctx context.Context) error {
	_, err := e.Next(ctx)
	return err
}

// Busy reports whether a round is currently in flight.
func (e *Engine) Busy() bool {
	return e.processing.Load()
}

// History returns the current trimmed transcript.
func (e *Engine) History() []core.HistoryItem {
	return e.ledger.Items()
}

// Candidates returns the audit pool: every validated candidate from
// every round of this session, newest round first. Losing candidates
// are retained here even though only winners enter the transcript.
func (e *Engine) Candidates() []core.CandidateReply {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.CandidateReply, len(e.pool))
	copy(out, e.pool)
	return out
}

func (e *Engine) retain(candidates []core.CandidateReply) {
	if len(candidates) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool = append(append([]core.CandidateReply(nil), candidates...), e.pool...)
}

func (e *Engine) persistHistory(ctx context.Context, items []core.HistoryItem) error {
	if e.persist == nil {
		return nil
	}
	if err := e.persist(ctx, items); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}
