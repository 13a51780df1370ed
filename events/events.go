// Package events carries round lifecycle notifications out of the engine,
// primarily for live "N agents thinking" status displays.
package events

import (
	"sync"
	"time"
)

// Type identifies a lifecycle event.
type Type string

const (
	// TypeRoundStarted fires when a round begins fanning out.
	TypeRoundStarted Type = "round_started"

	// TypeAgentThinking fires per agent when its request is issued.
	TypeAgentThinking Type = "agent_thinking"

	// TypeAgentSettled fires per agent as soon as its request resolves,
	// success or failure, independent of the other agents. Contributed
	// reports whether the agent produced a valid candidate.
	TypeAgentSettled Type = "agent_settled"

	// TypeWinnerSelected fires when a round concludes with a winner.
	TypeWinnerSelected Type = "winner_selected"

	// TypeRoundEmpty fires when a round produced zero valid candidates.
	TypeRoundEmpty Type = "round_empty"
)

// Event is one lifecycle notification.
type Event struct {
	Type        Type      `json:"type"`
	RoundID     string    `json:"round_id,omitempty"`
	Agent       string    `json:"agent,omitempty"`
	Contributed bool      `json:"contributed,omitempty"`
	Priority    int       `json:"priority,omitempty"`
	Content     string    `json:"content,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sink receives lifecycle events. Publish must not block the round;
// implementations that fan out to slow consumers drop them instead.
type Sink interface {
	Publish(ev Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(Event) {}

// Multi fans publishes out to several sinks.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

type multi []Sink

func (m multi) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// Recorder retains every published event, for tests and inspection.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByType filters recorded events.
func (r *Recorder) ByType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
