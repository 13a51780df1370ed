// Package roster manages a project's shared agent list and the memory
// write-back performed after each round.
package roster

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/florean/agora/core"
	"github.com/florean/agora/recall"
)

// PersistFunc writes the full agent list through to storage. The roster
// calls it on every mutation so a later round within the same session
// observes the change.
type PersistFunc func(ctx context.Context, agents []core.Agent) error

// Roster holds the agents of one project. Writes happen strictly
// between rounds, never concurrently with another write to the same
// agent; the lock protects readers (the collector, status displays).
type Roster struct {
	mu            sync.Mutex
	agents        []core.Agent
	memoryEnabled bool
	persist       PersistFunc
	retriever     recall.Retriever
}

// Option configures the roster.
type Option func(*Roster)

// WithPersist sets the write-through persistence hook.
func WithPersist(fn PersistFunc) Option {
	return func(r *Roster) {
		r.persist = fn
	}
}

// WithRetriever keeps a semantic recall index in sync with memory
// writes and clears.
func WithRetriever(ret recall.Retriever) Option {
	return func(r *Roster) {
		r.retriever = ret
	}
}

// New creates a roster. memoryEnabled gates all memory write-back.
func New(agents []core.Agent, memoryEnabled bool, opts ...Option) *Roster {
	r := &Roster{
		agents:        append([]core.Agent(nil), agents...),
		memoryEnabled: memoryEnabled,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Agents returns a copy of the agent list.
func (r *Roster) Agents() []core.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Len reports the roster size.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

// MemoryEnabled reports whether memory write-back is on.
func (r *Roster) MemoryEnabled() bool {
	return r.memoryEnabled
}

// Add appends an agent and persists the roster.
func (r *Roster) Add(ctx context.Context, agent core.Agent) error {
	if err := agent.Validate(); err != nil {
		return fmt.Errorf("invalid agent: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = append(r.agents, agent)
	return r.persistLocked(ctx)
}

// Update replaces the agent with the same ID and persists the roster.
func (r *Roster) Update(ctx context.Context, agent core.Agent) error {
	if err := agent.Validate(); err != nil {
		return fmt.Errorf("invalid agent: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.agents {
		if r.agents[i].ID == agent.ID {
			r.agents[i] = agent
			return r.persistLocked(ctx)
		}
	}
	return fmt.Errorf("agent %s not found", agent.ID)
}

// Remove deletes an agent and persists the roster.
func (r *Roster) Remove(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.agents[:0]
	found := false
	for _, a := range r.agents {
		if a.ID == agentID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return fmt.Errorf("agent %s not found", agentID)
	}
	r.agents = kept

	if r.retriever != nil {
		if err := r.retriever.Forget(ctx, agentID); err != nil {
			log.Printf("[MEMORY] Failed to drop recall index for %s: %v", agentID, err)
		}
	}
	return r.persistLocked(ctx)
}

// ClearMemories drops every memory fragment of one agent in bulk and
// persists the roster. The agent itself is untouched.
func (r *Roster) ClearMemories(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.agents {
		if r.agents[i].ID != agentID {
			continue
		}
		r.agents[i].Memories = nil
		if r.retriever != nil {
			if err := r.retriever.Forget(ctx, agentID); err != nil {
				log.Printf("[MEMORY] Failed to drop recall index for %s: %v", agentID, err)
			}
		}
		return r.persistLocked(ctx)
	}
	return fmt.Errorf("agent %s not found", agentID)
}

// MaybeRemember is the memory writer: when memory is enabled and the
// winning candidate declared a non-empty remember value, one new
// fragment is appended to that agent's list and the full roster is
// persisted immediately. Prior memories are never replaced or
// deduplicated. Returns whether a fragment was written.
func (r *Roster) MaybeRemember(ctx context.Context, candidate core.CandidateReply) (bool, error) {
	if !r.memoryEnabled || strings.TrimSpace(candidate.Remember) == "" {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.agents {
		if r.agents[i].ID != candidate.AgentID {
			continue
		}

		frag := core.NewMemoryFragment(candidate.Remember)
		r.agents[i].Memories = append(r.agents[i].Memories, frag)
		log.Printf("[MEMORY] %s remembered: %q", r.agents[i].Name, frag.Content)

		if r.retriever != nil {
			if err := r.retriever.Index(ctx, candidate.AgentID, frag); err != nil {
				log.Printf("[MEMORY] Failed to index fragment for %s: %v", r.agents[i].Name, err)
			}
		}
		return true, r.persistLocked(ctx)
	}
	return false, fmt.Errorf("agent %s not found", candidate.AgentID)
}

// persistLocked writes the roster through. Callers hold the lock.
func (r *Roster) persistLocked(ctx context.Context) error {
	if r.persist == nil {
		return nil
	}
	if err := r.persist(ctx, r.snapshot()); err != nil {
		return fmt.Errorf("persist roster: %w", err)
	}
	return nil
}

func (r *Roster) snapshot() []core.Agent {
	out := make([]core.Agent, len(r.agents))
	copy(out, r.agents)
	return out
}
