package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Thread is one conversation: an ordered transcript plus identity.
// The transcript held here is the bounded window, not the full history;
// items evicted by trimming are permanently unavailable to future rounds.
type Thread struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	History   []HistoryItem `json:"history"`
}

// NewThread creates a thread seeded with a topic message, so agents have
// something to react to before the user says anything.
func NewThread(name string) Thread {
	now := time.Now()
	return Thread{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		History: []HistoryItem{{
			Role:      RoleUser,
			Content:   "Topic: " + name,
			Timestamp: now,
		}},
	}
}

// Project owns an agent roster and a set of threads. The roster is shared
// across all threads of the project; at most one thread is active.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Agents         []Agent   `json:"agents"`
	Threads        []Thread  `json:"threads"`
	ActiveThreadID string    `json:"active_thread_id,omitempty"`
}

// NewProject creates an empty project.
func NewProject(name string) Project {
	now := time.Now()
	return Project{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ActiveThread returns the currently active thread, or nil.
func (p *Project) ActiveThread() *Thread {
	if p.ActiveThreadID == "" {
		return nil
	}
	for i := range p.Threads {
		if p.Threads[i].ID == p.ActiveThreadID {
			return &p.Threads[i]
		}
	}
	return nil
}

// AddThread appends a thread and makes it active.
func (p *Project) AddThread(t Thread) {
	p.Threads = append(p.Threads, t)
	p.ActiveThreadID = t.ID
	p.UpdatedAt = time.Now()
}

// RemoveThread deletes a thread by ID. Deleting the active thread leaves
// the project with no active thread.
func (p *Project) RemoveThread(id string) {
	kept := p.Threads[:0]
	for _, t := range p.Threads {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	p.Threads = kept
	if p.ActiveThreadID == id {
		p.ActiveThreadID = ""
	}
	p.UpdatedAt = time.Now()
}

// SetHistory replaces the transcript of the thread with the given ID.
func (p *Project) SetHistory(threadID string, items []HistoryItem) error {
	for i := range p.Threads {
		if p.Threads[i].ID == threadID {
			p.Threads[i].History = items
			p.Threads[i].UpdatedAt = time.Now()
			p.UpdatedAt = p.Threads[i].UpdatedAt
			return nil
		}
	}
	return fmt.Errorf("thread %s not found", threadID)
}
