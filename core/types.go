package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a transcript item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Priority bounds for candidate replies. Replies outside this range are
// rejected during collection.
const (
	MinPriority = 1
	MaxPriority = 100
)

// MemoryFragment is a small persistent note an agent chose to retain.
// Fragments are immutable once created; they are only ever appended
// (by the memory writer) or cleared in bulk per agent.
type MemoryFragment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMemoryFragment creates a fragment with a fresh ID and timestamp.
func NewMemoryFragment(content string) MemoryFragment {
	return MemoryFragment{
		ID:        uuid.New().String(),
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Agent is one persona on a project's roster. Agents are project-scoped:
// every thread of the same project fans out to the same roster.
type Agent struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	SystemPrompt string           `json:"system_prompt"`
	Memories     []MemoryFragment `json:"memories,omitempty"`

	// Optional attached reference document. The content is carried and
	// persisted as an opaque blob; nothing here interprets it.
	KnowledgeBase     []byte `json:"knowledge_base,omitempty"`
	KnowledgeBaseName string `json:"knowledge_base_name,omitempty"`
}

// NewAgent creates an agent with a fresh ID.
func NewAgent(name, systemPrompt string) Agent {
	return Agent{
		ID:           uuid.New().String(),
		Name:         name,
		SystemPrompt: systemPrompt,
	}
}

// Validate reports whether the agent is well-formed enough to solicit.
func (a Agent) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// HistoryItem is one entry of the canonical transcript. Exactly one
// assistant item is appended per round: the arbitration winner. The
// candidates that lost never enter the transcript.
type HistoryItem struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	AgentName string    `json:"agent_name,omitempty"`
	Reasoning string    `json:"reasoning,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserItem builds a transcript item for a user message.
func NewUserItem(content string) HistoryItem {
	return HistoryItem{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantItem renders a winning candidate as a transcript item,
// carrying the agent's name, reasoning and declared priority.
func NewAssistantItem(c CandidateReply) HistoryItem {
	return HistoryItem{
		Role:      RoleAssistant,
		Content:   c.Speech,
		AgentName: c.AgentName,
		Reasoning: c.Reasoning,
		Priority:  c.Priority,
		Timestamp: time.Now(),
	}
}

// Label returns the display label for the item's author: the user, or
// "Name (Priority: N)" for an arbitration winner.
func (h HistoryItem) Label() string {
	if h.Role == RoleUser {
		return "You"
	}
	if h.AgentName == "" {
		return string(RoleAssistant)
	}
	return fmt.Sprintf("%s (Priority: %d)", h.AgentName, h.Priority)
}

// CandidateReply is one agent's validated proposed contribution for a
// round. Candidates are ephemeral: they exist for the duration of one
// round, and only the winner is rendered into the transcript. The full
// set is retained separately for inspection.
type CandidateReply struct {
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Reasoning string    `json:"reasoning"`
	Priority  int       `json:"priority"`
	Speech    string    `json:"speech"`
	Remember  string    `json:"remember,omitempty"`
	RoundID   string    `json:"round_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate enforces the reply contract: non-empty reasoning and speech,
// priority within [MinPriority, MaxPriority].
func (c CandidateReply) Validate() error {
	if strings.TrimSpace(c.Reasoning) == "" {
		return fmt.Errorf("reasoning is required")
	}
	if strings.TrimSpace(c.Speech) == "" {
		return fmt.Errorf("speech is required")
	}
	if c.Priority < MinPriority || c.Priority > MaxPriority {
		return fmt.Errorf("priority %d out of range [%d,%d]", c.Priority, MinPriority, MaxPriority)
	}
	return nil
}

// Round is one arbitration cycle: the candidates solicited against a
// fixed history snapshot, and the winner if one was chosen. A round is
// terminal once Winner is set or every agent has failed.
type Round struct {
	ID         string           `json:"id"`
	Candidates []CandidateReply `json:"candidates"`
	Winner     *CandidateReply  `json:"winner,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
}
