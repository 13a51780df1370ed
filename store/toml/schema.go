package toml

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/florean/agora/core"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Projects []projectSchema `toml:"projects"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported projects schema version %d (current %d)", s.Version, currentSchemaVersion)
	}
	return nil
}

type projectSchema struct {
	ID             string         `toml:"id"`
	Name           string         `toml:"name"`
	Description    string         `toml:"description,omitempty"`
	CreatedAt      time.Time      `toml:"created_at"`
	UpdatedAt      time.Time      `toml:"updated_at"`
	ActiveThreadID string         `toml:"active_thread_id,omitempty"`
	Agents         []agentSchema  `toml:"agents,omitempty"`
	Threads        []threadSchema `toml:"threads,omitempty"`
}

type agentSchema struct {
	ID                string         `toml:"id"`
	Name              string         `toml:"name"`
	SystemPrompt      string         `toml:"system_prompt"`
	Memories          []memorySchema `toml:"memories,omitempty"`
	KnowledgeBase     string         `toml:"knowledge_base,omitempty"` // base64
	KnowledgeBaseName string         `toml:"knowledge_base_name,omitempty"`
}

type memorySchema struct {
	ID        string    `toml:"id"`
	Content   string    `toml:"content"`
	CreatedAt time.Time `toml:"created_at"`
}

type threadSchema struct {
	ID        string       `toml:"id"`
	Name      string       `toml:"name"`
	CreatedAt time.Time    `toml:"created_at"`
	UpdatedAt time.Time    `toml:"updated_at"`
	History   []itemSchema `toml:"history,omitempty"`
}

type itemSchema struct {
	Role      string    `toml:"role"`
	Content   string    `toml:"content"`
	AgentName string    `toml:"agent_name,omitempty"`
	Reasoning string    `toml:"reasoning,omitempty"`
	Priority  int       `toml:"priority,omitempty"`
	Timestamp time.Time `toml:"timestamp"`
}

func toSchema(p core.Project) projectSchema {
	out := projectSchema{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		ActiveThreadID: p.ActiveThreadID,
	}
	for _, a := range p.Agents {
		agent := agentSchema{
			ID:                a.ID,
			Name:              a.Name,
			SystemPrompt:      a.SystemPrompt,
			KnowledgeBaseName: a.KnowledgeBaseName,
		}
		if len(a.KnowledgeBase) > 0 {
			agent.KnowledgeBase = base64.StdEncoding.EncodeToString(a.KnowledgeBase)
		}
		for _, m := range a.Memories {
			agent.Memories = append(agent.Memories, memorySchema(m))
		}
		out.Agents = append(out.Agents, agent)
	}
	for _, t := range p.Threads {
		thread := threadSchema{
			ID:        t.ID,
			Name:      t.Name,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		}
		for _, item := range t.History {
			thread.History = append(thread.History, itemSchema{
				Role:      string(item.Role),
				Content:   item.Content,
				AgentName: item.AgentName,
				Reasoning: item.Reasoning,
				Priority:  item.Priority,
				Timestamp: item.Timestamp,
			})
		}
		out.Threads = append(out.Threads, thread)
	}
	return out
}

func fromSchema(s projectSchema) (core.Project, error) {
	p := core.Project{
		ID:             s.ID,
		Name:           s.Name,
		Description:    s.Description,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		ActiveThreadID: s.ActiveThreadID,
	}
	for _, a := range s.Agents {
		agent := core.Agent{
			ID:                a.ID,
			Name:              a.Name,
			SystemPrompt:      a.SystemPrompt,
			KnowledgeBaseName: a.KnowledgeBaseName,
		}
		if a.KnowledgeBase != "" {
			blob, err := base64.StdEncoding.DecodeString(a.KnowledgeBase)
			if err != nil {
				return core.Project{}, fmt.Errorf("agent %s: decode knowledge base: %w", a.ID, err)
			}
			agent.KnowledgeBase = blob
		}
		for _, m := range a.Memories {
			agent.Memories = append(agent.Memories, core.MemoryFragment(m))
		}
		p.Agents = append(p.Agents, agent)
	}
	for _, t := range s.Threads {
		thread := core.Thread{
			ID:        t.ID,
			Name:      t.Name,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		}
		for _, item := range t.History {
			thread.History = append(thread.History, core.HistoryItem{
				Role:      core.Role(item.Role),
				Content:   item.Content,
				AgentName: item.AgentName,
				Reasoning: item.Reasoning,
				Priority:  item.Priority,
				Timestamp: item.Timestamp,
			})
		}
		p.Threads = append(p.Threads, thread)
	}
	return p, nil
}
