// Package collector fans one conversation snapshot out to every agent on
// the roster, validates the replies, and returns the round's candidate
// pool in arrival order.
package collector

import (
	"context"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/florean/agora/core"
	"github.com/florean/agora/events"
	"github.com/florean/agora/llm"
	"github.com/florean/agora/recall"
)

// DefaultRequestTimeout bounds each per-agent request. A hung request
// fails that agent only, never the whole round.
const DefaultRequestTimeout = 30 * time.Second

// Config carries the collection settings. It is passed in explicitly so
// the collector can be exercised without any surrounding environment.
type Config struct {
	// MemoryEnabled gates the "remember" output field: the hint is only
	// added to agent prompts when set.
	MemoryEnabled bool

	// MaxTokens caps each reply. Zero means the provider default.
	MaxTokens int64

	// RequestTimeout bounds each per-agent request. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// RecallThreshold is the memory-list size above which a configured
	// Retriever narrows the digest instead of rendering every fragment.
	// Zero means 20.
	RecallThreshold int

	// RecallLimit is how many fragments a narrowed digest holds.
	// Zero means 5.
	RecallLimit int
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return c.RequestTimeout
}

func (c Config) recallThreshold() int {
	if c.RecallThreshold <= 0 {
		return 20
	}
	return c.RecallThreshold
}

func (c Config) recallLimit() int {
	if c.RecallLimit <= 0 {
		return 5
	}
	return c.RecallLimit
}

// Collector solicits candidate replies from agents.
type Collector struct {
	completer llm.Completer
	cfg       Config
	retriever recall.Retriever
	sink      events.Sink
}

// Option configures the collector.
type Option func(*Collector)

// WithRetriever narrows large memory digests via semantic recall.
func WithRetriever(r recall.Retriever) Option {
	return func(c *Collector) {
		c.retriever = r
	}
}

// WithEvents publishes thinking-status events to the sink.
func WithEvents(s events.Sink) Option {
	return func(c *Collector) {
		c.sink = s
	}
}

// New creates a collector.
func New(completer llm.Completer, cfg Config, opts ...Option) *Collector {
	c := &Collector{
		completer: completer,
		cfg:       cfg,
		sink:      events.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect issues the per-agent requests concurrently and returns every
// validated candidate, in the order the responses settled. Per-agent
// failures are logged and dropped; an all-failed round returns an empty
// slice, which the arbiter treats as "no winner this round".
func (c *Collector) Collect(ctx context.Context, agents []core.Agent, history []core.HistoryItem, roundID string) []core.CandidateReply {
	if len(agents) == 0 {
		return nil
	}

	for _, agent := range agents {
		c.sink.Publish(events.Event{
			Type:      events.TypeAgentThinking,
			RoundID:   roundID,
			Agent:     agent.Name,
			Timestamp: time.Now(),
		})
	}

	// All-complete join: every request settles before the pool is
	// returned. The channel preserves settle order, which downstream
	// becomes the deterministic tie-break fallback order.
	results := make(chan core.CandidateReply, len(agents))
	var wg sync.WaitGroup
	for _, agent := range agents {
		wg.Add(1)
		go func(agent core.Agent) {
			defer wg.Done()

			candidate, err := c.solicit(ctx, agent, history, roundID)
			contributed := err == nil
			if err != nil {
				log.Printf("[COLLECTOR] Dropping reply from %s: %v", agent.Name, err)
			} else {
				results <- *candidate
			}

			// Settles the agent's "thinking" status immediately,
			// independent of the other agents.
			c.sink.Publish(events.Event{
				Type:        events.TypeAgentSettled,
				RoundID:     roundID,
				Agent:       agent.Name,
				Contributed: contributed,
				Timestamp:   time.Now(),
			})
		}(agent)
	}
	wg.Wait()
	close(results)

	candidates := make([]core.CandidateReply, 0, len(agents))
	for candidate := range results {
		candidates = append(candidates, candidate)
	}

	log.Printf("[COLLECTOR] Round %s: %d of %d agents contributed", roundID, len(candidates), len(agents))
	return candidates
}

// solicit runs one agent's request: build its context, call the reply
// generator, parse and validate the structured reply.
func (c *Collector) solicit(ctx context.Context, agent core.Agent, history []core.HistoryItem, roundID string) (*core.CandidateReply, error) {
	if err := agent.Validate(); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.requestTimeout())
	defer cancel()

	req := &llm.Request{
		System:    c.buildSystemPrompt(reqCtx, agent, history),
		Messages:  agentView(history, c.cfg.MemoryEnabled),
		MaxTokens: c.cfg.MaxTokens,
	}

	raw, err := c.completer.Complete(reqCtx, req)
	if err != nil {
		return nil, err
	}

	reply, err := parseReply(raw)
	if err != nil {
		return nil, err
	}

	candidate := &core.CandidateReply{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Reasoning: reply.Thinking,
		Priority:  int(*reply.Priority),
		Speech:    reply.Speech,
		RoundID:   roundID,
		Timestamp: time.Now(),
	}
	if c.cfg.MemoryEnabled {
		candidate.Remember = reply.Remember
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	return candidate, nil
}

// buildSystemPrompt assembles the agent's persona: instruction text,
// memory digest, and the remember hint when memory is enabled.
func (c *Collector) buildSystemPrompt(ctx context.Context, agent core.Agent, history []core.HistoryItem) string {
	var b strings.Builder
	b.WriteString(agent.SystemPrompt)

	if digest := c.memoryDigest(ctx, agent, history); digest != "" {
		b.WriteString("\n\nYour memories:\n")
		b.WriteString(digest)
	}
	if c.cfg.MemoryEnabled {
		b.WriteString(rememberHint)
	}
	return b.String()
}

// memoryDigest renders the agent's memory fragments as a bullet list.
// When a retriever is configured and the list is large, only the
// fragments relevant to the latest user message are rendered; retrieval
// failures fall back to the full list.
func (c *Collector) memoryDigest(ctx context.Context, agent core.Agent, history []core.HistoryItem) string {
	fragments := agent.Memories
	if len(fragments) == 0 {
		return ""
	}

	if c.retriever != nil && len(fragments) > c.cfg.recallThreshold() {
		query := latestUserMessage(history)
		relevant, err := c.retriever.Relevant(ctx, agent.ID, query, c.cfg.recallLimit())
		if err != nil {
			log.Printf("[COLLECTOR] Recall failed for %s, using full memory list: %v", agent.Name, err)
		} else if len(relevant) > 0 {
			fragments = relevant
		}
	}

	lines := make([]string, 0, len(fragments))
	for _, frag := range fragments {
		lines = append(lines, "- "+frag.Content)
	}
	return strings.Join(lines, "\n")
}

// latestUserMessage finds the most recent user item, used as the recall
// query.
func latestUserMessage(history []core.HistoryItem) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == core.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

var speakerSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeSpeaker normalizes an agent name for use as a message author
// label: every character outside [a-zA-Z0-9_-] becomes an underscore.
func SanitizeSpeaker(name string) string {
	return speakerSanitizer.ReplaceAllString(name, "_")
}

// agentView transforms the shared history into one agent's view:
// assistant items are re-labeled with the sanitized name of the agent
// that spoke them, user items pass through unchanged, and the closing
// instruction asking for a contribution is appended. The remember field
// is only advertised when memory is enabled.
func agentView(history []core.HistoryItem, memoryEnabled bool) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, item := range history {
		if item.Role == core.RoleAssistant {
			msgs = append(msgs, llm.Message{
				Role:    core.RoleAssistant,
				Name:    SanitizeSpeaker(item.AgentName),
				Content: item.Content,
			})
			continue
		}
		msgs = append(msgs, llm.Message{
			Role:    core.RoleUser,
			Content: item.Content,
		})
	}
	instruction := contributionInstruction
	if memoryEnabled {
		instruction = contributionInstructionWithMemory
	}
	msgs = append(msgs, llm.Message{
		Role:    core.RoleUser,
		Content: instruction,
	})
	return msgs
}

const rememberHint = "\n\nYou can store important information in your memory using the 'remember' field in your response. This is optional."

const contributionInstruction = `Based on the conversation history above, what would you like to contribute now?

Respond in the following JSON format:
{
  "thinking": "your internal thought process",
  "priority": <number between 1-100>,
  "speech": "what you want to say"
}

Ensure your response is valid JSON and contains all required fields.`

const contributionInstructionWithMemory = `Based on the conversation history above, what would you like to contribute now?

Respond in the following JSON format:
{
  "thinking": "your internal thought process",
  "priority": <number between 1-100>,
  "speech": "what you want to say",
  "remember": "(optional) something you want to remember for future conversations"
}

Ensure your response is valid JSON and contains all required fields.`
