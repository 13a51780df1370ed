// Package arbiter selects the single canonical contribution for a round:
// highest declared priority wins, ties escalate to a judgment call, and
// every judgment failure falls back deterministically to the
// earliest-arriving tied candidate.
package arbiter

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/florean/agora/core"
	"github.com/florean/agora/llm"
)

// Arbiter picks winners. Selection is final once decided; re-running
// over the same candidate list with no ties is fully deterministic.
type Arbiter struct {
	judge llm.Completer
	cache *ristretto.Cache
}

// New creates an arbiter. The judge completer is consulted only when two
// or more candidates tie at the top priority. Verdicts are cached per
// tied set: the judge runs with low-randomness settings, so a repeated
// set reuses the prior verdict instead of a second call.
func New(judge llm.Completer) (*Arbiter, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("verdict cache: %w", err)
	}
	return &Arbiter{judge: judge, cache: cache}, nil
}

// SelectWinner returns the winning candidate, or nil when the pool is
// empty. It never fails a round outright: a judgment error or an
// unmatched verdict resolves to the earliest-arriving tied candidate.
func (a *Arbiter) SelectWinner(ctx context.Context, candidates []core.CandidateReply) *core.CandidateReply {
	if len(candidates) == 0 {
		return nil
	}

	maxPriority := candidates[0].Priority
	for _, c := range candidates[1:] {
		if c.Priority > maxPriority {
			maxPriority = c.Priority
		}
	}

	// Tied subset, preserving arrival order.
	tied := make([]core.CandidateReply, 0, len(candidates))
	for _, c := range candidates {
		if c.Priority == maxPriority {
			tied = append(tied, c)
		}
	}

	if len(tied) == 1 {
		winner := tied[0]
		log.Printf("[ARBITER] %s won with priority %d", winner.AgentName, winner.Priority)
		return &winner
	}

	winner := a.breakTie(ctx, tied)
	log.Printf("[ARBITER] %s won the %d-way tie at priority %d", winner.AgentName, len(tied), winner.Priority)
	return winner
}

// breakTie resolves a multi-way tie via the judge, falling back to the
// earliest-arriving candidate.
func (a *Arbiter) breakTie(ctx context.Context, tied []core.CandidateReply) *core.CandidateReply {
	key := verdictKey(tied)

	if cached, ok := a.cache.Get(key); ok {
		if name, ok := cached.(string); ok {
			if winner := matchByName(tied, name); winner != nil {
				log.Printf("[ARBITER] Reusing cached verdict %q", name)
				return winner
			}
		}
	}

	name, err := a.consultJudge(ctx, tied)
	if err != nil {
		log.Printf("[ARBITER] Judgment failed, falling back to earliest arrival: %v", err)
		return earliest(tied)
	}

	winner := matchByName(tied, name)
	if winner == nil {
		log.Printf("[ARBITER] Verdict %q matches no tied candidate, falling back to earliest arrival", name)
		return earliest(tied)
	}

	a.cache.Set(key, name, int64(len(key)))
	a.cache.Wait()
	return winner
}

// consultJudge issues the single tie-break judgment request: the tied
// candidates' names and proposed speech in ascending arrival order,
// answered with exactly one agent name.
func (a *Arbiter) consultJudge(ctx context.Context, tied []core.CandidateReply) (string, error) {
	var b strings.Builder
	for _, c := range tied {
		fmt.Fprintf(&b, "%s: %s\n\n", c.AgentName, c.Speech)
	}
	b.WriteString("Which agent's contribution should be spoken? Answer with exactly one agent name from the list above and nothing else.")

	raw, err := a.judge.Complete(ctx, &llm.Request{
		System:        judgeInstruction,
		Messages:      []llm.Message{{Role: core.RoleUser, Content: b.String()}},
		Deterministic: true,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// matchByName finds the tied candidate whose agent name equals the
// verdict. The match is case-sensitive.
func matchByName(tied []core.CandidateReply, name string) *core.CandidateReply {
	for _, c := range tied {
		if c.AgentName == name {
			winner := c
			return &winner
		}
	}
	return nil
}

// earliest returns the tied candidate with the earliest arrival,
// preferring slice order on equal timestamps. This is the stable
// fallback; it never fails.
func earliest(tied []core.CandidateReply) *core.CandidateReply {
	winner := tied[0]
	for _, c := range tied[1:] {
		if c.Timestamp.Before(winner.Timestamp) {
			winner = c
		}
	}
	return &winner
}

// verdictKey identifies a tied set for caching: names and speeches in
// arrival order.
func verdictKey(tied []core.CandidateReply) string {
	var b strings.Builder
	for _, c := range tied {
		b.WriteString(c.AgentName)
		b.WriteByte(0x1f)
		b.WriteString(c.Speech)
		b.WriteByte(0x1e)
	}
	return b.String()
}

const judgeInstruction = `You are the moderator of a panel discussion. Several panelists proposed a contribution of equal urgency and only one may speak. Pick the contribution with the most relevance, insight and actionable value for the conversation.`
