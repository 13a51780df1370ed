package engine_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/florean/agora/arbiter"
	"github.com/florean/agora/collector"
	"github.com/florean/agora/core"
	"github.com/florean/agora/engine"
	"github.com/florean/agora/events"
	"github.com/florean/agora/history"
	"github.com/florean/agora/llm"
	"github.com/florean/agora/roster"
)

// scriptedReplier answers each agent's request with a canned raw reply,
// matched by a substring of the agent's system prompt.
type scriptedReplier struct {
	replies map[string]string
}

func (s *scriptedReplier) Complete(ctx context.Context, req *llm.Request) (string, error) {
	for key, resp := range s.replies {
		if strings.Contains(req.System, key) {
			return resp, nil
		}
	}
	return "", fmt.Errorf("no script for prompt %q", req.System)
}

// scriptedJudge answers tie-break requests with a fixed agent name.
type scriptedJudge struct {
	mu      sync.Mutex
	calls   int
	verdict string
}

func (j *scriptedJudge) Complete(ctx context.Context, req *llm.Request) (string, error) {
	j.mu.Lock()
	j.calls++
	j.mu.Unlock()
	return j.verdict, nil
}

func newFixture(t *testing.T, replies map[string]string, verdict string, agents []core.Agent, memoryEnabled bool) (*engine.Engine, *roster.Roster, *events.Recorder, *scriptedJudge) {
	t.Helper()

	replier := &scriptedReplier{replies: replies}
	judge := &scriptedJudge{verdict: verdict}

	c := collector.New(replier, collector.Config{MemoryEnabled: memoryEnabled})
	a, err := arbiter.New(judge)
	if err != nil {
		t.Fatalf("Failed to create arbiter: %v", err)
	}
	r := roster.New(agents, memoryEnabled)
	recorder := &events.Recorder{}
	e := engine.New(c, a, r, history.NewLedger(10), engine.WithEvents(recorder))
	return e, r, recorder, judge
}

func TestSendMessage_HighestPriorityWins(t *testing.T) {
	agents := []core.Agent{
		core.NewAgent("Optimist", "You are the Optimist."),
		core.NewAgent("Realist", "You are the Realist."),
		core.NewAgent("Cynic", "You are the Cynic."),
	}
	replies := map[string]string{
		"Optimist": `{"thinking": "hope", "priority": 40, "speech": "It will work."}`,
		"Realist":  `{"thinking": "data", "priority": 95, "speech": "Check the numbers."}`,
		"Cynic":    `{"thinking": "doubt", "priority": 70, "speech": "It will fail."}`,
	}
	e, _, recorder, judge := newFixture(t, replies, "", agents, false)

	round, err := e.SendMessage(context.Background(), "Should we ship?")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if round.Winner == nil || round.Winner.AgentName != "Realist" {
		t.Fatalf("Expected Realist to win, got %+v", round.Winner)
	}
	if len(round.Candidates) != 3 {
		t.Errorf("Expected 3 candidates in the round, got %d", len(round.Candidates))
	}
	if judge.calls != 0 {
		t.Errorf("Expected no judgment without a tie, got %d calls", judge.calls)
	}

	items := e.History()
	if len(items) != 2 {
		t.Fatalf("Expected user message plus winner, got %d items", len(items))
	}
	if items[0].Role != core.RoleUser || items[0].Content != "Should we ship?" {
		t.Errorf("Unexpected first item: %+v", items[0])
	}
	last := items[1]
	if last.Role != core.RoleAssistant || last.AgentName != "Realist" || last.Priority != 95 {
		t.Errorf("Unexpected winner item: %+v", last)
	}
	if last.Label() != "Realist (Priority: 95)" {
		t.Errorf("Winner label = %q", last.Label())
	}

	won := recorder.ByType(events.TypeWinnerSelected)
	if len(won) != 1 || won[0].Agent != "Realist" || won[0].Priority != 95 {
		t.Errorf("Unexpected winner event: %+v", won)
	}
}

func TestSendMessage_TieResolvedByJudgment(t *testing.T) {
	agents := []core.Agent{
		core.NewAgent("Optimist", "You are the Optimist."),
		core.NewAgent("Realist", "You are the Realist."),
		core.NewAgent("Cynic", "You are the Cynic."),
	}
	replies := map[string]string{
		"Optimist": `{"thinking": "hope", "priority": 40, "speech": "It will work."}`,
		"Realist":  `{"thinking": "data", "priority": 95, "speech": "Check the numbers."}`,
		"Cynic":    `{"thinking": "doubt", "priority": 95, "speech": "It will fail."}`,
	}
	e, _, _, judge := newFixture(t, replies, "Cynic", agents, false)

	round, err := e.SendMessage(context.Background(), "Should we ship?")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if round.Winner == nil || round.Winner.AgentName != "Cynic" {
		t.Fatalf("Expected judge's pick Cynic, got %+v", round.Winner)
	}
	if judge.calls != 1 {
		t.Errorf("Expected exactly one judgment call, got %d", judge.calls)
	}
}

func TestSendMessage_InvalidReplyExcludedFromRound(t *testing.T) {
	agents := []core.Agent{
		core.NewAgent("Optimist", "You are the Optimist."),
		core.NewAgent("Mumbler", "You are the Mumbler."),
	}
	replies := map[string]string{
		"Optimist": `{"thinking": "hope", "priority": 40, "speech": "It will work."}`,
		"Mumbler":  "mmmh not json",
	}
	e, _, recorder, _ := newFixture(t, replies, "", agents, false)

	round, err := e.SendMessage(context.Background(), "Thoughts?")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(round.Candidates) != 1 {
		t.Fatalf("Expected only the valid candidate, got %d", len(round.Candidates))
	}
	if round.Winner == nil || round.Winner.AgentName != "Optimist" {
		t.Fatalf("Expected Optimist to win unopposed, got %+v", round.Winner)
	}

	// The failed agent still settles, marked as not contributing.
	for _, ev := range recorder.ByType(events.TypeAgentSettled) {
		want := ev.Agent == "Optimist"
		if ev.Contributed != want {
			t.Errorf("Agent %s: Contributed = %v, want %v", ev.Agent, ev.Contributed, want)
		}
	}
}

func TestNext_EmptyRoundLeavesTranscriptUntouched(t *testing.T) {
	agents := []core.Agent{core.NewAgent("Mumbler", "You are the Mumbler.")}
	replies := map[string]string{"Mumbler": "not json"}
	e, _, recorder, _ := newFixture(t, replies, "", agents, false)

	round, err := e.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if round.Winner != nil {
		t.Errorf("Expected no winner, got %+v", round.Winner)
	}
	if got := len(e.History()); got != 0 {
		t.Errorf("Empty round changed the transcript: %d items", got)
	}
	if empty := recorder.ByType(events.TypeRoundEmpty); len(empty) != 1 {
		t.Errorf("Expected one round-empty event, got %d", len(empty))
	}
}

func TestSendMessage_NoAgents(t *testing.T) {
	e, _, _, _ := newFixture(t, nil, "", nil, false)
	if _, err := e.SendMessage(context.Background(), "anyone there?"); err != engine.ErrNoAgents {
		t.Fatalf("Expected ErrNoAgents, got %v", err)
	}
	if _, err := e.Next(context.Background()); err != engine.ErrNoAgents {
		t.Fatalf("Expected ErrNoAgents from Next, got %v", err)
	}
}

func TestSendMessage_EmptyText(t *testing.T) {
	agents := []core.Agent{core.NewAgent("Optimist", "You are the Optimist.")}
	e, _, _, _ := newFixture(t, nil, "", agents, false)
	if _, err := e.SendMessage(context.Background(), "   "); err == nil {
		t.Fatal("Expected an error for a blank message")
	}
}

func TestSendMessage_WinnerMemoryWrittenBack(t *testing.T) {
	agent := core.NewAgent("Optimist", "You are the Optimist.")
	replies := map[string]string{
		"Optimist": `{"thinking": "hope", "priority": 60, "speech": "Noted.", "remember": "the user ships on Fridays"}`,
	}
	e, r, _, _ := newFixture(t, replies, "", []core.Agent{agent}, true)

	if _, err := e.SendMessage(context.Background(), "We ship on Fridays."); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	memories := r.Agents()[0].Memories
	if len(memories) != 1 || memories[0].Content != "the user ships on Fridays" {
		t.Fatalf("Expected the remember value written back, got %+v", memories)
	}
}

func TestCandidates_AuditPoolRetainsLosers(t *testing.T) {
	agents := []core.Agent{
		core.NewAgent("Optimist", "You are the Optimist."),
		core.NewAgent("Realist", "You are the Realist."),
	}
	replies := map[string]string{
		"Optimist": `{"thinking": "hope", "priority": 40, "speech": "It will work."}`,
		"Realist":  `{"thinking": "data", "priority": 95, "speech": "Check the numbers."}`,
	}
	e, _, _, _ := newFixture(t, replies, "", agents, false)

	if _, err := e.SendMessage(context.Background(), "Thoughts?"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, err := e.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	pool := e.Candidates()
	if len(pool) != 4 {
		t.Fatalf("Expected 4 retained candidates across 2 rounds, got %d", len(pool))
	}
	// Newest round first.
	if pool[0].RoundID == pool[len(pool)-1].RoundID {
		t.Error("Audit pool did not separate rounds")
	}
	names := map[string]int{}
	for _, cand := range pool {
		names[cand.AgentName]++
	}
	if names["Optimist"] != 2 || names["Realist"] != 2 {
		t.Errorf("Losing candidates missing from the pool: %v", names)
	}
}

func TestHistory_TrimmedAcrossManyRounds(t *testing.T) {
	agent := core.NewAgent("Optimist", "You are the Optimist.")
	replies := map[string]string{
		"Optimist": `{"thinking": "hope", "priority": 60, "speech": "Onward."}`,
	}
	e, _, _, _ := newFixture(t, replies, "", []core.Agent{agent}, false)

	for i := 0; i < 7; i++ {
		if _, err := e.SendMessage(context.Background(), "again"); err != nil {
			t.Fatalf("Round %d failed: %v", i, err)
		}
	}
	if got := len(e.History()); got != 10 {
		t.Errorf("Expected the transcript capped at 10, got %d", got)
	}
}
