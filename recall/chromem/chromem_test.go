package chromem_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/florean/agora/core"
	"github.com/florean/agora/recall/chromem"
	"github.com/florean/agora/recall/embedder/mock"
)

func newRetriever(t *testing.T) *chromem.Retriever {
	t.Helper()
	r, err := chromem.New(mock.New())
	if err != nil {
		t.Fatalf("Failed to create retriever: %v", err)
	}
	return r
}

func TestNew_RequiresEmbedder(t *testing.T) {
	if _, err := chromem.New(nil); err == nil {
		t.Fatal("Expected an error for a nil embedder")
	}
}

func TestIndexAndRelevant(t *testing.T) {
	r := newRetriever(t)
	ctx := context.Background()

	facts := []string{
		"the user prefers short answers",
		"the user ships on Fridays",
		"the user studies Roman history",
	}
	for _, content := range facts {
		if err := r.Index(ctx, "agent-1", core.NewMemoryFragment(content)); err != nil {
			t.Fatalf("Index failed: %v", err)
		}
	}

	// The mock embedder hashes text, so the identical query embeds
	// identically and must rank first.
	got, err := r.Relevant(ctx, "agent-1", "the user ships on Fridays", 2)
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 fragments, got %d", len(got))
	}
	if got[0].Content != "the user ships on Fridays" {
		t.Errorf("Top fragment = %q, want the exact match", got[0].Content)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("Fragment creation time not restored from metadata")
	}
}

func TestRelevant_LimitLargerThanCollection(t *testing.T) {
	r := newRetriever(t)
	ctx := context.Background()

	if err := r.Index(ctx, "agent-1", core.NewMemoryFragment("only fact")); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	got, err := r.Relevant(ctx, "agent-1", "anything", 5)
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected the limit to shrink to the collection size, got %d", len(got))
	}
}

func TestRelevant_EmptyCollection(t *testing.T) {
	r := newRetriever(t)

	got, err := r.Relevant(context.Background(), "agent-1", "anything", 3)
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no fragments from an empty collection, got %d", len(got))
	}
}

func TestAgentIsolation(t *testing.T) {
	r := newRetriever(t)
	ctx := context.Background()

	if err := r.Index(ctx, "agent-1", core.NewMemoryFragment("agent one's secret")); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	got, err := r.Relevant(ctx, "agent-2", "agent one's secret", 3)
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Fragments leaked across agents: %+v", got)
	}
}

func TestForget(t *testing.T) {
	r := newRetriever(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := r.Index(ctx, "agent-1", core.NewMemoryFragment(fmt.Sprintf("fact %d", i))); err != nil {
			t.Fatalf("Index failed: %v", err)
		}
	}

	if err := r.Forget(ctx, "agent-1"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}

	got, err := r.Relevant(ctx, "agent-1", "fact 0", 3)
	if err != nil {
		t.Fatalf("Relevant after Forget failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Fragments survived Forget: %+v", got)
	}

	// Forgetting an agent that was never indexed is a no-op.
	if err := r.Forget(ctx, "agent-unknown"); err != nil {
		t.Errorf("Forget for unknown agent: %v", err)
	}
}

func TestMockEmbedderIsDeterministic(t *testing.T) {
	e := mock.New()
	ctx := context.Background()

	a, err := e.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := e.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(a) != e.Dimensions() {
		t.Fatalf("Embedding size = %d, want %d", len(a), e.Dimensions())
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Embeddings differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}
