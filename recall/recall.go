// Package recall provides optional semantic retrieval over agent memory
// fragments.
//
// An agent's memories are a plain append-only list; for small lists the
// collector renders all of them into the persona prompt. When a roster
// has accumulated more fragments than fit comfortably, a Retriever can
// narrow the digest to the fragments most relevant to the latest user
// message.
//
// Architecture:
//   - Retriever: indexes fragments and answers relevance queries
//   - Embedder: text-to-vector conversion behind the Retriever
//   - recall/chromem: embedded vector store adapter
//   - recall/embedder/mock: deterministic embedder for tests
package recall

import (
	"context"

	"github.com/florean/agora/core"
)

// Retriever indexes memory fragments per agent and retrieves the ones
// most relevant to a query. Fragment IDs namespace is per agent; the
// same fragment is never shared between agents.
type Retriever interface {
	// Index stores one fragment for the agent. Called write-through by
	// the memory writer, so a later round in the same session can
	// retrieve the new fragment.
	Index(ctx context.Context, agentID string, frag core.MemoryFragment) error

	// Relevant returns up to limit fragments for the agent, most
	// relevant to the query first.
	Relevant(ctx context.Context, agentID, query string, limit int) ([]core.MemoryFragment, error)

	// Forget drops every fragment indexed for the agent. Mirrors the
	// roster's bulk memory clear.
	Forget(ctx context.Context, agentID string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// The engine never interacts with Embedder directly; it is an
// implementation detail of the Retriever.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
