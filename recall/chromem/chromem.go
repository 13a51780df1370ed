// Package chromem adapts chromem-go, a pure Go embedded vector database,
// as a recall.Retriever.
package chromem

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/florean/agora/core"
	"github.com/florean/agora/recall"
)

// Retriever stores fragment embeddings in per-agent collections for
// namespace isolation.
type Retriever struct {
	db       *chromem.DB
	embedder recall.Embedder

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

var _ recall.Retriever = (*Retriever)(nil)

// New creates a chromem-backed retriever.
func New(embedder recall.Embedder) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &Retriever{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// Index embeds and stores one fragment for the agent.
func (r *Retriever) Index(ctx context.Context, agentID string, frag core.MemoryFragment) error {
	col, err := r.getOrCreateCollection(agentID)
	if err != nil {
		return err
	}

	embedding, err := r.embedder.Embed(ctx, frag.Content)
	if err != nil {
		return fmt.Errorf("embed fragment: %w", err)
	}

	doc := chromem.Document{
		ID:        frag.ID,
		Content:   frag.Content,
		Embedding: embedding,
		Metadata: map[string]string{
			"agent_id":   agentID,
			"created_at": frag.CreatedAt.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	log.Printf("[RECALL] Indexed fragment %s for agent %s", frag.ID, agentID)
	return nil
}

// Relevant returns up to limit fragments most relevant to the query.
func (r *Retriever) Relevant(ctx context.Context, agentID, query string, limit int) ([]core.MemoryFragment, error) {
	col, err := r.getOrCreateCollection(agentID)
	if err != nil {
		return nil, err
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// chromem-go requires nResults <= collection size; retry with
	// smaller limits until the query fits.
	var results []chromem.Result
	for currentLimit := limit; currentLimit >= 1; currentLimit-- {
		results, err = col.QueryEmbedding(ctx, embedding, currentLimit, nil, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if currentLimit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	fragments := make([]core.MemoryFragment, 0, len(results))
	for _, result := range results {
		createdAt, _ := time.Parse(time.RFC3339, result.Metadata["created_at"])
		fragments = append(fragments, core.MemoryFragment{
			ID:        result.ID,
			Content:   result.Content,
			CreatedAt: createdAt,
		})
	}

	log.Printf("[RECALL] Retrieved %d of %d fragments for agent %s", len(fragments), limit, agentID)
	return fragments, nil
}

// Forget drops the agent's whole collection.
func (r *Retriever) Forget(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[agentID]; !ok {
		return nil
	}
	if err := r.db.DeleteCollection(collectionName(agentID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(r.collections, agentID)
	return nil
}

// Close releases resources. chromem-go keeps everything in memory,
// nothing to close.
func (r *Retriever) Close() error {
	return nil
}

// getOrCreateCollection returns the collection for an agent, creating it
// on first use.
func (r *Retriever) getOrCreateCollection(agentID string) (*chromem.Collection, error) {
	r.mu.RLock()
	col, exists := r.collections[agentID]
	r.mu.RUnlock()

	if exists {
		return col, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := r.collections[agentID]; exists {
		return col, nil
	}

	col, err := r.db.CreateCollection(collectionName(agentID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	r.collections[agentID] = col
	return col, nil
}

func collectionName(agentID string) string {
	return "agent_" + agentID
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
