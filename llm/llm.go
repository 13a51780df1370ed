// Package llm abstracts the structured-chat requests the engine issues:
// the per-agent reply solicitation and the tie-break judgment call.
//
// The core packages depend only on the Completer interface so rounds can
// be exercised in tests without a network. The Anthropic adapter is the
// production implementation.
package llm

import (
	"context"
	"errors"

	"github.com/florean/agora/core"
)

// ErrNoCredential blocks any request from being issued when no API key
// is configured.
var ErrNoCredential = errors.New("no API credential configured")

// Message is one turn of a per-agent conversation view. Assistant turns
// carry the sanitized name of the agent that spoke, so the reply
// generator can distinguish speakers in a multi-party transcript.
type Message struct {
	Role    core.Role
	Name    string
	Content string
}

// Request is a structured-chat request.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int64

	// Deterministic asks for the lowest-randomness settings the provider
	// offers. Used by the tie-break judgment so the verdict stays close
	// to deterministic for a given tied set.
	Deterministic bool
}

// Completer issues one structured-chat request and returns the raw text
// of the response.
type Completer interface {
	Complete(ctx context.Context, req *Request) (string, error)
}
