package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-20250514"

	defaultMaxTokens = 1024
)

// Anthropic is the Completer backed by the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic completer. An empty API key is a
// configuration error and is reported before any network activity.
func NewAnthropic(apiKey, model string) (*Anthropic, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoCredential
	}
	if model == "" {
		model = DefaultModel
	}
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Complete issues one Messages API call and concatenates the text blocks
// of the response.
func (a *Anthropic) Complete(ctx context.Context, req *Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  BuildMessages(req.Messages),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
	}
	if req.Deterministic {
		params.Temperature = anthropic.Float(0)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// BuildMessages maps a per-agent conversation view onto API turns.
// Named assistant turns are prefixed with the speaker so agents can be
// told apart. The API requires a leading user turn and strict role
// alternation, so the transcript is padded and consecutive same-role
// turns are merged.
func BuildMessages(msgs []Message) []anthropic.MessageParam {
	type turn struct {
		role string
		text string
	}

	var turns []turn
	for _, m := range msgs {
		text := m.Content
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
			if m.Name != "" {
				text = m.Name + ": " + text
			}
		}
		if len(turns) > 0 && turns[len(turns)-1].role == role {
			turns[len(turns)-1].text += "\n\n" + text
			continue
		}
		turns = append(turns, turn{role: role, text: text})
	}

	if len(turns) > 0 && turns[0].role == "assistant" {
		turns = append([]turn{{role: "user", text: "(conversation in progress)"}}, turns...)
	}

	params := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.role == "assistant" {
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.text)))
		} else {
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(t.text)))
		}
	}
	return params
}
