package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/florean/agora/core"
	"github.com/florean/agora/llm"
)

// TemplateAttribute is one required section of a generated persona
// prompt.
type TemplateAttribute struct {
	Name        string
	Description string
}

// DefaultTemplateAttributes are the persona sections requested when no
// custom template is configured.
var DefaultTemplateAttributes = []TemplateAttribute{
	{Name: "Context", Description: "The core context surrounding the person, their fundamental system prompt"},
	{Name: "Personality", Description: "How they would instruct themselves to be, their character traits"},
	{Name: "Would", Description: "Example responses that represent how they would respond to certain questions"},
	{Name: "Family", Description: "Their immediate family and people they love deeply"},
	{Name: "Relationships", Description: "People who have a relationship with the individual but are not family"},
}

// Generator builds a full roster from a plain-language context
// description in two stages: identify the characters the context calls
// for, then write a first-person persona prompt for each.
type Generator struct {
	completer  llm.Completer
	attributes []TemplateAttribute
	maxTokens  int64
}

// GeneratorOption configures the generator.
type GeneratorOption func(*Generator)

// WithAttributes replaces the persona template sections.
func WithAttributes(attrs []TemplateAttribute) GeneratorOption {
	return func(g *Generator) {
		g.attributes = attrs
	}
}

// WithMaxTokens caps each generation request. Zero means the provider
// default.
func WithMaxTokens(n int64) GeneratorOption {
	return func(g *Generator) {
		g.maxTokens = n
	}
}

// NewGenerator creates a generator with the default persona template.
func NewGenerator(completer llm.Completer, opts ...GeneratorOption) *Generator {
	g := &Generator{
		completer:  completer,
		attributes: DefaultTemplateAttributes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// characterSummary is the stage-one output: who exists in the context.
type characterSummary struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Generate produces agents for the given context description. Profiles
// are generated concurrently, one request per character; any failed
// profile fails the whole generation.
func (g *Generator) Generate(ctx context.Context, description string) ([]core.Agent, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("context description is required")
	}

	characters, err := g.characterList(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("identify characters: %w", err)
	}
	if len(characters) == 0 {
		return nil, fmt.Errorf("no characters identified for the context")
	}
	log.Printf("[ROSTER] Identified %d characters", len(characters))

	agents := make([]core.Agent, len(characters))
	errs := make([]error, len(characters))
	var wg sync.WaitGroup
	for i, character := range characters {
		wg.Add(1)
		go func(i int, character characterSummary) {
			defer wg.Done()
			log.Printf("[ROSTER] Generating profile for %s", character.Name)
			agents[i], errs[i] = g.profile(ctx, description, character)
		}(i, character)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("profile for %s: %w", characters[i].Name, err)
		}
	}
	return agents, nil
}

const characterListInstruction = `You are an expert at identifying key characters and roles for a given context. Generate a list of essential characters that would create interesting and dynamic interactions.

Response format must be valid JSON array:
[
  {
    "name": "character name",
    "role": "brief description of their role and importance"
  },
  ...
]`

func (g *Generator) characterList(ctx context.Context, description string) ([]characterSummary, error) {
	raw, err := g.completer.Complete(ctx, &llm.Request{
		System: characterListInstruction,
		Messages: []llm.Message{{
			Role:    core.RoleUser,
			Content: "Generate a list of characters for the following context: " + description,
		}},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	payload, err := extractSpan(raw, '[', ']')
	if err != nil {
		return nil, err
	}
	var characters []characterSummary
	if err := json.Unmarshal([]byte(payload), &characters); err != nil {
		return nil, fmt.Errorf("malformed character list: %w", err)
	}
	for i, c := range characters {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("character #%d has no name", i+1)
		}
	}
	return characters, nil
}

// rawProfile is the stage-two output: the persona sections keyed by
// template attribute name.
type rawProfile struct {
	Name         string            `json:"name"`
	SystemPrompt map[string]string `json:"systemPrompt"`
}

func (g *Generator) profile(ctx context.Context, description string, character characterSummary) (core.Agent, error) {
	raw, err := g.completer.Complete(ctx, &llm.Request{
		System: g.profileInstruction(character),
		Messages: []llm.Message{{
			Role:    core.RoleUser,
			Content: g.profilePrompt(description, character),
		}},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return core.Agent{}, err
	}

	payload, err := extractSpan(raw, '{', '}')
	if err != nil {
		return core.Agent{}, err
	}
	var profile rawProfile
	if err := json.Unmarshal([]byte(payload), &profile); err != nil {
		return core.Agent{}, fmt.Errorf("malformed profile: %w", err)
	}
	if strings.TrimSpace(profile.Name) == "" {
		profile.Name = character.Name
	}

	var missing []string
	for _, attr := range g.attributes {
		if strings.TrimSpace(profile.SystemPrompt[attr.Name]) == "" {
			missing = append(missing, attr.Name)
		}
	}
	if len(missing) > 0 {
		return core.Agent{}, fmt.Errorf("missing required attributes: %s", strings.Join(missing, ", "))
	}

	// Render the sections under header comments, in template order.
	var b strings.Builder
	for i, attr := range g.attributes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "// %s\n%s", strings.ToUpper(attr.Name), profile.SystemPrompt[attr.Name])
	}
	return core.NewAgent(profile.Name, b.String()), nil
}

func (g *Generator) profileInstruction(character characterSummary) string {
	var sections strings.Builder
	var format strings.Builder
	for i, attr := range g.attributes {
		fmt.Fprintf(&sections, "- %s: %s\n", attr.Name, attr.Description)
		if i > 0 {
			format.WriteString(",\n")
		}
		fmt.Fprintf(&format, "    %q: \"As %s, I instruct you on my %s...\"", attr.Name, character.Name, strings.ToLower(attr.Name))
	}

	return fmt.Sprintf(`You are an expert at creating detailed character profiles written as first-person instructions. Generate a complete profile that reads as if the character is instructing an AI how to embody their persona.

Character: %s
Role: %s

For each attribute, write instructions as if the character is explaining how to be them. Each section must be written in first person, as if giving direct instructions.

Required sections and their purposes:
%s
Response format must be valid JSON:
{
  "name": %q,
  "systemPrompt": {
%s
  }
}`, character.Name, character.Role, sections.String(), character.Name, format.String())
}

func (g *Generator) profilePrompt(description string, character characterSummary) string {
	return fmt.Sprintf(`Write a first-person instruction set for %s in the following context: %s

Remember:
1. Write as if %s is directly instructing how to be them
2. Each section must be personal and instructive
3. Include all required attributes
4. Maintain character voice throughout
5. Focus on actionable instructions`, character.Name, description, character.Name)
}

// extractSpan returns the outermost opener..closer span of the text.
// Models often wrap JSON in prose or markdown fences.
func extractSpan(raw string, opener, closer byte) (string, error) {
	start := strings.IndexByte(raw, opener)
	end := strings.LastIndexByte(raw, closer)
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON payload in reply")
	}
	return raw[start : end+1], nil
}
