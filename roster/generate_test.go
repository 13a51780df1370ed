package roster_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florean/agora/llm"
	"github.com/florean/agora/roster"
)

// generationScript answers the character-list request with a fixed list
// and each profile request with a per-character profile.
type generationScript struct {
	mu           sync.Mutex
	characters   string
	profiles     map[string]string // character name -> raw profile reply
	listRequests int
}

func (s *generationScript) Complete(ctx context.Context, req *llm.Request) (string, error) {
	if strings.Contains(req.System, "identifying key characters") {
		s.mu.Lock()
		s.listRequests++
		s.mu.Unlock()
		return s.characters, nil
	}
	for name, profile := range s.profiles {
		if strings.Contains(req.System, "Character: "+name) {
			return profile, nil
		}
	}
	return "", fmt.Errorf("no script for profile request: %q", req.System)
}

func profileReply(name string) string {
	return fmt.Sprintf(`{
  "name": %q,
  "systemPrompt": {
    "Context": "As %s, I live in the harbor town.",
    "Personality": "As %s, I am blunt and curious.",
    "Would": "Asked about the weather, I talk about the tide.",
    "Family": "My sister runs the lighthouse.",
    "Relationships": "The harbormaster owes me a favor."
  }
}`, name, name, name)
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	script := &generationScript{
		characters: `Here are the characters:
[
  {"name": "Mara", "role": "harbor pilot"},
  {"name": "Ezra", "role": "shipwright"}
]`,
		profiles: map[string]string{
			"Mara": profileReply("Mara"),
			"Ezra": profileReply("Ezra"),
		},
	}
	gen := roster.NewGenerator(script)

	agents, err := gen.Generate(context.Background(), "a small harbor town")
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, 1, script.listRequests)

	// Character-list order is preserved despite concurrent profiles.
	assert.Equal(t, "Mara", agents[0].Name)
	assert.Equal(t, "Ezra", agents[1].Name)
	assert.NotEqual(t, agents[0].ID, agents[1].ID)

	prompt := agents[0].SystemPrompt
	assert.True(t, strings.HasPrefix(prompt, "// CONTEXT\n"), "sections start with header comments:\n%s", prompt)
	assert.Contains(t, prompt, "// PERSONALITY\nAs Mara, I am blunt and curious.")
	assert.Contains(t, prompt, "// RELATIONSHIPS\n")
	assert.Less(t, strings.Index(prompt, "// CONTEXT"), strings.Index(prompt, "// FAMILY"), "sections keep template order")
	assert.Empty(t, agents[0].Memories)
	assert.NoError(t, agents[0].Validate())
}

func TestGenerate_MissingAttributeFails(t *testing.T) {
	t.Parallel()

	script := &generationScript{
		characters: `[{"name": "Mara", "role": "harbor pilot"}]`,
		profiles: map[string]string{
			"Mara": `{"name": "Mara", "systemPrompt": {"Context": "As Mara, I live here."}}`,
		},
	}
	gen := roster.NewGenerator(script)

	_, err := gen.Generate(context.Background(), "a small harbor town")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mara")
	assert.Contains(t, err.Error(), "Personality")
}

func TestGenerate_MalformedCharacterList(t *testing.T) {
	t.Parallel()

	gen := roster.NewGenerator(&generationScript{characters: "no list here"})
	_, err := gen.Generate(context.Background(), "a small harbor town")
	assert.ErrorContains(t, err, "identify characters")

	gen = roster.NewGenerator(&generationScript{characters: "[]"})
	_, err = gen.Generate(context.Background(), "a small harbor town")
	assert.ErrorContains(t, err, "no characters")

	gen = roster.NewGenerator(&generationScript{characters: `[{"role": "nameless"}]`})
	_, err = gen.Generate(context.Background(), "a small harbor town")
	assert.ErrorContains(t, err, "no name")
}

func TestGenerate_BlankContext(t *testing.T) {
	t.Parallel()

	gen := roster.NewGenerator(&generationScript{})
	_, err := gen.Generate(context.Background(), "  ")
	assert.Error(t, err)
}

func TestGenerate_CustomAttributes(t *testing.T) {
	t.Parallel()

	script := &generationScript{
		characters: `[{"name": "Mara", "role": "harbor pilot"}]`,
		profiles: map[string]string{
			"Mara": `{"name": "Mara", "systemPrompt": {"Voice": "As Mara, I speak plainly."}}`,
		},
	}
	gen := roster.NewGenerator(script, roster.WithAttributes([]roster.TemplateAttribute{
		{Name: "Voice", Description: "How they speak"},
	}))

	agents, err := gen.Generate(context.Background(), "a small harbor town")
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "// VOICE\nAs Mara, I speak plainly.", agents[0].SystemPrompt)
}

func TestMarshalDefinitions_RoundTrip(t *testing.T) {
	t.Parallel()

	script := &generationScript{
		characters: `[{"name": "Mara", "role": "harbor pilot"}]`,
		profiles:   map[string]string{"Mara": profileReply("Mara")},
	}
	agents, err := roster.NewGenerator(script).Generate(context.Background(), "a small harbor town")
	require.NoError(t, err)

	data, err := roster.MarshalDefinitions(agents)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := roster.LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, agents[0].Name, loaded[0].Name)
	assert.Equal(t, agents[0].SystemPrompt, loaded[0].SystemPrompt)
}
