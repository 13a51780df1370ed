package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/florean/agora/core"
)

// definitionsFile models an agents.yaml roster definition:
//
//	agents:
//	  - name: Historian
//	    system_prompt: |
//	      You are a historian...
//	    memories:
//	      - The user prefers short answers.
type definitionsFile struct {
	Agents []agentDefinition `yaml:"agents"`
}

type agentDefinition struct {
	Name         string   `yaml:"name"`
	SystemPrompt string   `yaml:"system_prompt"`
	Memories     []string `yaml:"memories,omitempty"`
}

// LoadDefinitions reads an agents.yaml file and returns fresh agents
// with generated IDs. Seed memories become fragments with creation
// timestamps of load time.
func LoadDefinitions(path string) ([]core.Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent definitions: %w", err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse agent definitions: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("no agents defined in %s", path)
	}

	agents := make([]core.Agent, 0, len(file.Agents))
	for i, def := range file.Agents {
		agent := core.NewAgent(def.Name, def.SystemPrompt)
		if err := agent.Validate(); err != nil {
			return nil, fmt.Errorf("agent #%d: %w", i+1, err)
		}
		for _, m := range def.Memories {
			agent.Memories = append(agent.Memories, core.NewMemoryFragment(m))
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// MarshalDefinitions renders agents as an agents.yaml definition, the
// inverse of LoadDefinitions. IDs and memory timestamps are not carried;
// loading the output yields fresh ones.
func MarshalDefinitions(agents []core.Agent) ([]byte, error) {
	var file definitionsFile
	for _, a := range agents {
		def := agentDefinition{
			Name:         a.Name,
			SystemPrompt: a.SystemPrompt,
		}
		for _, m := range a.Memories {
			def.Memories = append(def.Memories, m.Content)
		}
		file.Agents = append(file.Agents, def)
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("encode agent definitions: %w", err)
	}
	return data, nil
}
