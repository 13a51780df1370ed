package collector

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawReply is the structured reply contract every agent must honor.
type rawReply struct {
	Thinking string   `json:"thinking"`
	Priority *float64 `json:"priority"`
	Speech   string   `json:"speech"`
	Remember string   `json:"remember"`
}

// parseReply parses and validates an agent's raw output. Models often
// wrap JSON in prose or markdown fences, so parsing starts at the first
// object boundary. Anything that fails the contract rejects the whole
// reply; the agent simply contributes nothing this round.
func parseReply(raw string) (*rawReply, error) {
	payload, err := extractObject(raw)
	if err != nil {
		return nil, err
	}

	var reply rawReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		return nil, fmt.Errorf("malformed reply JSON: %w", err)
	}

	if strings.TrimSpace(reply.Thinking) == "" {
		return nil, fmt.Errorf("missing thinking field")
	}
	if strings.TrimSpace(reply.Speech) == "" {
		return nil, fmt.Errorf("missing speech field")
	}
	if reply.Priority == nil {
		return nil, fmt.Errorf("missing priority field")
	}
	if *reply.Priority < 1 || *reply.Priority > 100 {
		return nil, fmt.Errorf("priority %v out of range [1,100]", *reply.Priority)
	}
	return &reply, nil
}

// extractObject returns the outermost {...} span of the text.
func extractObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object in reply")
	}
	return raw[start : end+1], nil
}
