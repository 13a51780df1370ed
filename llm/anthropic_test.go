package llm

import (
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florean/agora/core"
)

func TestNewAnthropic_RequiresAPIKey(t *testing.T) {
	for _, key := range []string{"", "   "} {
		if _, err := NewAnthropic(key, ""); !errors.Is(err, ErrNoCredential) {
			t.Errorf("NewAnthropic(%q) error = %v, want ErrNoCredential", key, err)
		}
	}
}

func turnText(t *testing.T, p anthropic.MessageParam) string {
	t.Helper()
	if len(p.Content) != 1 || p.Content[0].OfText == nil {
		t.Fatalf("Expected one text block, got %+v", p.Content)
	}
	return p.Content[0].OfText.Text
}

func TestBuildMessages_NamePrefixAndAlternation(t *testing.T) {
	msgs := []Message{
		{Role: core.RoleUser, Content: "Topic: shipping"},
		{Role: core.RoleAssistant, Name: "Realist", Content: "Check the numbers."},
		{Role: core.RoleUser, Content: "Go on."},
	}

	params := BuildMessages(msgs)
	if len(params) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(params))
	}
	if params[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("First turn role = %v, want user", params[0].Role)
	}
	if params[1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("Second turn role = %v, want assistant", params[1].Role)
	}
	if got := turnText(t, params[1]); got != "Realist: Check the numbers." {
		t.Errorf("Assistant turn = %q, want speaker prefix", got)
	}
}

func TestBuildMessages_MergesConsecutiveSameRole(t *testing.T) {
	msgs := []Message{
		{Role: core.RoleUser, Content: "first"},
		{Role: core.RoleAssistant, Name: "A", Content: "one"},
		{Role: core.RoleAssistant, Name: "B", Content: "two"},
		{Role: core.RoleUser, Content: "second"},
	}

	params := BuildMessages(msgs)
	if len(params) != 3 {
		t.Fatalf("Expected merged turns, got %d", len(params))
	}
	if got := turnText(t, params[1]); got != "A: one\n\nB: two" {
		t.Errorf("Merged assistant turn = %q", got)
	}
}

func TestBuildMessages_PadsLeadingAssistant(t *testing.T) {
	msgs := []Message{
		{Role: core.RoleAssistant, Name: "A", Content: "already talking"},
	}

	params := BuildMessages(msgs)
	if len(params) != 2 {
		t.Fatalf("Expected a padded leading user turn, got %d turns", len(params))
	}
	if params[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("First turn role = %v, want user", params[0].Role)
	}
	if got := turnText(t, params[0]); got != "(conversation in progress)" {
		t.Errorf("Padding turn = %q", got)
	}
}

func TestBuildMessages_Empty(t *testing.T) {
	if params := BuildMessages(nil); len(params) != 0 {
		t.Errorf("Expected no turns for empty input, got %d", len(params))
	}
}
