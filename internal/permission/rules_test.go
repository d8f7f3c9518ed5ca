package permission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		in   string
		want Rule
	}{
		{"Bash(npm run *)", Rule{ToolName: "Bash", Content: "npm run *"}},
		{"Write(/tmp/**)", Rule{ToolName: "Write", Content: "/tmp/**"}},
		{"WebSearch", Rule{ToolName: "WebSearch", Content: ""}},
		{"  Bash(ls)  ", Rule{ToolName: "Bash", Content: "ls"}},
		{"Bash()", Rule{ToolName: "Bash", Content: ""}},
		{"Bash(echo (nested))", Rule{ToolName: "Bash", Content: "echo (nested)"}},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, ParseRule(tt.in), "input %q", tt.in)
	}
}

func TestRuleString(t *testing.T) {
	require.Equal(t, "Bash(npm run *)", Rule{ToolName: "Bash", Content: "npm run *"}.String())
	require.Equal(t, "WebSearch", Rule{ToolName: "WebSearch"}.String())
}

func TestRuleMatches(t *testing.T) {
	t.Run("bash matches against command", func(t *testing.T) {
		rule := ParseRule("Bash(npm run *)")

		require.True(t, rule.Matches("Bash", map[string]any{"command": "npm run build"}))
		require.False(t, rule.Matches("Bash", map[string]any{"command": "rm -rf /"}))
		require.False(t, rule.Matches("Write", map[string]any{"command": "npm run build"}))
	})

	t.Run("write and edit match against file_path", func(t *testing.T) {
		rule := ParseRule("Write(/tmp/**)")

		require.True(t, rule.Matches("Write", map[string]any{"file_path": "/tmp/scratch/out.txt"}))
		require.False(t, rule.Matches("Write", map[string]any{"file_path": "/etc/passwd"}))
	})

	t.Run("bare tool name matches any input", func(t *testing.T) {
		rule := ParseRule("WebSearch")

		require.True(t, rule.Matches("WebSearch", map[string]any{"query": "anything"}))
		require.True(t, rule.Matches("WebSearch", nil))
	})

	t.Run("non-glob content falls back to substring", func(t *testing.T) {
		rule := ParseRule("Bash(git push)")

		require.True(t, rule.Matches("Bash", map[string]any{"command": "git push origin main"}))
		require.True(t, rule.Matches("Bash", map[string]any{"command": "GIT PUSH"}))
		require.False(t, rule.Matches("Bash", map[string]any{"command": "git pull"}))
	})

	t.Run("unknown tool matches any string field", func(t *testing.T) {
		rule := ParseRule("CustomTool(target)")

		require.True(t, rule.Matches("CustomTool", map[string]any{"arg": "the target value"}))
		require.False(t, rule.Matches("CustomTool", map[string]any{"arg": "unrelated"}))
	})
}

func TestNewRuleCallback(t *testing.T) {
	ctx := context.Background()

	callback := NewRuleCallback(
		[]string{"Bash(npm run *)", "Read"},
		[]string{"Bash(npm run danger*)"},
	)

	t.Run("allow rule matches", func(t *testing.T) {
		result, err := callback(ctx, "Bash", map[string]any{"command": "npm run build"}, nil)
		require.NoError(t, err)
		require.Equal(t, "allow", result.GetBehavior())
	})

	t.Run("deny wins over allow", func(t *testing.T) {
		result, err := callback(ctx, "Bash", map[string]any{"command": "npm run dangerous"}, nil)
		require.NoError(t, err)

		deny, ok := result.(*ResultDeny)
		require.True(t, ok)
		require.Contains(t, deny.Message, "denied by rule")
	})

	t.Run("unmatched invocation is denied", func(t *testing.T) {
		result, err := callback(ctx, "Write", map[string]any{"file_path": "/tmp/x"}, nil)
		require.NoError(t, err)

		deny, ok := result.(*ResultDeny)
		require.True(t, ok)
		require.Contains(t, deny.Message, "no allow rule matches Write")
	})

	t.Run("bare tool allow rule", func(t *testing.T) {
		result, err := callback(ctx, "Read", map[string]any{"file_path": "/etc/hosts"}, nil)
		require.NoError(t, err)
		require.Equal(t, "allow", result.GetBehavior())
	})
}
