package permission

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule is a single allow or deny rule for tool invocations, parsed from the
// "Tool(content)" form used in settings files. An empty Content matches every
// invocation of the tool.
type Rule struct {
	ToolName string
	Content  string
}

// ParseRule parses a rule string such as "Bash(npm run *)" or "WebSearch".
func ParseRule(s string) Rule {
	s = strings.TrimSpace(s)

	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return Rule{ToolName: s}
	}

	return Rule{
		ToolName: s[:open],
		Content:  s[open+1 : len(s)-1],
	}
}

// ParseRules parses a list of rule strings.
func ParseRules(rules []string) []Rule {
	parsed := make([]Rule, 0, len(rules))
	for _, s := range rules {
		parsed = append(parsed, ParseRule(s))
	}

	return parsed
}

// Matches reports whether the rule applies to a tool invocation.
func (r Rule) Matches(toolName string, input map[string]any) bool {
	if r.ToolName != toolName {
		return false
	}

	return matchRuleContent(r.Content, toolName, input)
}

// NewRuleCallback builds a permission callback from allow and deny rule
// strings. Deny rules are checked first and win over allow rules; an
// invocation no rule covers is denied.
func NewRuleCallback(allowRules, denyRules []string) Callback {
	allow := ParseRules(allowRules)
	deny := ParseRules(denyRules)

	return func(_ context.Context, toolName string, input map[string]any, _ *Context) (Result, error) {
		for _, rule := range deny {
			if rule.Matches(toolName, input) {
				return &ResultDeny{
					Behavior: "deny",
					Message:  fmt.Sprintf("denied by rule %s", rule.String()),
				}, nil
			}
		}

		for _, rule := range allow {
			if rule.Matches(toolName, input) {
				return &ResultAllow{Behavior: "allow"}, nil
			}
		}

		return &ResultDeny{
			Behavior: "deny",
			Message:  fmt.Sprintf("no allow rule matches %s", toolName),
		}, nil
	}
}

// String renders the rule back to its "Tool(content)" form.
func (r Rule) String() string {
	if r.Content == "" {
		return r.ToolName
	}

	return fmt.Sprintf("%s(%s)", r.ToolName, r.Content)
}

// matchRuleContent checks rule content against the invocation input using
// the tool's primary field.
func matchRuleContent(ruleContent, toolName string, input map[string]any) bool {
	if ruleContent == "" {
		return true
	}

	if input == nil {
		return false
	}

	switch toolName {
	case "Bash":
		return matchField(ruleContent, input, "command")
	case "Write", "Edit", "Read", "NotebookEdit":
		return matchField(ruleContent, input, "file_path")
	case "Glob", "Grep":
		return matchField(ruleContent, input, "pattern") || matchField(ruleContent, input, "path")
	case "WebFetch":
		return matchField(ruleContent, input, "url")
	default:
		return matchAnyStringField(ruleContent, input)
	}
}

// matchField checks one input field against the rule content pattern.
func matchField(ruleContent string, input map[string]any, fieldName string) bool {
	str, ok := input[fieldName].(string)
	if !ok {
		return false
	}

	return matchPattern(ruleContent, str)
}

// matchAnyStringField checks every string-valued input field.
func matchAnyStringField(ruleContent string, input map[string]any) bool {
	for _, val := range input {
		if str, ok := val.(string); ok && matchPattern(ruleContent, str) {
			return true
		}
	}

	return false
}

// matchPattern tries glob matching first, then falls back to
// case-insensitive substring matching.
func matchPattern(pattern, value string) bool {
	if isGlobPattern(pattern) {
		if matched, err := doublestar.Match(pattern, value); err == nil && matched {
			return true
		}
	}

	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

// isGlobPattern reports whether the pattern contains glob metacharacters.
func isGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
