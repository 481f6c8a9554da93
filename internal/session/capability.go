package session

import "strings"

// capabilityRule maps trigger keywords to the capability they imply.
// Rules are evaluated in order and the first hit wins.
type capabilityRule struct {
	keywords   []string
	capability string
}

var capabilityRules = []capabilityRule{
	{[]string{"bug", "fix", "error"}, "bug-fixing"},
	{[]string{"refactor", "clean", "simplify"}, "refactoring"},
	{[]string{"test", "spec", "coverage"}, "testing"},
	{[]string{"document", "readme", "explain"}, "explanation"},
	{[]string{"git", "commit", "pr"}, "git-aware"},
	{[]string{"multi-file", "across", "project-wide"}, "multi-file"},
}

// InferCapability guesses the capability a prompt calls for from keyword
// matches, falling back to code-generation when nothing fires.
func InferCapability(prompt string) string {
	tokens := tokenize(prompt)
	for _, rule := range capabilityRules {
		for _, kw := range rule.keywords {
			for _, tok := range tokens {
				if matchKeyword(tok, kw) {
					return rule.capability
				}
			}
		}
	}
	return "code-generation"
}

// tokenize lowercases the prompt and splits it on anything that is not a
// letter, digit, or hyphen. Hyphens stay so compound keywords like
// "multi-file" survive as one token.
func tokenize(prompt string) []string {
	return strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		if r == '-' {
			return false
		}
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= '0' && r <= '9' {
			return false
		}
		return true
	})
}

// matchKeyword accepts an exact token match always, and a prefix match for
// keywords longer than two characters so "tests" hits "test" without "pr"
// swallowing words like "print".
func matchKeyword(token, keyword string) bool {
	if token == keyword {
		return true
	}
	return len(keyword) > 2 && strings.HasPrefix(token, keyword)
}
