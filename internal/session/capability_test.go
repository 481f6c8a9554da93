package session

import "testing"

func TestInferCapability(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"fix the login bug", "bug-fixing"},
		{"there is an error in the parser", "bug-fixing"},
		{"fixing broken behaviour", "bug-fixing"},
		{"BUG in the tokenizer", "bug-fixing"},
		{"refactor the config loader", "refactoring"},
		{"clean up this function", "refactoring"},
		{"simplify the branching here", "refactoring"},
		{"write tests for the parser", "testing"},
		{"improve coverage of the cache", "testing"},
		{"add a spec for the encoder", "testing"},
		{"document the public API", "explanation"},
		{"update the readme", "explanation"},
		{"explain what this does", "explanation"},
		{"create a git commit", "git-aware"},
		{"open a pr for this change", "git-aware"},
		{"rename it across the project", "multi-file"},
		{"project-wide constant sweep", "multi-file"},
		{"a multi-file rename", "multi-file"},
		{"write a function that sorts a slice", "code-generation"},
		{"print hello world", "code-generation"},
		{"", "code-generation"},
	}

	for _, tc := range tests {
		if got := InferCapability(tc.prompt); got != tc.want {
			t.Errorf("InferCapability(%q) = %q, want %q", tc.prompt, got, tc.want)
		}
	}
}

// Rule order is part of the contract: a prompt hitting several rules
// resolves to the earliest one.
func TestInferCapabilityRuleOrder(t *testing.T) {
	if got := InferCapability("fix the failing test"); got != "bug-fixing" {
		t.Errorf("got %q, want bug-fixing", got)
	}
	if got := InferCapability("refactor the test helpers"); got != "refactoring" {
		t.Errorf("got %q, want refactoring", got)
	}
}

func TestMatchKeyword(t *testing.T) {
	tests := []struct {
		token, keyword string
		want           bool
	}{
		{"fix", "fix", true},
		{"fixing", "fix", true},
		{"tests", "test", true},
		{"pr", "pr", true},
		{"print", "pr", false},
		{"prs", "pr", false},
		{"bug", "test", false},
	}
	for _, tc := range tests {
		if got := matchKeyword(tc.token, tc.keyword); got != tc.want {
			t.Errorf("matchKeyword(%q, %q) = %v, want %v", tc.token, tc.keyword, got, tc.want)
		}
	}
}
