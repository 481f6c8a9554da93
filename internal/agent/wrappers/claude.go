package wrappers

var _ Wrapper = (*Claude)(nil)

// Claude wraps the Claude Code CLI in non-interactive print mode. It is
// the designated default agent and sits first in the catalog order.
type Claude struct{ Base }

func NewClaude() *Claude {
	return &Claude{Base: Base{
		WrapperID:   "claude",
		WrapperName: "Claude Code",
		Bin:         "claude",
		Caps: []string{
			CapCodeGeneration, CapBugFixing, CapRefactoring, CapTesting,
			CapExplanation, CapGitAware, CapMultiFile,
		},
		Args: claudeArgs,
	}}
}

func claudeArgs(t Task) []string {
	return []string{"--print", t.Prompt}
}
