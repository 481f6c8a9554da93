package wrappers

var _ Wrapper = (*OpenCode)(nil)

// OpenCode wraps the OpenCode CLI in single-shot run mode.
type OpenCode struct{ Base }

func NewOpenCode() *OpenCode {
	return &OpenCode{Base: Base{
		WrapperID:   "opencode",
		WrapperName: "OpenCode",
		Bin:         "opencode",
		Caps:        []string{CapCodeGeneration, CapBugFixing, CapRefactoring},
		Args:        opencodeArgs,
	}}
}

func opencodeArgs(t Task) []string {
	return []string{"run", t.Prompt}
}
