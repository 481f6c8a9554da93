package wrappers

var _ Wrapper = (*Cursor)(nil)

// Cursor wraps the Cursor background agent CLI.
type Cursor struct{ Base }

func NewCursor() *Cursor {
	return &Cursor{Base: Base{
		WrapperID:   "cursor",
		WrapperName: "Cursor Agent",
		Bin:         "cursor-agent",
		Caps:        []string{CapCodeGeneration, CapRefactoring, CapExplanation},
		Args:        cursorArgs,
	}}
}

func cursorArgs(t Task) []string {
	return []string{"tell", t.Prompt, "--bg"}
}
