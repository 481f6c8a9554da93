package wrappers

var _ Wrapper = (*Codex)(nil)

// Codex wraps the OpenAI Codex CLI in full-auto exec mode.
type Codex struct{ Base }

func NewCodex() *Codex {
	return &Codex{Base: Base{
		WrapperID:   "codex",
		WrapperName: "Codex CLI",
		Bin:         "codex",
		Caps:        []string{CapCodeGeneration, CapRefactoring, CapTesting, CapBugFixing},
		Args:        codexArgs,
	}}
}

func codexArgs(t Task) []string {
	args := []string{"exec", "--full-auto", t.Prompt}
	if t.WorkDir != "" {
		args = append(args, "--cd", t.WorkDir)
	}
	return args
}
