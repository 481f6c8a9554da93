package wrappers

var _ Wrapper = (*Aider)(nil)

// Aider wraps the aider CLI. Auto-commits are disabled so the gateway's
// diff view stays authoritative over what changed.
type Aider struct{ Base }

func NewAider() *Aider {
	return &Aider{Base: Base{
		WrapperID:   "aider",
		WrapperName: "Aider",
		Bin:         "aider",
		Caps:        []string{CapGitAware, CapMultiFile, CapRefactoring, CapBugFixing},
		Args:        aiderArgs,
	}}
}

func aiderArgs(t Task) []string {
	args := []string{"--message", t.Prompt, "--no-auto-commits"}
	args = append(args, t.Files...)
	return args
}
