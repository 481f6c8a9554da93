package wrappers

var _ Wrapper = (*Qwen)(nil)

// Qwen wraps the Qwen Code CLI. It shares the Gemini CLI lineage,
// including the hanging --version behaviour, so it uses the same
// spawn-and-kill probe.
type Qwen struct{ Base }

func NewQwen() *Qwen {
	return &Qwen{Base: Base{
		WrapperID:   "qwen",
		WrapperName: "Qwen Code",
		Bin:         "qwen",
		Caps:        []string{CapCodeGeneration, CapExplanation},
		Args:        qwenArgs,
		Probe:       SpawnKillVersion("qwen", "--version"),
	}}
}

func qwenArgs(t Task) []string {
	args := []string{"run", "--quiet"}
	if t.WorkDir != "" {
		args = append(args, "--cwd", t.WorkDir)
	}
	return append(args, t.Prompt)
}
