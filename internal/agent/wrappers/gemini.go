package wrappers

var _ Wrapper = (*Gemini)(nil)

// Gemini wraps the Google Gemini CLI. Its --version invocation prints the
// version and then hangs, so the probe spawns, waits briefly, and kills.
type Gemini struct{ Base }

func NewGemini() *Gemini {
	return &Gemini{Base: Base{
		WrapperID:   "gemini",
		WrapperName: "Gemini CLI",
		Bin:         "gemini",
		Caps:        []string{CapCodeGeneration, CapExplanation, CapBugFixing},
		Args:        geminiArgs,
		Probe:       SpawnKillVersion("gemini", "--version"),
	}}
}

func geminiArgs(t Task) []string {
	return []string{"-p", t.Prompt, "--yolo"}
}
