package wrappers

var _ Wrapper = (*Amp)(nil)

// Amp wraps the Sourcegraph Amp CLI.
type Amp struct{ Base }

func NewAmp() *Amp {
	return &Amp{Base: Base{
		WrapperID:   "amp",
		WrapperName: "Amp",
		Bin:         "amp",
		Caps:        []string{CapCodeGeneration, CapMultiFile, CapRefactoring},
		Args:        ampArgs,
	}}
}

func ampArgs(t Task) []string {
	return []string{"run", "--text", t.Prompt}
}
