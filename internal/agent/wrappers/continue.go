package wrappers

var _ Wrapper = (*Continue)(nil)

// Continue wraps the Continue CLI (cn) in headless print mode.
type Continue struct{ Base }

func NewContinue() *Continue {
	return &Continue{Base: Base{
		WrapperID:   "continue",
		WrapperName: "Continue",
		Bin:         "cn",
		Caps:        []string{CapCodeGeneration, CapExplanation, CapTesting},
		Args:        continueArgs,
	}}
}

func continueArgs(t Task) []string {
	return []string{"-p", t.Prompt}
}
