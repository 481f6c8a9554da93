package wrappers

var _ Wrapper = (*Goose)(nil)

// Goose wraps the Block Goose CLI.
type Goose struct{ Base }

func NewGoose() *Goose {
	return &Goose{Base: Base{
		WrapperID:   "goose",
		WrapperName: "Goose",
		Bin:         "goose",
		Caps:        []string{CapCodeGeneration, CapTesting, CapBugFixing},
		Args:        gooseArgs,
	}}
}

func gooseArgs(t Task) []string {
	return []string{"run", "-t", t.Prompt}
}
