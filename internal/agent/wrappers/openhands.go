package wrappers

var _ Wrapper = (*OpenHands)(nil)

// OpenHands wraps the OpenHands CLI in non-interactive mode.
type OpenHands struct{ Base }

func NewOpenHands() *OpenHands {
	return &OpenHands{Base: Base{
		WrapperID:   "openhands",
		WrapperName: "OpenHands",
		Bin:         "openhands",
		Caps:        []string{CapMultiFile, CapBugFixing, CapGitAware, CapTesting},
		Args:        openhandsArgs,
	}}
}

func openhandsArgs(t Task) []string {
	return []string{"--non-interactive", t.Prompt}
}
