package wrappers

var _ Wrapper = (*SWEAgent)(nil)

// SWEAgent wraps the SWE-agent CLI, which frames work as a problem
// statement against a repository.
type SWEAgent struct{ Base }

func NewSWEAgent() *SWEAgent {
	return &SWEAgent{Base: Base{
		WrapperID:   "swe",
		WrapperName: "SWE-agent",
		Bin:         "swe-agent",
		Caps:        []string{CapBugFixing, CapTesting, CapGitAware},
		Args:        sweArgs,
	}}
}

func sweArgs(t Task) []string {
	args := []string{"run", "--problem-statement", t.Prompt}
	if t.WorkDir != "" {
		args = append(args, "--repo-path", t.WorkDir)
	}
	return args
}
