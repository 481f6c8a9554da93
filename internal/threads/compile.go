package threads

import (
	"errors"
	"fmt"
	"strings"
)

// Compile translates a thread spec into the slash-command string sent to
// the thread's agent session. Base-class threads pass the task through
// untouched; composite threads compile to /run, /chain, or /parallel.
func Compile(spec Spec) (string, error) {
	switch spec.Type {
	case TypeBase, TypeLong, TypeZero:
		if strings.TrimSpace(spec.Task) == "" {
			return "", errors.New("task is required")
		}
		return spec.Task, nil

	case TypeDelegate:
		if spec.Agent == "" {
			return "", errors.New("agent is required for a delegated thread")
		}
		if strings.TrimSpace(spec.Task) == "" {
			return "", errors.New("task is required")
		}
		return fmt.Sprintf("/run %s %s", spec.Agent, quoteArg(spec.Task)), nil

	case TypeChain:
		steps, err := compileSteps(spec.Steps)
		if err != nil {
			return "", err
		}
		cmd := "/chain " + strings.Join(steps, " -> ")
		if spec.SkipClarify || spec.Async {
			cmd += " --no-clarify"
		}
		return cmd, nil

	case TypeParallel:
		steps, err := compileSteps(spec.Steps)
		if err != nil {
			return "", err
		}
		return "/parallel " + strings.Join(steps, " -> "), nil

	case TypeFusion:
		if len(spec.Agents) == 0 {
			return "", errors.New("agents are required for a fusion thread")
		}
		if strings.TrimSpace(spec.Task) == "" {
			return "", errors.New("task is required")
		}
		steps := make([]Step, 0, len(spec.Agents))
		for _, agent := range spec.Agents {
			steps = append(steps, Step{Agent: agent, Task: spec.Task})
		}
		compiled, err := compileSteps(steps)
		if err != nil {
			return "", err
		}
		return "/parallel " + strings.Join(compiled, " -> "), nil
	}
	return "", fmt.Errorf("unknown thread type %q", spec.Type)
}

// compileSteps renders each step as
// agent[output=f][reads=f1+f2][model=m] <quoted task>.
func compileSteps(steps []Step) ([]string, error) {
	if len(steps) == 0 {
		return nil, errors.New("at least one step is required")
	}

	out := make([]string, 0, len(steps))
	for i, step := range steps {
		if step.Agent == "" {
			return nil, fmt.Errorf("step %d: agent is required", i+1)
		}
		if strings.TrimSpace(step.Task) == "" {
			return nil, fmt.Errorf("step %d: task is required", i+1)
		}

		var b strings.Builder
		b.WriteString(step.Agent)
		if step.Output != "" {
			fmt.Fprintf(&b, "[output=%s]", step.Output)
		}
		if len(step.Reads) > 0 {
			fmt.Fprintf(&b, "[reads=%s]", strings.Join(step.Reads, "+"))
		}
		if step.Model != "" {
			fmt.Fprintf(&b, "[model=%s]", step.Model)
		}
		b.WriteString(" ")
		b.WriteString(quoteArg(step.Task))
		out = append(out, b.String())
	}
	return out, nil
}

// quoteArg wraps a string in double quotes when it contains spaces or the
// step separator, escaping inner quotes. Already-quoted strings pass
// through unchanged.
func quoteArg(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s
	}
	if !strings.Contains(s, " ") && !strings.Contains(s, "->") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
