package registry

import (
	"fmt"
	"strings"

	"github.com/arosstale/pi-builder-sub000/internal/agent/wrappers"
)

// RegisterCustomWrapper builds a wrapper from a user-provided command
// template and registers it. The command string is split into binary plus
// fixed arguments; a {{prompt}} placeholder marks where the task prompt is
// substituted, otherwise the prompt is appended as the last argument.
func (r *Registry) RegisterCustomWrapper(id, name, command string, capabilities []string) error {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return fmt.Errorf("command is empty")
	}
	if name == "" {
		name = id
	}

	binary := parts[0]
	fixed := parts[1:]

	w := &wrappers.Base{
		WrapperID:   id,
		WrapperName: name,
		Bin:         binary,
		Caps:        capabilities,
		Args: func(task wrappers.Task) []string {
			args := make([]string, 0, len(fixed)+1)
			placed := false
			for _, a := range fixed {
				if a == "{{prompt}}" {
					args = append(args, task.Prompt)
					placed = true
					continue
				}
				args = append(args, a)
			}
			if !placed {
				args = append(args, task.Prompt)
			}
			return args
		},
	}
	return r.Register(w)
}
