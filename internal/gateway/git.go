package gateway

import (
	"context"
	"os/exec"
	"strings"

	"github.com/arosstale/pi-builder-sub000/internal/common/constants"
)

// gitDiff returns the working tree's diff against HEAD, or nil when the
// directory is not a git repository or git fails for any reason. The stat
// form is the cheap summary used for automatic broadcasts.
func gitDiff(ctx context.Context, workDir string, full bool) *string {
	timeout := constants.GitDiffStatTimeout
	args := []string{"diff", "HEAD", "--stat", "--no-color"}
	if full {
		timeout = constants.GitDiffFullTimeout
		args = []string{"diff", "HEAD", "--no-color"}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	probe := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	probe.Dir = workDir
	if err := probe.Run(); err != nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	diff := strings.TrimSpace(string(out))
	return &diff
}
