package wrappers

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/arosstale/pi-builder-sub000/internal/common/constants"
)

// VersionFunc probes an agent binary and returns its version string.
// A nil error with non-empty output means the agent is healthy.
type VersionFunc func(ctx context.Context) (string, error)

// defaultVersion runs `<binary> --version` with a short timeout and returns
// the first line of stdout trimmed.
func defaultVersion(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.VersionProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "--version")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("version probe failed for %s: %w", binary, err)
	}

	line := firstLine(string(out))
	if line == "" {
		return "", fmt.Errorf("empty version output from %s", binary)
	}
	return line, nil
}

// SpawnKillVersion probes binaries that print their version and then hang
// instead of exiting: spawn, collect stdout, kill after a fixed delay, and
// resolve with the first non-empty buffered line.
func SpawnKillVersion(binary string, args ...string) VersionFunc {
	return func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, constants.HangingProbeKillAfter)
		defer cancel()

		cmd := exec.CommandContext(ctx, binary, args...)
		var stdout bytes.Buffer
		cmd.Stdout = &stdout

		if err := cmd.Start(); err != nil {
			return "", fmt.Errorf("version probe failed for %s: %w", binary, err)
		}
		// Exit status is irrelevant; the process is usually killed here.
		_ = cmd.Wait()

		line := firstLine(stdout.String())
		if line == "" {
			return "", fmt.Errorf("empty version output from %s", binary)
		}
		return line, nil
	}
}

// firstLine returns the first non-empty trimmed line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
