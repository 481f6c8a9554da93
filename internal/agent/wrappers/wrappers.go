// Package wrappers defines the Wrapper interface and supporting types.
// Each external coding agent (Claude, Aider, Codex, etc.) implements this
// interface in its own file, consolidating identity, argv construction,
// execution, and version probing in one place.
package wrappers

import (
	"context"
	"time"

	"github.com/arosstale/pi-builder-sub000/internal/common/constants"
)

// Status classifies the outcome of an agent execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Capability tags advertised by wrappers and used to bias selection.
const (
	CapCodeGeneration = "code-generation"
	CapBugFixing      = "bug-fixing"
	CapRefactoring    = "refactoring"
	CapTesting        = "testing"
	CapExplanation    = "explanation"
	CapGitAware       = "git-aware"
	CapMultiFile      = "multi-file"
)

// Task describes one unit of work handed to an agent.
type Task struct {
	Prompt     string            `json:"prompt"`
	WorkDir    string            `json:"workDir,omitempty"`
	Files      []string          `json:"files,omitempty"`
	Capability string            `json:"capability,omitempty"`
	TimeoutMs  int               `json:"timeoutMs,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// Timeout returns the task timeout as a duration, defaulting when unset.
func (t Task) Timeout() time.Duration {
	if t.TimeoutMs <= 0 {
		return constants.DefaultTaskTimeout
	}
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// Result is the outcome of one agent execution. Failures are reported
// in-band through Status rather than as errors.
type Result struct {
	AgentID    string `json:"agentId"`
	Status     Status `json:"status"`
	Output     string `json:"output,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
}

// OK reports whether the execution succeeded.
func (r *Result) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Wrapper is the core interface for all agent adapters.
type Wrapper interface {
	// --- Identity ---
	ID() string
	Name() string
	Binary() string
	Capabilities() []string

	// --- Execution ---
	// BuildArgs is a pure function of the task; it never inspects the host.
	BuildArgs(task Task) []string
	// Execute runs the agent to completion. Spawn failures, non-zero exits,
	// and timeouts all come back as a Result, never as a panic or error.
	Execute(ctx context.Context, task Task) *Result
	// ExecuteStream runs the agent and delivers stdout incrementally. The
	// returned error covers spawn failure only; everything after a
	// successful start is reported through the stream's final Result.
	ExecuteStream(ctx context.Context, task Task) (*Stream, error)

	// --- Health ---
	// Version probes the binary and returns a short version string.
	Version(ctx context.Context) (string, error)
	// Healthy reports whether the version probe succeeds.
	Healthy(ctx context.Context) bool
}

// HasCapability reports whether the wrapper advertises the given tag.
func HasCapability(w Wrapper, capability string) bool {
	for _, c := range w.Capabilities() {
		if c == capability {
			return true
		}
	}
	return false
}
