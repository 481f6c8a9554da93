// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations.
const (
	// DefaultTaskTimeout is the default deadline for a single agent task.
	DefaultTaskTimeout = 120 * time.Second

	// VersionProbeTimeout is the deadline for a `<binary> --version` probe.
	VersionProbeTimeout = 5 * time.Second

	// HangingProbeKillAfter is the spawn-to-kill window for agents that
	// print their version and then never exit.
	HangingProbeKillAfter = 2 * time.Second

	// HealthCacheTTL is how long a cached health probe result is served
	// before a fresh probe is required.
	HealthCacheTTL = 30 * time.Second

	// GitDiffStatTimeout bounds `git diff --stat` used for the summary view.
	GitDiffStatTimeout = 5 * time.Second

	// GitDiffFullTimeout bounds the full `git diff` output.
	GitDiffFullTimeout = 10 * time.Second

	// PtyExitRetention is how long a dead PTY session stays queryable so
	// late subscribers can still fetch scrollback.
	PtyExitRetention = 30 * time.Second

	// TeamsPollInterval is the task-file polling cadence of a team watch.
	// Kept at 2s to match external teammate tooling that shares the files.
	TeamsPollInterval = 2 * time.Second

	// ShutdownTimeout bounds graceful gateway shutdown.
	ShutdownTimeout = 30 * time.Second
)

// Session limits.
const (
	// HistoryContextMessages is how many trailing messages are folded into
	// the next prompt as conversation context.
	HistoryContextMessages = 6

	// HistoryContextMaxChars truncates each context message.
	HistoryContextMaxChars = 500

	// HistoryLoadLimit caps rows loaded from the persistence log on startup.
	HistoryLoadLimit = 200
)

// PTY limits.
const (
	// PtyDefaultCols and PtyDefaultRows size new pseudo-terminals.
	PtyDefaultCols = 220
	PtyDefaultRows = 50

	// PtyMaxScrollback caps per-session scrollback, trimmed from the head.
	PtyMaxScrollback = 100000
)
