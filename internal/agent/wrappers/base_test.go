package wrappers

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test relies on POSIX shell tools")
	}
}

// writeScript creates an executable shell script for use as a fake agent.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func echoWrapper() *Base {
	return &Base{
		WrapperID:   "echo",
		WrapperName: "Echo",
		Bin:         "echo",
		Caps:        []string{CapCodeGeneration},
		Args:        func(t Task) []string { return []string{t.Prompt} },
	}
}

func TestExecuteSuccess(t *testing.T) {
	skipOnWindows(t)

	result := echoWrapper().Execute(context.Background(), Task{Prompt: "hello world"})

	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, want success (stderr: %s)", result.Status, result.Stderr)
	}
	if !strings.Contains(result.Output, "hello world") {
		t.Errorf("output = %q, want it to contain the prompt", result.Output)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
	if result.AgentID != "echo" {
		t.Errorf("agent id = %s, want echo", result.AgentID)
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	w := &Base{
		WrapperID: "ghost",
		Bin:       "definitely-not-a-real-binary-xyz",
		Args:      func(t Task) []string { return []string{t.Prompt} },
	}

	result := w.Execute(context.Background(), Task{Prompt: "anything"})

	if result.Status != StatusError {
		t.Fatalf("status = %s, want error", result.Status)
	}
	if result.Stderr == "" {
		t.Error("expected spawn error message in stderr")
	}
	if result.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", result.ExitCode)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	skipOnWindows(t)

	script := writeScript(t, `echo "partial output"; echo "boom" >&2; exit 3`)
	w := &Base{WrapperID: "failing", Bin: script, Args: func(Task) []string { return nil }}

	result := w.Execute(context.Background(), Task{Prompt: "x"})

	if result.Status != StatusError {
		t.Fatalf("status = %s, want error", result.Status)
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(result.Output, "partial output") {
		t.Errorf("output = %q, want captured stdout", result.Output)
	}
	if !strings.Contains(result.Stderr, "boom") {
		t.Errorf("stderr = %q, want captured stderr", result.Stderr)
	}
}

func TestExecuteTimeout(t *testing.T) {
	skipOnWindows(t)

	script := writeScript(t, `echo "started"; sleep 30`)
	w := &Base{WrapperID: "slow", Bin: script, Args: func(Task) []string { return nil }}

	start := time.Now()
	result := w.Execute(context.Background(), Task{Prompt: "x", TimeoutMs: 200})

	if result.Status != StatusTimeout {
		t.Fatalf("status = %s, want timeout", result.Status)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("timeout took %v, child was not terminated promptly", elapsed)
	}
	if !strings.Contains(result.Output, "started") {
		t.Errorf("output = %q, want stdout captured before timeout", result.Output)
	}
}

func TestExecuteEnvOverride(t *testing.T) {
	skipOnWindows(t)

	script := writeScript(t, `echo "$PIBUILD_TEST_VALUE"`)
	w := &Base{WrapperID: "env", Bin: script, Args: func(Task) []string { return nil }}

	result := w.Execute(context.Background(), Task{
		Prompt: "x",
		Env:    map[string]string{"PIBUILD_TEST_VALUE": "overlaid"},
	})

	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}
	if !strings.Contains(result.Output, "overlaid") {
		t.Errorf("output = %q, want env override visible to child", result.Output)
	}
}

func TestExecuteWorkDir(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	script := writeScript(t, `pwd`)
	w := &Base{WrapperID: "pwd", Bin: script, Args: func(Task) []string { return nil }}

	result := w.Execute(context.Background(), Task{Prompt: "x", WorkDir: dir})

	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}
	// Resolve symlinks: macOS TempDir lives under /private.
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		resolved = dir
	}
	got := strings.TrimSpace(result.Output)
	if got != dir && got != resolved {
		t.Errorf("child pwd = %q, want %q", got, dir)
	}
}

func TestExecuteStreamDeliversChunks(t *testing.T) {
	skipOnWindows(t)

	stream, err := echoWrapper().ExecuteStream(context.Background(), Task{Prompt: "streamed text"})
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}

	var collected strings.Builder
	for chunk := range stream.Chunks() {
		collected.WriteString(chunk)
	}
	result := stream.Wait()

	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}
	if !strings.Contains(collected.String(), "streamed text") {
		t.Errorf("collected = %q, want streamed prompt", collected.String())
	}
	if result.Output != collected.String() {
		t.Errorf("result output %q differs from streamed chunks %q", result.Output, collected.String())
	}
	if result.DurationMs < 0 {
		t.Errorf("duration = %d, want >= 0", result.DurationMs)
	}
}

func TestExecuteStreamSpawnError(t *testing.T) {
	w := &Base{WrapperID: "ghost", Bin: "definitely-not-a-real-binary-xyz"}
	if _, err := w.ExecuteStream(context.Background(), Task{Prompt: "x"}); err == nil {
		t.Fatal("expected spawn error")
	}
}

func TestExecuteStreamTimeout(t *testing.T) {
	skipOnWindows(t)

	script := writeScript(t, `echo "before"; sleep 30`)
	w := &Base{WrapperID: "slow", Bin: script, Args: func(Task) []string { return nil }}

	stream, err := w.ExecuteStream(context.Background(), Task{Prompt: "x", TimeoutMs: 200})
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}

	var collected strings.Builder
	for chunk := range stream.Chunks() {
		collected.WriteString(chunk)
	}
	result := stream.Wait()

	if result.Status != StatusTimeout {
		t.Fatalf("status = %s, want timeout", result.Status)
	}
	if !strings.Contains(collected.String(), "before") {
		t.Errorf("collected = %q, want output emitted before timeout", collected.String())
	}
}

func TestDefaultVersionProbe(t *testing.T) {
	skipOnWindows(t)

	script := writeScript(t, `echo "fake-agent 1.0.0"`)
	w := &Base{WrapperID: "fake", Bin: script}

	version, err := w.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != "fake-agent 1.0.0" {
		t.Errorf("version = %q, want first trimmed line", version)
	}
	if !w.Healthy(context.Background()) {
		t.Error("expected healthy wrapper")
	}
}

func TestVersionProbeMissingBinary(t *testing.T) {
	w := &Base{WrapperID: "ghost", Bin: "definitely-not-a-real-binary-xyz"}
	if _, err := w.Version(context.Background()); err == nil {
		t.Fatal("expected probe error for missing binary")
	}
	if w.Healthy(context.Background()) {
		t.Error("missing binary must be unhealthy")
	}
}

func TestSpawnKillVersionProbe(t *testing.T) {
	skipOnWindows(t)

	script := writeScript(t, `echo "hang-agent 2.1.0"; sleep 60`)
	probe := SpawnKillVersion(script)

	start := time.Now()
	version, err := probe(context.Background())
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if version != "hang-agent 2.1.0" {
		t.Errorf("version = %q, want buffered first line", version)
	}
	if elapsed := time.Since(start); elapsed > 15*time.Second {
		t.Errorf("probe took %v, hanging child was not killed", elapsed)
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"v1.0.0\n", "v1.0.0"},
		{"\n\n  v2.0  \nmore", "v2.0"},
		{"", ""},
		{"   \n\t\n", ""},
	}
	for _, tt := range tests {
		if got := firstLine(tt.in); got != tt.want {
			t.Errorf("firstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
