package wrappers

import (
	"reflect"
	"testing"
)

func TestArgvBuilders(t *testing.T) {
	task := Task{Prompt: "fix the bug", WorkDir: "/tmp/repo", Files: []string{"a.go", "b.go"}}

	tests := []struct {
		name    string
		wrapper Wrapper
		want    []string
	}{
		{"claude", NewClaude(), []string{"--print", "fix the bug"}},
		{"aider", NewAider(), []string{"--message", "fix the bug", "--no-auto-commits", "a.go", "b.go"}},
		{"codex", NewCodex(), []string{"exec", "--full-auto", "fix the bug", "--cd", "/tmp/repo"}},
		{"gemini", NewGemini(), []string{"-p", "fix the bug", "--yolo"}},
		{"amp", NewAmp(), []string{"run", "--text", "fix the bug"}},
		{"cursor", NewCursor(), []string{"tell", "fix the bug", "--bg"}},
		{"swe", NewSWEAgent(), []string{"run", "--problem-statement", "fix the bug", "--repo-path", "/tmp/repo"}},
		{"qwen", NewQwen(), []string{"run", "--quiet", "--cwd", "/tmp/repo", "fix the bug"}},
		{"opencode", NewOpenCode(), []string{"run", "fix the bug"}},
		{"goose", NewGoose(), []string{"run", "-t", "fix the bug"}},
		{"continue", NewContinue(), []string{"-p", "fix the bug"}},
		{"openhands", NewOpenHands(), []string{"--non-interactive", "fix the bug"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.wrapper.BuildArgs(task)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArgvBuildersOmitEmptyWorkDir(t *testing.T) {
	task := Task{Prompt: "hello"}

	for _, w := range []Wrapper{NewCodex(), NewSWEAgent(), NewQwen()} {
		args := w.BuildArgs(task)
		for _, arg := range args {
			if arg == "--cd" || arg == "--repo-path" || arg == "--cwd" {
				t.Errorf("%s: workdir flag %q present without a workdir", w.ID(), arg)
			}
		}
	}
}

func TestArgvBuildersArePure(t *testing.T) {
	task := Task{Prompt: "same prompt", WorkDir: "/srv/code"}
	for _, w := range DefaultWrappers() {
		first := w.BuildArgs(task)
		second := w.BuildArgs(task)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s: BuildArgs not deterministic: %v vs %v", w.ID(), first, second)
		}
	}
}

func TestDefaultWrappersCatalog(t *testing.T) {
	all := DefaultWrappers()
	if len(all) != 12 {
		t.Fatalf("expected 12 wrappers, got %d", len(all))
	}
	if all[0].ID() != "claude" {
		t.Errorf("expected claude first in catalog, got %s", all[0].ID())
	}

	seen := make(map[string]bool)
	for _, w := range all {
		if w.ID() == "" || w.Name() == "" || w.Binary() == "" {
			t.Errorf("wrapper %q has empty identity fields", w.ID())
		}
		if seen[w.ID()] {
			t.Errorf("duplicate wrapper id %q", w.ID())
		}
		seen[w.ID()] = true
		if len(w.Capabilities()) == 0 {
			t.Errorf("wrapper %q advertises no capabilities", w.ID())
		}
	}
}

func TestHasCapability(t *testing.T) {
	claude := NewClaude()
	if !HasCapability(claude, CapRefactoring) {
		t.Error("claude should advertise refactoring")
	}
	if HasCapability(NewQwen(), CapGitAware) {
		t.Error("qwen should not advertise git-aware")
	}
}

func TestTaskTimeoutDefault(t *testing.T) {
	if got := (Task{}).Timeout().Milliseconds(); got != 120000 {
		t.Errorf("default timeout = %dms, want 120000ms", got)
	}
	if got := (Task{TimeoutMs: 5000}).Timeout().Milliseconds(); got != 5000 {
		t.Errorf("explicit timeout = %dms, want 5000ms", got)
	}
}
