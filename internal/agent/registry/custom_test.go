package registry

import (
	"reflect"
	"testing"

	"github.com/arosstale/pi-builder-sub000/internal/agent/wrappers"
)

func TestRegisterCustomWrapper_Success(t *testing.T) {
	reg := NewRegistry(newTestLogger())

	err := reg.RegisterCustomWrapper("my-agent", "My Agent", "my-cli --verbose", []string{wrappers.CapCodeGeneration})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w, ok := reg.Get("my-agent")
	if !ok {
		t.Fatal("expected wrapper to be registered")
	}
	if w.Name() != "My Agent" {
		t.Errorf("name = %q, want My Agent", w.Name())
	}
	if w.Binary() != "my-cli" {
		t.Errorf("binary = %q, want my-cli", w.Binary())
	}

	argv := w.BuildArgs(wrappers.Task{Prompt: "do the thing"})
	want := []string{"--verbose", "do the thing"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v (prompt appended last)", argv, want)
	}
}

func TestRegisterCustomWrapper_PromptPlaceholder(t *testing.T) {
	reg := NewRegistry(newTestLogger())

	err := reg.RegisterCustomWrapper("tmpl", "", "my-cli run {{prompt}} --json", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w, _ := reg.Get("tmpl")
	if w.Name() != "tmpl" {
		t.Errorf("name = %q, want id used when display name is empty", w.Name())
	}

	argv := w.BuildArgs(wrappers.Task{Prompt: "fix it"})
	want := []string{"run", "fix it", "--json"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want placeholder substituted in place", argv)
	}
}

func TestRegisterCustomWrapper_EmptyCommand(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	if err := reg.RegisterCustomWrapper("empty", "Empty", "   ", nil); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestRegisterCustomWrapper_DuplicateID(t *testing.T) {
	reg := NewRegistry(newTestLogger())

	_ = reg.RegisterCustomWrapper("dup", "First", "first-cli", nil)
	if err := reg.RegisterCustomWrapper("dup", "Second", "second-cli", nil); err == nil {
		t.Error("expected error for duplicate registration")
	}
}
