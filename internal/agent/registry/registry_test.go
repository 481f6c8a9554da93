package registry

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/arosstale/pi-builder-sub000/internal/agent/wrappers"
	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
)

// fakeWrapper is a controllable wrappers.Wrapper for selection and
// fallback tests that must not spawn real processes.
type fakeWrapper struct {
	id         string
	caps       []string
	healthy    bool
	result     *wrappers.Result
	probeCalls int
	execCalls  int
}

var _ wrappers.Wrapper = (*fakeWrapper)(nil)

func (f *fakeWrapper) ID() string                        { return f.id }
func (f *fakeWrapper) Name() string                      { return f.id }
func (f *fakeWrapper) Binary() string                    { return f.id }
func (f *fakeWrapper) Capabilities() []string            { return f.caps }
func (f *fakeWrapper) BuildArgs(t wrappers.Task) []string { return []string{t.Prompt} }

func (f *fakeWrapper) Execute(ctx context.Context, task wrappers.Task) *wrappers.Result {
	f.execCalls++
	if f.result != nil {
		return f.result
	}
	return &wrappers.Result{AgentID: f.id, Status: wrappers.StatusSuccess, Output: "ok"}
}

func (f *fakeWrapper) ExecuteStream(ctx context.Context, task wrappers.Task) (*wrappers.Stream, error) {
	result := f.Execute(ctx, task)
	return wrappers.SyntheticStream(result, result.Output), nil
}

func (f *fakeWrapper) Version(ctx context.Context) (string, error) {
	f.probeCalls++
	if !f.healthy {
		return "", errors.New("probe failed")
	}
	return "v1.0.0", nil
}

func (f *fakeWrapper) Healthy(ctx context.Context) bool {
	version, err := f.Version(ctx)
	return err == nil && version != ""
}

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.Config{Level: "error", Format: "json"})
	return log
}

func healthyFake(id string, caps ...string) *fakeWrapper {
	return &fakeWrapper{id: id, caps: caps, healthy: true}
}

func TestRegister(t *testing.T) {
	reg := NewRegistry(newTestLogger())

	if err := reg.Register(healthyFake("test-agent")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register(healthyFake("test-agent")); err == nil {
		t.Error("expected error for duplicate registration")
	}
	if err := reg.Register(healthyFake("")); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestUnregister(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	_ = reg.Register(healthyFake("test-agent"))

	if err := reg.Unregister("test-agent"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Exists("test-agent") {
		t.Error("wrapper should not exist after unregister")
	}
	if err := reg.Unregister("non-existent"); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestGetAndExists(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	_ = reg.Register(healthyFake("test-agent"))

	got, ok := reg.Get("test-agent")
	if !ok {
		t.Fatal("expected wrapper to be found")
	}
	if got.ID() != "test-agent" {
		t.Errorf("ID = %q, want test-agent", got.ID())
	}
	if _, ok := reg.Get("non-existent"); ok {
		t.Error("expected lookup miss")
	}
	if !reg.Exists("test-agent") || reg.Exists("non-existent") {
		t.Error("Exists disagrees with Get")
	}
}

func TestListKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		_ = reg.Register(healthyFake(id))
	}

	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 wrappers, got %d", len(list))
	}
	for i, want := range []string{"charlie", "alpha", "bravo"} {
		if list[i].ID() != want {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID(), want)
		}
	}
}

func TestIsHealthyCachesWithinTTL(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	fake := healthyFake("cached")
	_ = reg.Register(fake)

	ctx := context.Background()
	if !reg.IsHealthy(ctx, "cached") || !reg.IsHealthy(ctx, "cached") {
		t.Fatal("expected healthy wrapper")
	}
	if fake.probeCalls != 1 {
		t.Errorf("probe calls = %d, want 1 (second lookup served from cache)", fake.probeCalls)
	}
}

func TestIsHealthyReprobesAfterTTL(t *testing.T) {
	reg := NewRegistry(newTestLogger(), WithHealthTTL(time.Nanosecond))
	fake := healthyFake("stale")
	_ = reg.Register(fake)

	ctx := context.Background()
	reg.IsHealthy(ctx, "stale")
	time.Sleep(time.Millisecond)
	reg.IsHealthy(ctx, "stale")

	if fake.probeCalls != 2 {
		t.Errorf("probe calls = %d, want 2 (entry expired)", fake.probeCalls)
	}
}

func TestIsHealthyUnknownID(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	if reg.IsHealthy(context.Background(), "ghost") {
		t.Error("unknown id must be unhealthy")
	}
}

func TestUnregisterInvalidatesHealthCache(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	fake := healthyFake("flappy")
	_ = reg.Register(fake)

	ctx := context.Background()
	reg.IsHealthy(ctx, "flappy")
	_ = reg.Unregister("flappy")
	_ = reg.Register(fake)
	reg.IsHealthy(ctx, "flappy")

	if fake.probeCalls != 2 {
		t.Errorf("probe calls = %d, want 2 (cache dropped on unregister)", fake.probeCalls)
	}
}

func TestCheckHealthProbesAllWrappers(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	up1 := healthyFake("up-one")
	down := &fakeWrapper{id: "down", healthy: false}
	up2 := healthyFake("up-two")
	_ = reg.Register(up1)
	_ = reg.Register(down)
	_ = reg.Register(up2)

	health := reg.CheckHealth(context.Background())

	if len(health) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(health))
	}
	if !health["up-one"] || !health["up-two"] || health["down"] {
		t.Errorf("unexpected health map: %v", health)
	}
}

func TestAvailableAgents(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	_ = reg.Register(healthyFake("first"))
	_ = reg.Register(&fakeWrapper{id: "broken", healthy: false})
	_ = reg.Register(healthyFake("second"))

	available := reg.AvailableAgents(context.Background())

	if len(available) != 2 {
		t.Fatalf("expected 2 healthy wrappers, got %d", len(available))
	}
	if available[0].ID() != "first" || available[1].ID() != "second" {
		t.Errorf("expected [first, second], got [%s, %s]",
			available[0].ID(), available[1].ID())
	}
}

func TestSelectForTaskPrefersConfiguredOrder(t *testing.T) {
	reg := NewRegistry(newTestLogger(), WithPreferredAgents("bravo"))
	_ = reg.Register(healthyFake("alpha"))
	_ = reg.Register(healthyFake("bravo"))

	w := reg.SelectForTask(context.Background(), wrappers.Task{Prompt: "x"})
	if w == nil || w.ID() != "bravo" {
		t.Fatalf("expected bravo, got %v", w)
	}
}

func TestSelectForTaskSkipsUnhealthyPreferred(t *testing.T) {
	reg := NewRegistry(newTestLogger(), WithPreferredAgents("alpha"))
	_ = reg.Register(&fakeWrapper{id: "alpha", healthy: false})
	_ = reg.Register(healthyFake("bravo"))

	w := reg.SelectForTask(context.Background(), wrappers.Task{Prompt: "x"})
	if w == nil || w.ID() != "bravo" {
		t.Fatalf("expected bravo, got %v", w)
	}
}

func TestSelectForTaskMatchesCapability(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	_ = reg.Register(healthyFake("generalist", wrappers.CapCodeGeneration))
	_ = reg.Register(healthyFake("tester", wrappers.CapTesting))

	w := reg.SelectForTask(context.Background(), wrappers.Task{
		Prompt:     "x",
		Capability: wrappers.CapTesting,
	})
	if w == nil || w.ID() != "tester" {
		t.Fatalf("expected tester, got %v", w)
	}
}

func TestSelectForTaskPreferredWithoutCapabilityFallsThrough(t *testing.T) {
	reg := NewRegistry(newTestLogger(), WithPreferredAgents("generalist"))
	_ = reg.Register(healthyFake("generalist", wrappers.CapCodeGeneration))
	_ = reg.Register(healthyFake("tester", wrappers.CapTesting))

	w := reg.SelectForTask(context.Background(), wrappers.Task{
		Prompt:     "x",
		Capability: wrappers.CapTesting,
	})
	if w == nil || w.ID() != "tester" {
		t.Fatalf("expected tester when preferred lacks the capability, got %v", w)
	}
}

func TestSelectForTaskNoneHealthy(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	_ = reg.Register(&fakeWrapper{id: "down", healthy: false})

	if w := reg.SelectForTask(context.Background(), wrappers.Task{Prompt: "x"}); w != nil {
		t.Fatalf("expected nil, got %s", w.ID())
	}
}

func TestExecuteWithEmptyRegistry(t *testing.T) {
	reg := NewRegistry(newTestLogger())

	result := reg.Execute(context.Background(), wrappers.Task{Prompt: "x"})

	if result.Status != wrappers.StatusError {
		t.Fatalf("status = %s, want error", result.Status)
	}
	if result.Stderr != "no available agent found" {
		t.Errorf("stderr = %q, want plain no-agent message", result.Stderr)
	}
}

func TestExecuteEnumeratesTriedIDs(t *testing.T) {
	failure := &wrappers.Result{Status: wrappers.StatusError, ExitCode: 1}
	reg := NewRegistry(newTestLogger())
	_ = reg.Register(&fakeWrapper{id: "alpha", healthy: true, result: failure})
	_ = reg.Register(&fakeWrapper{id: "bravo", healthy: true, result: failure})

	result := reg.Execute(context.Background(), wrappers.Task{Prompt: "x"})

	if result.Status != wrappers.StatusError {
		t.Fatalf("status = %s, want error", result.Status)
	}
	if result.Stderr != "no available agent found (tried: alpha, bravo)" {
		t.Errorf("stderr = %q, want tried ids in attempt order", result.Stderr)
	}
}

func TestExecuteWithoutFallbackSurfacesFirstFailure(t *testing.T) {
	failure := &wrappers.Result{AgentID: "alpha", Status: wrappers.StatusError, ExitCode: 1}
	alpha := &fakeWrapper{id: "alpha", healthy: true, result: failure}
	bravo := healthyFake("bravo")

	reg := NewRegistry(newTestLogger(), WithoutFallback())
	_ = reg.Register(alpha)
	_ = reg.Register(bravo)

	result := reg.Execute(context.Background(), wrappers.Task{Prompt: "x"})

	if result.AgentID != "alpha" || result.Status != wrappers.StatusError {
		t.Errorf("expected alpha's failure surfaced, got %+v", result)
	}
	if bravo.execCalls != 0 {
		t.Errorf("bravo ran %d times, want 0 with fallback disabled", bravo.execCalls)
	}
}

func TestExecuteFallsBackToSecondWrapper(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on POSIX echo")
	}

	// alpha reports healthy through its probe but its binary does not
	// exist, so execution fails and fallback moves on to bravo.
	alpha := &wrappers.Base{
		WrapperID: "alpha",
		Bin:       "definitely-not-a-real-binary-xyz",
		Args:      func(t wrappers.Task) []string { return []string{t.Prompt} },
		Probe:     func(ctx context.Context) (string, error) { return "v1.0.0", nil },
	}
	bravo := &wrappers.Base{
		WrapperID: "bravo",
		Bin:       "echo",
		Args:      func(t wrappers.Task) []string { return []string{t.Prompt} },
		Probe:     func(ctx context.Context) (string, error) { return "v1.0.0", nil },
	}

	reg := NewRegistry(newTestLogger(), WithPreferredAgents("alpha"))
	_ = reg.Register(alpha)
	_ = reg.Register(bravo)

	result := reg.Execute(context.Background(), wrappers.Task{Prompt: "hello"})

	if result.AgentID != "bravo" {
		t.Fatalf("agent = %q, want bravo (stderr: %s)", result.AgentID, result.Stderr)
	}
	if result.Status != wrappers.StatusSuccess {
		t.Errorf("status = %s, want success", result.Status)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Errorf("output = %q, want echoed prompt", result.Output)
	}
}

func TestExecuteStreamWithEmptyRegistry(t *testing.T) {
	reg := NewRegistry(newTestLogger())

	stream := reg.ExecuteStream(context.Background(), wrappers.Task{Prompt: "x"})

	var chunks []string
	for chunk := range stream.Chunks() {
		chunks = append(chunks, chunk)
	}
	result := stream.Wait()

	if len(chunks) != 1 || chunks[0] != "no available agent" {
		t.Errorf("chunks = %v, want single banner", chunks)
	}
	if result.Status != wrappers.StatusError {
		t.Errorf("status = %s, want error", result.Status)
	}
	if result.Output != "" {
		t.Errorf("output = %q, want empty", result.Output)
	}
}

func TestExecuteStreamDelivers(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	_ = reg.Register(healthyFake("streamer"))

	stream := reg.ExecuteStream(context.Background(), wrappers.Task{Prompt: "x"})

	var collected strings.Builder
	for chunk := range stream.Chunks() {
		collected.WriteString(chunk)
	}
	result := stream.Wait()

	if result.Status != wrappers.StatusSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}
	if collected.String() != "ok" {
		t.Errorf("collected = %q, want ok", collected.String())
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	reg := NewDefaultRegistry(newTestLogger())

	list := reg.List()
	if len(list) == 0 {
		t.Fatal("expected catalog wrappers to be registered")
	}
	if list[0].ID() != "claude" {
		t.Errorf("first wrapper = %s, want claude", list[0].ID())
	}
	preferred := reg.PreferredAgents()
	if len(preferred) == 0 || preferred[0] != "claude" {
		t.Errorf("preferred = %v, want claude leading", preferred)
	}
}

func TestNewDefaultRegistryKeepsExplicitPreference(t *testing.T) {
	reg := NewDefaultRegistry(newTestLogger(), WithPreferredAgents("aider", "claude"))

	preferred := reg.PreferredAgents()
	if len(preferred) != 2 || preferred[0] != "aider" {
		t.Errorf("preferred = %v, want explicit list untouched", preferred)
	}
}
