package wrappers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/arosstale/pi-builder-sub000/internal/tracing"
)

// streamChunkBuffer bounds the in-flight chunk queue per stream. A full
// buffer blocks the stdout reader, which pushes back on the child through
// the pipe.
const streamChunkBuffer = 256

// termGrace is how long a timed-out child gets between SIGTERM and SIGKILL.
const termGrace = 5 * time.Second

// Base provides the shared execution engine for wrappers. Concrete wrappers
// embed it with identity and argv builder filled in; bespoke behaviour
// (hanging version probes, custom streams) overrides the relevant method.
type Base struct {
	WrapperID   string
	WrapperName string
	Bin         string
	Caps        []string
	Args        func(Task) []string
	// Probe overrides the default `<binary> --version` probe when set.
	Probe VersionFunc
}

func (b *Base) ID() string             { return b.WrapperID }
func (b *Base) Name() string           { return b.WrapperName }
func (b *Base) Binary() string         { return b.Bin }
func (b *Base) Capabilities() []string { return b.Caps }

// BuildArgs delegates to the configured argv builder.
func (b *Base) BuildArgs(task Task) []string {
	if b.Args == nil {
		return nil
	}
	return b.Args(task)
}

// Execute runs the agent to completion, capturing stdout and stderr.
// All failure modes are reported through the Result status.
func (b *Base) Execute(ctx context.Context, task Task) *Result {
	ctx, span := tracing.Tracer("pibuild-agent").Start(ctx, "wrapper.execute")
	defer span.End()

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, task.Timeout())
	defer cancel()

	cmd := b.command(runCtx, task)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &Result{
			AgentID:    b.WrapperID,
			Status:     StatusError,
			Stderr:     err.Error(),
			ExitCode:   -1,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	err := cmd.Wait()
	duration := time.Since(start).Milliseconds()

	if runCtx.Err() == context.DeadlineExceeded {
		return &Result{
			AgentID:    b.WrapperID,
			Status:     StatusTimeout,
			Output:     stdout.String(),
			Stderr:     stderr.String(),
			ExitCode:   -1,
			DurationMs: duration,
		}
	}

	result := &Result{
		AgentID:    b.WrapperID,
		Status:     StatusSuccess,
		Output:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   cmd.ProcessState.ExitCode(),
		DurationMs: duration,
	}
	if err != nil || result.ExitCode != 0 {
		result.Status = StatusError
	}
	return result
}

// ExecuteStream runs the agent and delivers stdout chunks as they arrive.
// The returned error covers spawn failure only.
func (b *Base) ExecuteStream(ctx context.Context, task Task) (*Stream, error) {
	ctx, span := tracing.Tracer("pibuild-agent").Start(ctx, "wrapper.execute_stream")

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, task.Timeout())

	cmd := b.command(runCtx, task)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		span.End()
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		span.End()
		return nil, fmt.Errorf("failed to start %s: %w", b.Bin, err)
	}

	s := newStream()
	go func() {
		defer cancel()
		defer span.End()

		var output bytes.Buffer
		buf := make([]byte, 4096)
		for {
			n, readErr := stdoutPipe.Read(buf)
			if n > 0 {
				chunk := string(buf[:n])
				output.WriteString(chunk)
				s.send(chunk)
			}
			if readErr != nil {
				break
			}
		}

		waitErr := cmd.Wait()
		duration := time.Since(start).Milliseconds()

		result := &Result{
			AgentID:    b.WrapperID,
			Status:     StatusSuccess,
			Output:     output.String(),
			Stderr:     stderr.String(),
			ExitCode:   cmd.ProcessState.ExitCode(),
			DurationMs: duration,
		}
		switch {
		case runCtx.Err() == context.DeadlineExceeded:
			result.Status = StatusTimeout
			result.ExitCode = -1
		case waitErr != nil || result.ExitCode != 0:
			result.Status = StatusError
		}
		s.finish(result)
	}()

	return s, nil
}

// Version probes the agent binary. The default probe runs
// `<binary> --version`; wrappers with bespoke probe behaviour set Probe.
func (b *Base) Version(ctx context.Context) (string, error) {
	if b.Probe != nil {
		return b.Probe(ctx)
	}
	return defaultVersion(ctx, b.Bin)
}

// Healthy reports whether the version probe returns a usable string.
func (b *Base) Healthy(ctx context.Context) bool {
	version, err := b.Version(ctx)
	return err == nil && version != ""
}

// command builds the exec.Cmd for a task: argv from the builder, stdin
// closed, working directory from the task, environment inherited with
// task overrides on top. Timed-out children get SIGTERM first.
func (b *Base) command(ctx context.Context, task Task) *exec.Cmd {
	cmd := exec.CommandContext(ctx, b.Bin, b.BuildArgs(task)...)
	if task.WorkDir != "" {
		cmd.Dir = task.WorkDir
	}
	cmd.Env = mergeEnv(task.Env)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = termGrace
	return cmd
}

// mergeEnv overlays task variables on top of the inherited environment.
func mergeEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// Stream carries incremental stdout chunks from a running agent. The
// channel closes when the child's stdout does; Wait blocks until the
// final Result has been recorded.
type Stream struct {
	chunks chan string
	done   chan struct{}
	result *Result
}

func newStream() *Stream {
	return &Stream{
		chunks: make(chan string, streamChunkBuffer),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of stdout chunks.
func (s *Stream) Chunks() <-chan string { return s.chunks }

// Wait blocks until the agent has exited and returns the final result.
func (s *Stream) Wait() *Result {
	<-s.done
	return s.result
}

func (s *Stream) send(chunk string) {
	s.chunks <- chunk
}

// finish records the result exactly once and releases waiters.
func (s *Stream) finish(result *Result) {
	close(s.chunks)
	s.result = result
	close(s.done)
}

// SyntheticStream builds an already-finished stream carrying the given
// chunks and result. Callers use it to report failures through the same
// channel shape a live agent would produce.
func SyntheticStream(result *Result, chunks ...string) *Stream {
	s := newStream()
	for _, c := range chunks {
		s.send(c)
	}
	s.finish(result)
	return s
}
