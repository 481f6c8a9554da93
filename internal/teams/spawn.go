package teams

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/common/appctx"
	"github.com/arosstale/pi-builder-sub000/internal/events"
)

// spawnMaxLifetime bounds a coordinator process that never exits on its
// own. Coordinators are interactive agent runs, not daemons.
const spawnMaxLifetime = 24 * time.Hour

// defaultCoordinatorBinary runs the team in teammate mode.
const defaultCoordinatorBinary = "claude"

// SpawnOpts configures a team coordinator process.
type SpawnOpts struct {
	// Binary overrides the coordinator executable.
	Binary string
	// Mode is the value passed to --teammate-mode. Empty means "auto".
	Mode string
	// Cwd overrides the team config's working directory.
	Cwd string
}

// SpawnTeam starts the coordinator process for a team with the teammate
// protocol enabled, streaming its output onto the bus. The process is
// detached from the caller's context: it survives the request but dies
// with the driver.
func (d *Driver) SpawnTeam(ctx context.Context, name, initialPrompt string, opts SpawnOpts) (int, error) {
	cfg, err := d.GetTeamConfig(name)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	if _, running := d.spawned[name]; running {
		d.mu.Unlock()
		return 0, fmt.Errorf("team %s already has a running coordinator", name)
	}
	stop := d.stop
	d.mu.Unlock()

	binary := opts.Binary
	if binary == "" {
		binary = defaultCoordinatorBinary
	}
	mode := opts.Mode
	if mode == "" {
		mode = "auto"
	}
	cwd := opts.Cwd
	if cwd == "" {
		cwd = cfg.Cwd
	}

	procCtx, cancel := appctx.Detached(ctx, stop, spawnMaxLifetime)
	cmd := exec.CommandContext(procCtx, binary, "--teammate-mode", mode, initialPrompt)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "CLAUDE_CODE_EXPERIMENTAL_AGENT_TEAMS=1")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return 0, fmt.Errorf("failed to open coordinator stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return 0, fmt.Errorf("failed to open coordinator stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return 0, fmt.Errorf("failed to spawn coordinator %s: %w", binary, err)
	}

	d.mu.Lock()
	d.spawned[name] = cmd
	d.mu.Unlock()

	outputSubject := events.BuildTeamsOutputSubject(name)
	go d.forwardLines(name, outputSubject, "stdout", stdout)
	go d.forwardLines(name, outputSubject, "stderr", stderr)

	pid := cmd.Process.Pid
	go func() {
		defer cancel()
		err := cmd.Wait()

		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}

		d.mu.Lock()
		delete(d.spawned, name)
		d.mu.Unlock()

		d.publish(events.BuildTeamsExitSubject(name), map[string]interface{}{
			"team":     name,
			"exitCode": exitCode,
		})
		d.logger.Info("team coordinator exited",
			zap.String("team", name),
			zap.Int("exit_code", exitCode))
	}()

	d.publish(events.TeamsSpawned, map[string]interface{}{
		"team": name,
		"pid":  pid,
	})
	d.logger.Info("team coordinator spawned",
		zap.String("team", name),
		zap.String("binary", binary),
		zap.Int("pid", pid))
	return pid, nil
}

// forwardLines publishes each output line as a teams output event.
func (d *Driver) forwardLines(team, subject, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		d.publish(subject, map[string]interface{}{
			"team":   team,
			"stream": stream,
			"line":   scanner.Text(),
		})
	}
}
