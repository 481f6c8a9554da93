package teams

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
)

var (
	// ErrTeamNotFound is returned when a team directory does not exist.
	ErrTeamNotFound = errors.New("team not found")

	// ErrTeamExists is returned by CreateTeam for an existing team name.
	ErrTeamExists = errors.New("team already exists")
)

// Driver owns one base directory of the teams filesystem protocol.
type Driver struct {
	baseDir string
	bus     bus.EventBus
	logger  *logger.Logger

	mu       sync.Mutex
	watchers map[string]*watcher
	spawned  map[string]*exec.Cmd
	stop     chan struct{}
}

// NewDriver creates a driver rooted at baseDir. An empty baseDir resolves
// to ~/.claude.
func NewDriver(baseDir string, eventBus bus.EventBus, log *logger.Logger) (*Driver, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".claude")
	}
	return &Driver{
		baseDir:  baseDir,
		bus:      eventBus,
		logger:   log.WithComponent("teams"),
		watchers: make(map[string]*watcher),
		spawned:  make(map[string]*exec.Cmd),
		stop:     make(chan struct{}),
	}, nil
}

// BaseDir returns the protocol root.
func (d *Driver) BaseDir() string {
	return d.baseDir
}

func (d *Driver) teamDir(name string) string {
	return filepath.Join(d.baseDir, "teams", name)
}

func (d *Driver) tasksDir(name string) string {
	return filepath.Join(d.baseDir, "tasks", name)
}

// CreateTeam writes the team config and creates the inbox and task
// directories.
func (d *Driver) CreateTeam(name string, members []Member) (*Config, error) {
	if name == "" {
		return nil, errors.New("team name is required")
	}
	if strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("invalid team name %q", name)
	}
	if _, err := os.Stat(d.teamDir(name)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTeamExists, name)
	}

	cfg := &Config{
		Name:      name,
		Members:   members,
		CreatedAt: time.Now().UTC(),
	}
	if err := writeJSON(filepath.Join(d.teamDir(name), "config.json"), cfg); err != nil {
		return nil, fmt.Errorf("failed to write team config: %w", err)
	}
	for _, m := range members {
		if err := os.MkdirAll(filepath.Join(d.teamDir(name), "inbox", m.Name), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create inbox for %s: %w", m.Name, err)
		}
	}
	if err := os.MkdirAll(d.tasksDir(name), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create task directory: %w", err)
	}

	d.publish(events.TeamsCreated, map[string]interface{}{
		"team":   name,
		"config": cfg,
	})
	d.logger.Info("team created",
		zap.String("team", name),
		zap.Int("members", len(members)))
	return cfg, nil
}

// ListTeams returns the names of every team on disk, sorted.
func (d *Driver) ListTeams() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.baseDir, "teams"))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// GetTeamConfig reads a team's config.json.
func (d *Driver) GetTeamConfig(name string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(d.teamDir(name), "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTeamNotFound, name)
		}
		return nil, fmt.Errorf("failed to read team config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse team config: %w", err)
	}
	return &cfg, nil
}

// GetTasks reads every task file of a team, skipping files that do not
// parse. Tasks are sorted by id for a stable order.
func (d *Driver) GetTasks(name string) ([]Task, error) {
	entries, err := os.ReadDir(d.tasksDir(name))
	if err != nil {
		if os.IsNotExist(err) {
			return []Task{}, nil
		}
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]Task, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.tasksDir(name), e.Name()))
		if err != nil {
			continue
		}
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			d.logger.Warn("skipping malformed task file",
				zap.String("team", name),
				zap.String("file", e.Name()))
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID() < tasks[j].ID() })
	return tasks, nil
}

// GetTeamState returns config, tasks, and progress for one team.
func (d *Driver) GetTeamState(name string) (*State, error) {
	cfg, err := d.GetTeamConfig(name)
	if err != nil {
		return nil, err
	}
	tasks, err := d.GetTasks(name)
	if err != nil {
		return nil, err
	}
	return &State{
		Config:   cfg,
		Tasks:    tasks,
		Progress: computeProgress(tasks),
	}, nil
}

// GetAllTeamStates returns the state of every team. Teams whose config has
// gone unreadable are skipped.
func (d *Driver) GetAllTeamStates() (map[string]*State, error) {
	names, err := d.ListTeams()
	if err != nil {
		return nil, err
	}
	states := make(map[string]*State, len(names))
	for _, name := range names {
		state, err := d.GetTeamState(name)
		if err != nil {
			d.logger.Warn("skipping unreadable team",
				zap.String("team", name),
				zap.Error(err))
			continue
		}
		states[name] = state
	}
	return states, nil
}

// CreateTask mints an id, stamps createdAt/updatedAt, and writes the task
// file.
func (d *Driver) CreateTask(team string, partial Task) (Task, error) {
	if _, err := d.GetTeamConfig(team); err != nil {
		return nil, err
	}

	task := Task{}
	for k, v := range partial {
		task[k] = v
	}
	now := time.Now().UTC().Format(time.RFC3339)
	id := fmt.Sprintf("task-%d-%s", time.Now().UnixMilli(), randHex(3))
	task["id"] = id
	task["createdAt"] = now
	task["updatedAt"] = now

	if err := writeJSON(filepath.Join(d.tasksDir(team), id+".json"), task); err != nil {
		return nil, fmt.Errorf("failed to write task: %w", err)
	}
	d.publish(events.BuildTeamsTaskSubject(team), map[string]interface{}{
		"team": team,
		"kind": "created",
		"task": task,
	})
	return task, nil
}

// UpdateTask merge-patches a task file and bumps updatedAt. A missing task
// returns nil without error.
func (d *Driver) UpdateTask(team, id string, patch Task) (Task, error) {
	path := filepath.Join(d.tasksDir(team), id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read task: %w", err)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to parse task %s: %w", id, err)
	}

	for k, v := range patch {
		task[k] = v
	}
	task["id"] = id
	task["updatedAt"] = time.Now().UTC().Format(time.RFC3339)

	if err := writeJSON(path, task); err != nil {
		return nil, fmt.Errorf("failed to rewrite task: %w", err)
	}
	d.publish(events.BuildTeamsTaskSubject(team), map[string]interface{}{
		"team": team,
		"kind": "updated",
		"task": task,
	})
	return task, nil
}

// SendMessage mints an id and timestamp and writes the message into the
// recipient's inbox.
func (d *Driver) SendMessage(team string, msg Message) (*Message, error) {
	if msg.To == "" {
		return nil, errors.New("message recipient is required")
	}
	if _, err := d.GetTeamConfig(team); err != nil {
		return nil, err
	}

	msg.ID = fmt.Sprintf("msg-%d-%s", time.Now().UnixMilli(), randHex(3))
	msg.Timestamp = time.Now().UTC()

	path := filepath.Join(d.teamDir(team), "inbox", msg.To, msg.ID+".json")
	if err := writeJSON(path, &msg); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}
	d.publish(events.BuildTeamsMessageSubject(team), map[string]interface{}{
		"team":    team,
		"message": msg,
	})
	return &msg, nil
}

// Broadcast sends one message to every member except the sender.
func (d *Driver) Broadcast(team, from, content, summary string) ([]*Message, error) {
	cfg, err := d.GetTeamConfig(team)
	if err != nil {
		return nil, err
	}

	sent := make([]*Message, 0, len(cfg.Members))
	for _, m := range cfg.Members {
		if m.Name == from {
			continue
		}
		msg, err := d.SendMessage(team, Message{
			Type:    "broadcast",
			From:    from,
			To:      m.Name,
			Content: content,
			Summary: summary,
		})
		if err != nil {
			return sent, err
		}
		sent = append(sent, msg)
	}
	return sent, nil
}

// DeleteTeam stops any watcher and removes the team's directories.
func (d *Driver) DeleteTeam(name string) error {
	if _, err := d.GetTeamConfig(name); err != nil {
		return err
	}
	d.Unwatch(name)

	if err := os.RemoveAll(d.teamDir(name)); err != nil {
		return fmt.Errorf("failed to remove team directory: %w", err)
	}
	if err := os.RemoveAll(d.tasksDir(name)); err != nil {
		return fmt.Errorf("failed to remove task directory: %w", err)
	}
	d.logger.Info("team deleted", zap.String("team", name))
	return nil
}

// Close stops all watchers and kills any spawned coordinator processes.
func (d *Driver) Close() {
	d.StopAll()

	d.mu.Lock()
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	procs := make([]*exec.Cmd, 0, len(d.spawned))
	for _, cmd := range d.spawned {
		procs = append(procs, cmd)
	}
	d.spawned = make(map[string]*exec.Cmd)
	d.mu.Unlock()

	for _, cmd := range procs {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

// publish sends a teams event on the bus.
func (d *Driver) publish(subject string, data map[string]interface{}) {
	event := bus.NewEvent(subject, "teams", data)
	if err := d.bus.Publish(context.Background(), subject, event); err != nil {
		d.logger.Warn("failed to publish teams event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// writeJSON writes 2-space-indented JSON, creating parent directories.
// Indentation matters: external teammate tooling diffs these files.
func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
