// Package teams drives the filesystem protocol shared with teammate-mode
// agent processes. Everything lives under one base directory (default
// ~/.claude): team configs and per-member inboxes under teams/<name>, task
// files under tasks/<name>. External tools read and write the same files,
// so every write is 2-space-indented JSON and every read skips files it
// cannot parse.
package teams

import (
	"time"
)

// Member is one agent slot in a team.
type Member struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Model string `json:"model,omitempty"`
}

// Config is the persisted team definition at teams/<name>/config.json.
type Config struct {
	Name      string    `json:"name"`
	Cwd       string    `json:"cwd,omitempty"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// Task is one task file under tasks/<name>/. Tasks are open maps rather
// than a fixed struct: teammate tooling attaches its own fields, and
// UpdateTask merges arbitrary patches without dropping them.
type Task map[string]interface{}

// ID returns the task's id field, empty when missing.
func (t Task) ID() string {
	id, _ := t["id"].(string)
	return id
}

// Status returns the task's status field, empty when missing.
func (t Task) Status() string {
	status, _ := t["status"].(string)
	return status
}

// Task statuses with protocol meaning. Anything else counts as open work.
const (
	TaskStatusCompleted = "completed"
	TaskStatusDeleted   = "deleted"
)

// Message is one inbox file at teams/<team>/inbox/<to>/<id>.json.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress summarizes a team's task list.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Pct       int `json:"pct"`
}

// State is the full view of one team.
type State struct {
	Config   *Config  `json:"config"`
	Tasks    []Task   `json:"tasks"`
	Progress Progress `json:"progress"`
}

// computeProgress counts completed against non-deleted tasks. A team with
// no countable tasks reports zero percent, not a division error.
func computeProgress(tasks []Task) Progress {
	p := Progress{}
	for _, task := range tasks {
		switch task.Status() {
		case TaskStatusDeleted:
		case TaskStatusCompleted:
			p.Completed++
			p.Total++
		default:
			p.Total++
		}
	}
	if p.Total > 0 {
		p.Pct = int(float64(p.Completed)/float64(p.Total)*100 + 0.5)
	}
	return p
}
