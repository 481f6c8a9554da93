package threads

import (
	"encoding/json"
	"sync"
	"time"
)

// Thread types. Base, L, and Z threads carry the task text verbatim; B
// delegates to a named agent; C chains steps with artifact handoff; P runs
// steps in parallel; F replicates one task across agents for fusion.
const (
	TypeBase     = "base"
	TypeDelegate = "b"
	TypeChain    = "c"
	TypeParallel = "p"
	TypeFusion   = "f"
	TypeLong     = "l"
	TypeZero     = "z"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusIdle    = "idle"
	StatusError   = "error"
	StatusKilled  = "killed"
)

// Step is one unit of a chain or parallel thread.
type Step struct {
	Agent  string   `json:"agent"`
	Task   string   `json:"task"`
	Output string   `json:"output,omitempty"`
	Reads  []string `json:"reads,omitempty"`
	Model  string   `json:"model,omitempty"`
}

// Spec is a high-level thread description compiled into a slash command.
type Spec struct {
	Type        string   `json:"type"`
	Task        string   `json:"task,omitempty"`
	Agent       string   `json:"agent,omitempty"`
	Steps       []Step   `json:"steps,omitempty"`
	Agents      []string `json:"agents,omitempty"`
	Cwd         string   `json:"cwd,omitempty"`
	SkipClarify bool     `json:"skipClarify,omitempty"`
	Async       bool     `json:"async,omitempty"`
}

// Event is one recorded update of a thread run.
type Event struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	TextDelta string          `json:"textDelta,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Run is one launched thread. The run owns a dedicated RPC session whose id
// equals the thread id.
type Run struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Type      string    `json:"type"`
	Command   string    `json:"command"`
	Async     bool      `json:"async,omitempty"`
	StartedAt time.Time `json:"startedAt"`

	mu     sync.Mutex
	status string
	events []Event
}

// Status returns the run's current status.
func (r *Run) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Events returns a copy of the recorded event log.
func (r *Run) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Run) setStatus(status string) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
}

func (r *Run) appendEvent(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Snapshot is the wire representation of a run.
type Snapshot struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Type      string    `json:"type"`
	Command   string    `json:"command"`
	Status    string    `json:"status"`
	Async     bool      `json:"async,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Events    int       `json:"events"`
}

// Snapshot captures the run's externally visible state.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		ID:        r.ID,
		SessionID: r.SessionID,
		Type:      r.Type,
		Command:   r.Command,
		Status:    r.status,
		Async:     r.Async,
		StartedAt: r.StartedAt,
		Events:    len(r.events),
	}
}
