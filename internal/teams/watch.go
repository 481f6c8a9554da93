package teams

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/common/constants"
	"github.com/arosstale/pi-builder-sub000/internal/events"
)

// watcher polls one team's task directory and reports changes.
type watcher struct {
	team string
	stop chan struct{}
	last string
}

// Watch starts a polling watcher on a team's task set. Changes are
// detected by comparing the serialized task list between polls; the
// current set is emitted whenever it differs. Watching an already-watched
// team is a no-op.
func (d *Driver) Watch(name string) {
	d.mu.Lock()
	if _, exists := d.watchers[name]; exists {
		d.mu.Unlock()
		return
	}
	w := &watcher{team: name, stop: make(chan struct{})}
	d.watchers[name] = w
	d.mu.Unlock()

	if tasks, err := d.GetTasks(name); err == nil {
		w.last = serializeTasks(tasks)
	}

	go d.pollLoop(w)
	d.logger.Info("watching team tasks", zap.String("team", name))
}

// Unwatch cancels a team's watcher. Unknown teams are a no-op.
func (d *Driver) Unwatch(name string) {
	d.mu.Lock()
	w, ok := d.watchers[name]
	delete(d.watchers, name)
	d.mu.Unlock()
	if ok {
		close(w.stop)
	}
}

// StopAll cancels every watcher.
func (d *Driver) StopAll() {
	d.mu.Lock()
	watchers := d.watchers
	d.watchers = make(map[string]*watcher)
	d.mu.Unlock()

	for _, w := range watchers {
		close(w.stop)
	}
}

// WatchedTeams returns the names of currently watched teams.
func (d *Driver) WatchedTeams() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.watchers))
	for name := range d.watchers {
		names = append(names, name)
	}
	return names
}

func (d *Driver) pollLoop(w *watcher) {
	ticker := time.NewTicker(constants.TeamsPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-d.stopped():
			return
		case <-ticker.C:
			tasks, err := d.GetTasks(w.team)
			if err != nil {
				continue
			}
			current := serializeTasks(tasks)
			if current == w.last {
				continue
			}
			w.last = current
			d.publish(events.BuildTeamsTaskSubject(w.team), map[string]interface{}{
				"team":  w.team,
				"kind":  "changed",
				"tasks": tasks,
			})
		}
	}
}

func (d *Driver) stopped() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop
}

// serializeTasks renders a task list to a comparable string. GetTasks
// sorts by id, so equal sets serialize equally.
func serializeTasks(tasks []Task) string {
	data, err := json.Marshal(tasks)
	if err != nil {
		return ""
	}
	return string(data)
}
