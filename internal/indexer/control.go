package indexer

import (
	"sync"

	"github.com/starford/othala/internal/models"
)

// Control is the run handle for one bulk indexing run. The caller keeps it
// to pause, resume, or cancel the run and to read progress snapshots; the
// run goroutine is the only writer of progress (single-writer discipline,
// so counters never double-count).
type Control struct {
	mu       sync.Mutex
	cond     *sync.Cond
	status   models.RunStatus
	progress models.Progress
}

// NewControl returns a run handle in the Pending state.
func NewControl() *Control {
	c := &Control{status: models.RunPending}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Status returns the current run status.
func (c *Control) Status() models.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Progress returns a snapshot of the run's progress.
func (c *Control) Progress() models.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.progress
	p.Errors = append([]string(nil), c.progress.Errors...)
	return p
}

// Pause suspends dispatch of new page work. In-flight pages complete on
// their own. No-op unless the run is Running.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == models.RunRunning {
		c.status = models.RunPaused
	}
}

// Resume continues a paused run.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == models.RunPaused {
		c.status = models.RunRunning
		c.cond.Broadcast()
	}
}

// Cancel stops the run before its next unit of work. Cooperative: nothing
// is killed mid-page.
func (c *Control) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.status.Terminal() {
		c.status = models.RunCancelled
		c.cond.Broadcast()
	}
}

// proceed blocks while the run is paused and reports whether the next unit
// of work may start. It returns false once the run is cancelled or
// otherwise terminal.
func (c *Control) proceed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.status == models.RunPaused {
		c.cond.Wait()
	}
	return c.status == models.RunRunning
}

// transition moves the run to a new status unless it is already terminal.
func (c *Control) transition(to models.RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.status.Terminal() {
		c.status = to
		c.cond.Broadcast()
	}
	c.progress.Status = c.status
}

// update applies fn to the progress record under the run lock and returns
// the resulting snapshot.
func (c *Control) update(fn func(*models.Progress)) models.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.progress)
	c.progress.Status = c.status
	p := c.progress
	p.Errors = append([]string(nil), c.progress.Errors...)
	return p
}
