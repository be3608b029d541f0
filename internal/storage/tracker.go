package storage

import (
	"context"
	"sync"
	"time"
)

// DefaultCopyRetention is how long a finished copy stays visible when nobody polls it.
const DefaultCopyRetention = 10 * time.Minute

type trackedCopy struct {
	status   CopyStatus
	gen      uint64
	finished time.Time
}

// CopyTracker runs copy operations in the background and remembers their outcome by destination.
// Backends whose copy primitive is synchronous use it to expose the start/poll surface.
// Finished copies are dropped on the first poll that sees them, or after the retention period
// when the poller gave up.
type CopyTracker struct {
	mu        sync.Mutex
	copies    map[string]trackedCopy
	gen       uint64
	retention time.Duration
	now       func() time.Time
}

func NewCopyTracker() *CopyTracker {
	return &CopyTracker{copies: make(map[string]trackedCopy), retention: DefaultCopyRetention, now: time.Now}
}

// Start marks dst pending and runs fn in its own goroutine.
// fn gets a context detached from ctx's cancellation so the copy outlives the caller's request.
func (t *CopyTracker) Start(ctx context.Context, dst string, fn func(ctx context.Context) error) {
	t.mu.Lock()
	t.prune()
	t.gen++
	gen := t.gen
	t.copies[dst] = trackedCopy{status: CopyStatus{State: CopyPending}, gen: gen}
	t.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		if err := fn(bg); err != nil {
			t.finish(dst, gen, CopyStatus{State: CopyFailed, Detail: err.Error()})
			return
		}
		t.finish(dst, gen, CopyStatus{State: CopySuccess})
	}()
}

// Status returns the last known status for dst.
func (t *CopyTracker) Status(dst string) (CopyStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune()
	c, ok := t.copies[dst]
	return c.status, ok
}

// Forget drops a finished copy from memory.
func (t *CopyTracker) Forget(dst string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.copies[dst]; ok && c.status.State != CopyPending {
		delete(t.copies, dst)
	}
}

// finish records the outcome unless a newer copy to dst has started since.
func (t *CopyTracker) finish(dst string, gen uint64, st CopyStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.copies[dst]; ok && c.gen == gen {
		t.copies[dst] = trackedCopy{status: st, gen: gen, finished: t.now()}
	}
}

// prune expects t.mu held.
func (t *CopyTracker) prune() {
	if t.retention <= 0 {
		return
	}
	cutoff := t.now().Add(-t.retention)
	for dst, c := range t.copies {
		if c.status.State != CopyPending && c.finished.Before(cutoff) {
			delete(t.copies, dst)
		}
	}
}
