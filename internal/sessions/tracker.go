// Package sessions keeps track of the live interview sessions of this process.
package sessions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrDraining is returned by Register once the process has started shutting down.
var ErrDraining = errors.New("server is draining")

// Handle lets the tracker reach a running session.
type Handle struct {
	SessionID string
	// Cancel stops the session. It must be safe to call more than once.
	Cancel func()
	// Notify shows a status message to the candidate.
	Notify func(message string)
}

// Tracker indexes sessions by interview. A second connection for the same
// interview takes over: the previous session is canceled.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*entry
	wg       sync.WaitGroup
	draining atomic.Bool
}

type entry struct {
	handle Handle
	once   sync.Once
	done   chan struct{}
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*entry)}
}

// Register adds a session for interviewID. The returned func must be called
// when the session has finished.
func (t *Tracker) Register(interviewID string, h Handle) (unregister func(), err error) {
	if t.IsDraining() {
		return func() {}, ErrDraining
	}
	e := &entry{handle: h, done: make(chan struct{})}

	t.mu.Lock()
	old := t.sessions[interviewID]
	t.sessions[interviewID] = e
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil && old.handle.Cancel != nil {
		old.handle.Cancel()
	}
	return func() { t.unregister(interviewID, e) }, nil
}

func (t *Tracker) unregister(interviewID string, e *entry) {
	e.once.Do(func() {
		t.mu.Lock()
		if t.sessions[interviewID] == e {
			delete(t.sessions, interviewID)
		}
		t.mu.Unlock()
		close(e.done)
		t.wg.Done()
	})
}

// Release cancels the live session for interviewID, if any, and waits until it
// has unregistered or ctx is done. It reports whether a session was running.
func (t *Tracker) Release(ctx context.Context, interviewID string) bool {
	t.mu.Lock()
	e := t.sessions[interviewID]
	t.mu.Unlock()
	if e == nil {
		return false
	}
	if e.handle.Cancel != nil {
		e.handle.Cancel()
	}
	select {
	case <-e.done:
	case <-ctx.Done():
	}
	return true
}

// Active reports whether interviewID currently has a live session.
func (t *Tracker) Active(interviewID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[interviewID]
	return ok
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// NotifyAll sends message to every live session and returns how many got it.
func (t *Tracker) NotifyAll(message string) int {
	var notify []func(string)
	t.mu.Lock()
	for _, e := range t.sessions {
		if e.handle.Notify != nil {
			notify = append(notify, e.handle.Notify)
		}
	}
	t.mu.Unlock()

	for _, n := range notify {
		n(message)
	}
	return len(notify)
}

// CancelAll cancels every live session and returns how many were canceled.
func (t *Tracker) CancelAll() int {
	var cancels []func()
	t.mu.Lock()
	for _, e := range t.sessions {
		if e.handle.Cancel != nil {
			cancels = append(cancels, e.handle.Cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

// Wait blocks until every registered session has unregistered or ctx is done.
// It reports whether all sessions finished.
func (t *Tracker) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// SetDraining stops new registrations; readiness checks report not ready.
func (t *Tracker) SetDraining(draining bool) { t.draining.Store(draining) }

func (t *Tracker) IsDraining() bool { return t.draining.Load() }
