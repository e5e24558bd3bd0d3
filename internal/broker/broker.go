// Package broker implements per-group long-poll notification.
//
// Each group owns an independent wait-set. A wait-set is a channel that is
// closed to wake every waiter and then replaced for the next generation, so
// notifications are fire-and-forget: a notify with no waiter present is lost.
// Callers must re-read whatever state they care about after waking.
package broker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

type waitSet struct {
	mu      sync.Mutex
	ch      chan struct{}
	waiters int
}

func newWaitSet() *waitSet {
	return &waitSet{ch: make(chan struct{})}
}

func (w *waitSet) wake() {
	w.mu.Lock()
	defer w.mu.Unlock()
	close(w.ch)
	w.ch = make(chan struct{})
}

// Broker maps group names to wait-sets. Entries are created on first wait and
// removed once their last waiter leaves.
// Thread-safe: registration takes the registry lock exclusively, notification
// shares it, and each group's channel swap is guarded by its own lock.
type Broker struct {
	mu     sync.RWMutex
	groups map[string]*waitSet
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{groups: make(map[string]*waitSet)}
}

// acquire registers a waiter on name and returns the channel generation it
// must block on.
func (b *Broker) acquire(name string) (*waitSet, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ws, ok := b.groups[name]
	if !ok {
		ws = newWaitSet()
		b.groups[name] = ws
	}

	ws.mu.Lock()
	ws.waiters++
	ch := ws.ch
	ws.mu.Unlock()

	return ws, ch
}

func (b *Broker) release(name string, ws *waitSet) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ws.mu.Lock()
	ws.waiters--
	empty := ws.waiters == 0
	ws.mu.Unlock()

	if empty && b.groups[name] == ws {
		delete(b.groups, name)
	}
}

// WaitOnGroup blocks until name is notified, timeout elapses, or ctx is done.
// It reports whether the wake-up came from a notification.
func (b *Broker) WaitOnGroup(ctx context.Context, name string, timeout time.Duration) bool {
	ws, ch := b.acquire(name)
	defer b.release(name, ws)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// NotifyGroup wakes every waiter currently blocked on name. It is a no-op when
// nobody waits.
func (b *Broker) NotifyGroup(name string) {
	b.mu.RLock()
	ws, ok := b.groups[name]
	if ok {
		ws.wake()
	}
	b.mu.RUnlock()
}

// NotifyAll wakes every waiter on every group.
func (b *Broker) NotifyAll() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ws := range b.groups {
		ws.wake()
	}
}

// WaitOnAnyOf races one wait per distinct name and returns as soon as the
// first is notified, together with the name that fired. The remaining waits
// are cancelled and have fully returned before WaitOnAnyOf does.
//
// An empty set blocks for the whole window and reports no notification.
func (b *Broker) WaitOnAnyOf(ctx context.Context, names []string, timeout time.Duration) (bool, string) {
	names = distinct(names)

	switch len(names) {
	case 0:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		return false, ""
	case 1:
		if b.WaitOnGroup(ctx, names[0], timeout) {
			return true, names[0]
		}
		return false, ""
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	woken := make(chan string, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if b.WaitOnGroup(ctx, name, timeout) {
				woken <- name
			}
		}(name)
	}

	var winner string
	select {
	case winner = <-woken:
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()

	// A notification may land in the same instant the window closes.
	if winner == "" {
		select {
		case winner = <-woken:
		default:
		}
	}
	return winner != "", winner
}

// Waiters returns how many contexts are blocked on name.
func (b *Broker) Waiters(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ws, ok := b.groups[name]
	if !ok {
		return 0
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.waiters
}

// Groups returns the names that currently have at least one waiter, sorted.
func (b *Broker) Groups() []string {
	b.mu.RLock()
	names := make([]string, 0, len(b.groups))
	for name := range b.groups {
		names = append(names, name)
	}
	b.mu.RUnlock()
	slices.Sort(names)
	return names
}

func distinct(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
