// Package state holds the process-wide liveness and role flags.
//
// Every read and write goes through the lock-guarded accessors. A setter that
// flips a flag broadcasts once to every long-poll waiter so both status and
// group subscribers observe the change.
package state

import (
	"log"
	"sync"
)

// Notifier is woken on every flag flip.
type Notifier interface {
	NotifyAll()
}

// Options seeds a SystemState from configuration.
type Options struct {
	Active    bool
	PeerURL   string
	IsPrimary bool
}

// Status is a consistent copy of both flags.
type Status struct {
	Alive  bool
	Active bool
}

// SystemState is the shared alive/active state of this instance.
type SystemState struct {
	mu        sync.Mutex
	alive     bool
	active    bool
	peerURL   string
	isPrimary bool
	notifier  Notifier
}

// New returns an alive state with the configured initial role. notifier may be nil.
func New(opts Options, notifier Notifier) *SystemState {
	return &SystemState{
		alive:     true,
		active:    opts.Active,
		peerURL:   opts.PeerURL,
		isPrimary: opts.IsPrimary,
		notifier:  notifier,
	}
}

// Alive reports whether the instance is up.
func (s *SystemState) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Active reports whether the instance currently holds the active role.
func (s *SystemState) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Snapshot reads both flags under one lock acquisition.
func (s *SystemState) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Alive: s.alive, Active: s.active}
}

// PeerURL is fixed at startup.
func (s *SystemState) PeerURL() string {
	return s.peerURL
}

// IsPrimary is fixed at startup.
func (s *SystemState) IsPrimary() bool {
	return s.isPrimary
}

// SetAlive stores v and broadcasts if the value changed. It reports whether it did.
func (s *SystemState) SetAlive(v bool) bool {
	s.mu.Lock()
	changed := s.alive != v
	s.alive = v
	s.mu.Unlock()

	if changed {
		log.Printf("System alive flag changed to %t", v)
		s.broadcast()
	}
	return changed
}

// SetActive stores v and broadcasts if the value changed. It reports whether it did.
func (s *SystemState) SetActive(v bool) bool {
	s.mu.Lock()
	changed := s.active != v
	s.active = v
	s.mu.Unlock()

	if changed {
		log.Printf("System active flag changed to %t", v)
		s.broadcast()
	}
	return changed
}

// broadcast runs outside the state lock so a waiter that wakes can re-read
// the flags without contending with the setter.
func (s *SystemState) broadcast() {
	if s.notifier != nil {
		s.notifier.NotifyAll()
	}
}
