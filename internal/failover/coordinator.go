// Package failover keeps one of two peer instances active.
//
// Each tick the coordinator checks its own liveness, then asks the peer for
// its role:
//
//   - self down: drop the active role.
//   - peer active, self active, self not primary: yield.
//   - peer passive, self passive: promote.
//   - peer unreachable: promote.
//
// Promotion on an unreachable peer favors availability over consistency. If
// the two instances cannot see each other but both still serve clients, both
// end up active (split-brain). This is accepted behavior.
package failover

import (
	"context"
	"log"
	"sync"
	"time"
)

// State is the slice of system state the coordinator reads and drives.
type State interface {
	Alive() bool
	Active() bool
	SetActive(v bool) bool
	IsPrimary() bool
}

// CheckFunc fetches the peer's status.
type CheckFunc func(ctx context.Context, peerURL string) (PeerStatus, error)

// Coordinator runs the failover loop against a single peer.
type Coordinator struct {
	state     State
	peerURL   string
	interval  time.Duration
	timeout   time.Duration
	checkFunc CheckFunc
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewCoordinator creates a coordinator polling peerURL every interval with
// checks bounded by timeout. An empty peerURL makes Start a no-op.
func NewCoordinator(state State, peerURL string, interval, timeout time.Duration) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		state:    state,
		peerURL:  peerURL,
		interval: interval,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.checkFunc = NewPeerClient(timeout).Health
	return c
}

// SetCheckFunction overrides how the peer is queried.
func (c *Coordinator) SetCheckFunction(fn CheckFunc) {
	c.checkFunc = fn
}

// Enabled reports whether a peer is configured.
func (c *Coordinator) Enabled() bool {
	return c.peerURL != ""
}

// Start launches the loop in its own goroutine. It runs until ctx or Stop
// cancels it. Without a peer Start does nothing.
func (c *Coordinator) Start(ctx context.Context) {
	if !c.Enabled() {
		log.Println("Failover coordinator disabled: no peer configured")
		return
	}

	c.wg.Add(1)
	go c.run(ctx)
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	if ctx == nil {
		ctx = c.ctx
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	log.Printf("Failover coordinator started: peer %s, interval %v, primary %t",
		c.peerURL, c.interval, c.state.IsPrimary())

	for {
		select {
		case <-ticker.C:
			c.Tick(ctx)
		case <-ctx.Done():
			log.Println("Failover coordinator stopping due to context cancellation")
			return
		case <-c.ctx.Done():
			log.Println("Failover coordinator stopping due to internal cancellation")
			return
		}
	}
}

// Stop cancels the loop and waits for it to exit.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Tick performs one failover decision.
func (c *Coordinator) Tick(ctx context.Context) {
	if !c.state.Alive() {
		if c.state.Active() {
			log.Println("Failover: instance is down, giving up active role")
			c.state.SetActive(false)
		}
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	peer, err := c.checkFunc(checkCtx, c.peerURL)
	cancel()

	active := c.state.Active()
	if err != nil {
		if !active {
			log.Printf("Failover: peer unreachable (%v), promoting to active", err)
			c.state.SetActive(true)
		}
		return
	}

	switch {
	case peer.Active && active && !c.state.IsPrimary():
		log.Println("Failover: peer is active and this instance is not primary, yielding")
		c.state.SetActive(false)
	case !peer.Active && !active:
		log.Println("Failover: no active instance, promoting to active")
		c.state.SetActive(true)
	}
}
