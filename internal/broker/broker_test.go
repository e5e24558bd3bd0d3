package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForWaiters blocks until n contexts are registered on name.
func waitForWaiters(t *testing.T, b *Broker, name string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.Waiters(name) == n
	}, time.Second, 5*time.Millisecond, "expected %d waiters on %q", n, name)
}

func TestWaitOnGroupNotified(t *testing.T) {
	b := New()

	result := make(chan bool, 1)
	go func() {
		result <- b.WaitOnGroup(context.Background(), "room", 5*time.Second)
	}()

	waitForWaiters(t, b, "room", 1)
	start := time.Now()
	b.NotifyGroup("room")

	select {
	case notified := <-result:
		assert.True(t, notified)
		assert.Less(t, time.Since(start), time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken")
	}

	assert.Equal(t, 0, b.Waiters("room"))
	assert.Empty(t, b.Groups(), "registry entry should be released")
}

func TestWaitOnGroupTimesOut(t *testing.T) {
	b := New()

	start := time.Now()
	notified := b.WaitOnGroup(context.Background(), "quiet", 150*time.Millisecond)

	assert.False(t, notified)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestWaitOnGroupContextCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan bool, 1)
	go func() {
		result <- b.WaitOnGroup(ctx, "room", 5*time.Second)
	}()

	waitForWaiters(t, b, "room", 1)
	cancel()

	select {
	case notified := <-result:
		assert.False(t, notified)
	case <-time.After(time.Second):
		t.Fatal("cancel did not release the waiter")
	}
}

func TestNotifyWithoutWaiterIsLost(t *testing.T) {
	b := New()

	b.NotifyGroup("room")

	notified := b.WaitOnGroup(context.Background(), "room", 100*time.Millisecond)
	assert.False(t, notified, "a notification sent before waiting must not be queued")
}

func TestNotifyGroupWakesEveryWaiter(t *testing.T) {
	b := New()
	const n = 5

	var wg sync.WaitGroup
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- b.WaitOnGroup(context.Background(), "room", 5*time.Second)
		}()
	}

	waitForWaiters(t, b, "room", n)
	b.NotifyGroup("room")
	wg.Wait()
	close(results)

	for notified := range results {
		assert.True(t, notified)
	}
}

func TestNotifyGroupIsScopedToItsGroup(t *testing.T) {
	b := New()

	result := make(chan bool, 1)
	go func() {
		result <- b.WaitOnGroup(context.Background(), "a", 300*time.Millisecond)
	}()

	waitForWaiters(t, b, "a", 1)
	b.NotifyGroup("b")
	b.NotifyGroup("A")

	assert.False(t, <-result, "group names are case-sensitive and independent")
}

func TestNotifyAllWakesEveryGroup(t *testing.T) {
	b := New()
	groups := []string{"a", "b", "c"}

	results := make(chan bool, len(groups))
	for _, g := range groups {
		go func(g string) {
			results <- b.WaitOnGroup(context.Background(), g, 5*time.Second)
		}(g)
	}
	for _, g := range groups {
		waitForWaiters(t, b, g, 1)
	}

	b.NotifyAll()

	for range groups {
		select {
		case notified := <-results:
			assert.True(t, notified)
		case <-time.After(time.Second):
			t.Fatal("NotifyAll missed a group")
		}
	}
}

func TestWaitOnAnyOfReportsGroup(t *testing.T) {
	b := New()

	type outcome struct {
		notified bool
		group    string
	}
	result := make(chan outcome, 1)
	go func() {
		notified, group := b.WaitOnAnyOf(context.Background(), []string{"a", "b", "c"}, 5*time.Second)
		result <- outcome{notified, group}
	}()

	for _, g := range []string{"a", "b", "c"} {
		waitForWaiters(t, b, g, 1)
	}
	b.NotifyGroup("b")

	select {
	case got := <-result:
		assert.True(t, got.notified)
		assert.Equal(t, "b", got.group)
	case <-time.After(time.Second):
		t.Fatal("WaitOnAnyOf did not return")
	}

	// Abandoned sub-waits have unwound by the time WaitOnAnyOf returns.
	assert.Empty(t, b.Groups())
}

func TestWaitOnAnyOfTimesOut(t *testing.T) {
	b := New()

	start := time.Now()
	notified, group := b.WaitOnAnyOf(context.Background(), []string{"a", "b"}, 150*time.Millisecond)

	assert.False(t, notified)
	assert.Empty(t, group)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Empty(t, b.Groups())
}

func TestWaitOnAnyOfEmptySetWaitsFullWindow(t *testing.T) {
	b := New()

	start := time.Now()
	b.NotifyAll()
	notified, _ := b.WaitOnAnyOf(context.Background(), nil, 100*time.Millisecond)

	assert.False(t, notified)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitOnAnyOfDeduplicates(t *testing.T) {
	b := New()

	done := make(chan struct{})
	go func() {
		defer close(done)
		notified, group := b.WaitOnAnyOf(context.Background(), []string{"x", "x"}, 5*time.Second)
		assert.True(t, notified)
		assert.Equal(t, "x", group)
	}()

	waitForWaiters(t, b, "x", 1)
	b.NotifyGroup("x")
	<-done
}
