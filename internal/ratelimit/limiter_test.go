package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := New(3, time.Minute, 0, WithClock(clock.now))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Admit("client-a"))
	}
	assert.False(t, l.Admit("client-a"), "fourth request within window should be denied")
}

func TestLimiter_BlocksForCooldownAfterTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := New(1, time.Minute, 30*time.Second, WithClock(clock.now))

	require.True(t, l.Admit("c"))
	require.False(t, l.Admit("c")) // trips blockedUntil = now+30s

	clock.advance(10 * time.Second)
	assert.False(t, l.Admit("c"), "still within cooldown")

	clock.advance(55 * time.Second) // now at 65s: cooldown ended at 30s and the t=0 request has left the 60s window
	assert.True(t, l.Admit("c"))
}

func TestLimiter_WindowSlides(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := New(2, time.Second, 0, WithClock(clock.now))

	require.True(t, l.Admit("c"))
	require.True(t, l.Admit("c"))
	require.False(t, l.Admit("c"))

	clock.advance(2 * time.Second)
	assert.True(t, l.Admit("c"), "old timestamps should have aged out of the window")
}

func TestLimiter_PerClientIsolation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := New(1, time.Minute, 0, WithClock(clock.now))

	require.True(t, l.Admit("alice"))
	assert.True(t, l.Admit("bob"), "distinct clients have independent windows")
}

func TestLimiter_SweepRemovesStaleClients(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := New(5, time.Second, 0, WithClock(clock.now))

	require.True(t, l.Admit("c"))
	clock.advance(5 * time.Second)
	l.Sweep()

	l.mu.Lock()
	_, exists := l.clients["c"]
	l.mu.Unlock()
	assert.False(t, exists, "sweep should have dropped the long-idle client")
}
