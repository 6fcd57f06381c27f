package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_AddValidates(t *testing.T) {
	sched := New(nil)

	assert.Error(t, sched.Add(Trigger{Name: "", Every: time.Second, Run: func() {}}))
	assert.Error(t, sched.Add(Trigger{Name: "fast", Every: 10 * time.Millisecond, Run: func() {}}))
	assert.Error(t, sched.Add(Trigger{Name: "nofunc", Every: time.Second}))

	require.NoError(t, sched.Add(Trigger{Name: "poll", Every: 30 * time.Second, Run: func() {}}))
	assert.Error(t, sched.Add(Trigger{Name: "poll", Every: time.Minute, Run: func() {}}))

	require.NoError(t, sched.Add(Trigger{Name: "mock", Every: 90 * time.Second, Run: func() {}}))
	assert.Equal(t, []string{"mock", "poll"}, sched.Triggers())
}

func TestScheduler_FiresAndStops(t *testing.T) {
	sched := New(nil)
	var fired atomic.Int32
	require.NoError(t, sched.Add(Trigger{Name: "tick", Every: time.Second, Run: func() { fired.Add(1) }}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	require.Eventually(t, func() bool { return fired.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-sched.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}

	after := fired.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, after, fired.Load(), "no trigger may fire after stop")
}

func TestScheduler_StopIdempotent(t *testing.T) {
	sched := New(nil)
	sched.Stop()
	sched.Stop()

	select {
	case <-sched.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
}
