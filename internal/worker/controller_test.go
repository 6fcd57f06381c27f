package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentscore/internal/clock"
	workererrors "agentscore/internal/errors"
	"agentscore/internal/execution"
	"agentscore/internal/ledger"
	"agentscore/internal/moltbook"
	"agentscore/internal/state"
	"agentscore/internal/tasksource"
)

const identity = "0xf94b361a541301f572c1f832e5afbda4731e864f"

var epoch = time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu          sync.Mutex
	listed      []tasksource.Task
	listErr     error
	acceptErr   error
	completeErr error
	registerErr error
	accepted    []string
	completed   map[string]int
}

func (f *fakeSource) ListAvailable(context.Context, string) ([]tasksource.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tasksource.Task(nil), f.listed...), f.listErr
}

func (f *fakeSource) Accept(_ context.Context, taskID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, taskID)
	return f.acceptErr
}

func (f *fakeSource) Complete(_ context.Context, taskID string, rating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed == nil {
		f.completed = map[string]int{}
	}
	f.completed[taskID] = rating
	return f.completeErr
}

func (f *fakeSource) RegisterAgent(context.Context, string) error { return f.registerErr }

func (f *fakeSource) acceptedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.accepted...)
}

// scriptedEngine returns ratings in order, repeating the last one. With
// block set it waits for ctx; with hold set it ignores ctx and waits for
// hold to close.
type scriptedEngine struct {
	mu      sync.Mutex
	ratings []int
	calls   int
	block   bool

	hold        chan struct{}
	entered     chan struct{}
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (e *scriptedEngine) Execute(ctx context.Context, _ tasksource.Task) (execution.Rating, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		peak := e.maxInFlight.Load()
		if n <= peak || e.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	if e.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if e.hold != nil {
		if e.entered != nil {
			e.entered <- struct{}{}
		}
		<-e.hold
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.calls
	if i >= len(e.ratings) {
		i = len(e.ratings) - 1
	}
	e.calls++
	return e.ratings[i], nil
}

// failingStore loads like state.Memory but never persists.
type failingStore struct {
	*state.Memory
	attempts atomic.Int32
}

func (s *failingStore) Save(state.Snapshot) error {
	s.attempts.Add(1)
	return workererrors.New(workererrors.KindLocalCorruption, "state.save", errors.New("read-only file system"))
}

type harness struct {
	source *fakeSource
	engine *scriptedEngine
	ledger *ledger.Memory
	// scores replaces ledger when set.
	scores  ledger.Ledger
	store   state.Store
	clock   *clock.Fake
	channel *moltbook.Channel
	ctrl    *Controller
}

func newHarness(t *testing.T, store state.Store, ratings ...int) *harness {
	t.Helper()
	clk := clock.NewFake(epoch)
	if store == nil {
		store = state.NewMemory(clk)
	}
	if len(ratings) == 0 {
		ratings = []int{80}
	}
	h := &harness{
		source:  &fakeSource{},
		engine:  &scriptedEngine{ratings: ratings},
		ledger:  ledger.NewMemory(),
		store:   store,
		clock:   clk,
		channel: moltbook.NewChannel(moltbook.ChannelConfig{Identity: identity, Clock: clk}),
	}
	h.ctrl = h.build(t)
	return h
}

func (h *harness) build(t *testing.T) *Controller {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ShutdownGrace = time.Second
	ctrl, err := New(cfg, Deps{
		Identity: identity,
		Source:   h.source,
		Ledger:   h.scoreLedger(),
		Channel:  h.channel,
		Engine:   h.engine,
		Store:    h.store,
		Clock:    h.clock,
	})
	require.NoError(t, err)
	return ctrl
}

func (h *harness) scoreLedger() ledger.Ledger {
	if h.scores != nil {
		return h.scores
	}
	return h.ledger
}

func TestStartFromMissingSnapshotThenFirstTask(t *testing.T) {
	h := newHarness(t, nil, 92)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Start(ctx))
	stats := h.ctrl.Stats()
	assert.Equal(t, 50, stats.Reputation)
	assert.Zero(t, stats.TasksCompleted)
	assert.Equal(t, 1, stats.Queued, "start synthesizes one task")

	h.ctrl.PollCycle(ctx)

	stats = h.ctrl.Stats()
	assert.Equal(t, 52, stats.Reputation)
	assert.Equal(t, 1, stats.TasksCompleted)
	assert.Equal(t, 2, stats.TotalRepGained)
	assert.Equal(t, "0.50", stats.TotalPayout)
	assert.Equal(t, []string{"1000"}, h.source.acceptedIDs())

	score, err := h.ledger.Score(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, 52, score)
}

func TestTwoTasksHighThenLowRating(t *testing.T) {
	h := newHarness(t, nil, 95, 40)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	h.ctrl.InjectMockTask(ctx)

	h.ctrl.PollCycle(ctx)
	h.ctrl.PollCycle(ctx)

	stats := h.ctrl.Stats()
	assert.Equal(t, 49, stats.Reputation)
	assert.Equal(t, 2, stats.TasksCompleted)
	assert.Equal(t, -1, stats.TotalRepGained)
}

func TestStartPrimesReputationFromLedger(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ledger.SetScore(context.Background(), identity, 73))

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, 73, h.ctrl.Stats().Reputation)
}

func TestRegistrationFailureStillPolls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	h := newHarness(t, nil, 85)
	h.channel = moltbook.NewChannel(moltbook.ChannelConfig{
		Identity: identity,
		Client:   moltbook.NewClient(srv.URL, &http.Client{Timeout: time.Second}),
		Clock:    h.clock,
	})
	h.source.registerErr = workererrors.New(workererrors.KindTransientRemote, "tasksource.register", assert.AnError)
	h.ctrl = h.build(t)

	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	assert.True(t, strings.HasPrefix(h.channel.Credential(), "demo-key-fallback-"))

	h.ctrl.PollCycle(ctx)
	assert.Equal(t, 1, h.ctrl.Stats().TasksCompleted)
}

func TestOneTaskPerPollCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.cfg.MockTasks = false
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	h.source.listed = []tasksource.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	h.source.accepted = nil

	h.ctrl.PollCycle(ctx)
	assert.Equal(t, []string{"a"}, h.source.acceptedIDs())
	assert.Equal(t, 1, h.ctrl.Stats().TasksCompleted)

	// The settled task is not taken again even though the source still lists it.
	h.ctrl.PollCycle(ctx)
	assert.Equal(t, []string{"a", "b"}, h.source.acceptedIDs())
}

func TestQueuedTaskBeatsSourceTasks(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	h.source.listed = []tasksource.Task{{ID: "remote-1"}}

	h.ctrl.PollCycle(ctx)
	assert.Equal(t, []string{"1000"}, h.source.acceptedIDs())
}

func TestAcceptFailureAbandonsTask(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.cfg.MockTasks = false
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))

	h.source.listed = []tasksource.Task{{ID: "7"}}
	h.source.acceptErr = workererrors.FromStatus("tasksource.accept", http.StatusConflict, "already taken")

	h.ctrl.PollCycle(ctx)
	assert.Zero(t, h.ctrl.Stats().TasksCompleted)
	assert.Empty(t, h.source.completed)
	assert.Equal(t, 50, h.ctrl.Stats().Reputation)

	// Not settled, so a later cycle may pick it up again.
	h.source.acceptErr = nil
	h.ctrl.PollCycle(ctx)
	assert.Equal(t, []string{"7", "7"}, h.source.acceptedIDs())
	assert.Equal(t, 1, h.ctrl.Stats().TasksCompleted)
}

func TestCompleteFailureStillCounts(t *testing.T) {
	h := newHarness(t, nil, 90)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	h.source.completeErr = workererrors.FromStatus("tasksource.complete", http.StatusBadGateway, "")

	h.ctrl.PollCycle(ctx)
	stats := h.ctrl.Stats()
	assert.Equal(t, 1, stats.TasksCompleted)
	assert.Equal(t, 52, stats.Reputation)
	status, ok := h.ctrl.settled.Get("1000")
	require.True(t, ok)
	assert.Equal(t, tasksource.StatusCompleteFailed, status)
}

func TestListFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.cfg.MockTasks = false
	h.source.listErr = workererrors.New(workererrors.KindTransientRemote, "tasksource.list", assert.AnError)

	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	h.ctrl.PollCycle(ctx)
	assert.Zero(t, h.ctrl.Stats().TasksCompleted)
}

func TestCanceledExecutionIsNotCounted(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	h.engine.block = true

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	h.ctrl.PollCycle(canceled)
	assert.Zero(t, h.ctrl.Stats().TasksCompleted)
	assert.Empty(t, h.source.completed)
}

func TestMaybeReportDelegatesRateLimit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))

	h.ctrl.MaybeReport(ctx)
	assert.Equal(t, epoch, h.ctrl.Stats().LastBroadcast)

	h.clock.Advance(10 * time.Minute)
	h.ctrl.MaybeReport(ctx)
	assert.Equal(t, 1, h.channel.Posts())

	h.clock.Advance(20 * time.Minute)
	h.ctrl.MaybeReport(ctx)
	assert.Equal(t, 2, h.channel.Posts())
	assert.Equal(t, epoch.Add(30*time.Minute), h.ctrl.Stats().LastBroadcast)
}

func TestRestartResumesIdentically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	clk := clock.NewFake(epoch)
	store := state.NewFileStore(path, clk, nil)

	h := newHarness(t, store, 91)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	h.ctrl.PollCycle(ctx)
	h.ctrl.MaybeReport(ctx)
	h.ctrl.Shutdown(ctx)
	before := h.ctrl.Stats()

	// A new process: fresh channel and controller over the same file.
	h.channel = moltbook.NewChannel(moltbook.ChannelConfig{Identity: identity, Clock: h.clock})
	h.ledger = ledger.NewMemory()
	h.ctrl = h.build(t)
	h.ctrl.cfg.MockTasks = false
	require.NoError(t, h.ctrl.Start(ctx))
	after := h.ctrl.Stats()

	assert.Equal(t, before.Reputation, after.Reputation)
	assert.Equal(t, before.TasksCompleted, after.TasksCompleted)
	assert.Equal(t, before.TotalRepGained, after.TotalRepGained)
	assert.Equal(t, before.TotalPayout, after.TotalPayout)
	assert.Equal(t, before.NextTaskID, after.NextTaskID)
	assert.True(t, before.LastBroadcast.Equal(after.LastBroadcast))
	assert.True(t, before.LastComment.Equal(after.LastComment))
	assert.True(t, before.StartedAt.Equal(after.StartedAt))

	// The restored window still blocks an early broadcast.
	assert.Equal(t, moltbook.Skipped, h.channel.Broadcast(ctx, "too soon"))
}

func TestRunAndShutdown(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	assert.ErrorIs(t, h.ctrl.Run(ctx), errNotStarted)

	h = newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(ctx))

	errCh := make(chan error, 1)
	go func() { errCh <- h.ctrl.Run(ctx) }()

	require.Eventually(t, func() bool { return len(h.ctrl.sched.Triggers()) == 3 }, time.Second, 5*time.Millisecond)

	h.ctrl.Shutdown(ctx)
	h.ctrl.Shutdown(ctx)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
	select {
	case <-h.ctrl.sched.Done():
	default:
		t.Fatal("scheduler still running")
	}
}

func TestShutdownCancelsCooperativeWork(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	h.engine.block = true

	go func() { _ = h.ctrl.Run(ctx) }()
	require.Eventually(t, func() bool { return len(h.ctrl.sched.Triggers()) == 3 }, time.Second, 5*time.Millisecond)
	signal(h.ctrl.pollCh)

	start := time.Now()
	h.ctrl.Shutdown(ctx)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestShutdownBoundedByGrace(t *testing.T) {
	store := state.NewMemory(clock.NewFake(epoch))
	h := newHarness(t, store)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))

	// Work that ignores cancellation entirely.
	h.engine.hold = make(chan struct{})
	h.engine.entered = make(chan struct{}, 1)
	defer close(h.engine.hold)

	go func() { _ = h.ctrl.Run(ctx) }()
	require.Eventually(t, func() bool { return len(h.ctrl.sched.Triggers()) == 3 }, time.Second, 5*time.Millisecond)
	signal(h.ctrl.pollCh)
	select {
	case <-h.engine.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("task never started")
	}
	savesBefore := store.Saves()

	start := time.Now()
	h.ctrl.Shutdown(ctx)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond, "waits for the grace period")
	assert.Less(t, elapsed, 2500*time.Millisecond, "does not wait past the grace period")
	assert.Greater(t, store.Saves(), savesBefore, "final snapshot written")

	snap, err := store.Load(identity)
	require.NoError(t, err)
	assert.Zero(t, snap.TasksCompleted, "the stuck task is not counted")
	select {
	case <-h.ctrl.Done():
		t.Fatal("loop cannot have exited while the task is stuck")
	default:
	}
}

func TestPollSignalsCoalesceWhileTaskInFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.cfg.MockTasks = false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.ctrl.Start(ctx))
	h.source.listed = []tasksource.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	hold := make(chan struct{})
	h.engine.hold = hold
	h.engine.entered = make(chan struct{}, 4)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()
	require.Eventually(t, func() bool { return len(h.ctrl.sched.Triggers()) == 2 }, time.Second, 5*time.Millisecond)

	signal(h.ctrl.pollCh)
	<-h.engine.entered
	for i := 0; i < 3; i++ {
		signal(h.ctrl.pollCh)
	}
	assert.Equal(t, []string{"a"}, h.source.acceptedIDs())

	close(hold)
	<-h.engine.entered
	require.Eventually(t, func() bool { return h.ctrl.Stats().TasksCompleted == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{"a", "b"}, h.source.acceptedIDs(), "pending polls collapse into one")
	assert.EqualValues(t, 1, h.engine.maxInFlight.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestStartSurvivesUnwritableState(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := &failingStore{Memory: state.NewMemory(clk)}
	h := newHarness(t, store, 92)

	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	assert.GreaterOrEqual(t, store.attempts.Load(), int32(1))
	assert.Equal(t, 50, h.ctrl.Stats().Reputation)

	h.ctrl.PollCycle(ctx)
	assert.Equal(t, 1, h.ctrl.Stats().TasksCompleted, "the loop keeps running in memory")
	assert.Equal(t, 52, h.ctrl.Stats().Reputation)
}

func TestLedgerWithoutScoreKeepsSnapshotReputation(t *testing.T) {
	for name, body := range map[string]string{
		"empty object":  `{}`,
		"missing field": `{"agent":"x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			var writes atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPut {
					writes.Add(1)
				}
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			// No snapshot: the bootstrap score stands.
			h := newHarness(t, nil)
			h.scores = ledger.NewHTTP(srv.URL, srv.Client())
			h.ctrl = h.build(t)
			require.NoError(t, h.ctrl.Start(context.Background()))
			assert.Equal(t, 50, h.ctrl.Stats().Reputation)

			// A persisted snapshot survives a restart against the same ledger.
			clk := clock.NewFake(epoch)
			store := state.NewMemory(clk)
			snap := state.Defaults(identity, epoch)
			snap.Reputation = 64
			snap.TasksCompleted = 7
			require.NoError(t, store.Save(snap))

			h = newHarness(t, store)
			h.scores = ledger.NewHTTP(srv.URL, srv.Client())
			h.ctrl = h.build(t)
			require.NoError(t, h.ctrl.Start(context.Background()))
			assert.Equal(t, 64, h.ctrl.Stats().Reputation)
			assert.Equal(t, 7, h.ctrl.Stats().TasksCompleted)
			assert.Zero(t, writes.Load(), "nothing written back on start")
		})
	}
}

func TestRepGainedCountsRawDeltaAtCap(t *testing.T) {
	h := newHarness(t, nil, 95)
	require.NoError(t, h.ledger.SetScore(context.Background(), identity, 100))

	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	h.ctrl.PollCycle(ctx)

	stats := h.ctrl.Stats()
	assert.Equal(t, 100, stats.Reputation)
	assert.Equal(t, 1, stats.TasksCompleted)
	assert.Equal(t, 2, stats.TotalRepGained)
}

func TestMaybeReportPublishesRemoteStats(t *testing.T) {
	var heartbeats atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/agents/register":
			_, _ = io.WriteString(w, `{"apiKey":"k"}`)
		case "/agents/heartbeat":
			heartbeats.Add(1)
			_, _ = io.WriteString(w, `{}`)
		case "/agents/" + identity + "/stats":
			_, _ = io.WriteString(w, `{"followers":3,"posts":5,"comments":8,"karma":21}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	h := newHarness(t, nil)
	h.channel = moltbook.NewChannel(moltbook.ChannelConfig{
		Identity: identity,
		Client:   moltbook.NewClient(srv.URL, srv.Client()),
		Clock:    h.clock,
	})
	h.ctrl = h.build(t)

	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	assert.Nil(t, h.ctrl.Stats().Moltbook)
	assert.Equal(t, moltbook.RegistrationIssued, h.channel.Registration())

	h.ctrl.MaybeReport(ctx)
	assert.EqualValues(t, 1, heartbeats.Load())
	remote := h.ctrl.Stats().Moltbook
	require.NotNil(t, remote)
	assert.Equal(t, 5, remote.Posts)
	assert.Equal(t, 21, remote.Karma)
}

func TestNewValidatesDeps(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestAddPayout(t *testing.T) {
	assert.Equal(t, "0.50", addPayout("", "0.50"))
	assert.Equal(t, "1.00", addPayout("0.50", "0.50"))
	assert.Equal(t, "1.75", addPayout("1.25", "0.5"))
	assert.Equal(t, "2.123456", addPayout("2", "0.123456"))
	assert.Equal(t, "2.00", addPayout("2.00", "abc"))
}
