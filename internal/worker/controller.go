// Package worker drives the agent loop: it polls for tasks, runs one at a
// time, settles reputation and reports progress.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentscore/internal/async"
	"agentscore/internal/clock"
	workererrors "agentscore/internal/errors"
	"agentscore/internal/execution"
	"agentscore/internal/ledger"
	"agentscore/internal/logging"
	"agentscore/internal/moltbook"
	"agentscore/internal/observability"
	"agentscore/internal/reputation"
	"agentscore/internal/scheduler"
	"agentscore/internal/state"
	"agentscore/internal/tasksource"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Trigger names.
const (
	TriggerPoll   = "poll"
	TriggerMock   = "mock-task"
	TriggerReport = "report"
)

var errNotStarted = errors.New("worker: Run called before Start")

// Config tunes the loop.
type Config struct {
	PollInterval   time.Duration
	MockInterval   time.Duration
	ReportInterval time.Duration
	// MockTasks disables synthesis when false.
	MockTasks  bool
	MockPayout string
	// ShutdownGrace bounds how long Shutdown waits for an in-flight task.
	ShutdownGrace time.Duration
	// SettledCacheSize bounds the memory of settled task ids.
	SettledCacheSize int
}

// DefaultConfig mirrors the production cadence.
func DefaultConfig() Config {
	return Config{
		PollInterval:     30 * time.Second,
		MockInterval:     90 * time.Second,
		ReportInterval:   30 * time.Minute,
		MockTasks:        true,
		MockPayout:       tasksource.DefaultPayout,
		ShutdownGrace:    5 * time.Second,
		SettledCacheSize: 1024,
	}
}

// Executor grades a task after doing its work.
type Executor interface {
	Execute(ctx context.Context, task tasksource.Task) (execution.Rating, error)
}

// Deps are the collaborators the controller drives.
type Deps struct {
	Identity string
	Source   tasksource.Source
	Ledger   ledger.Ledger
	Channel  *moltbook.Channel
	Engine   Executor
	Store    state.Store
	Clock    clock.Clock
	Logger   logging.Logger
	Metrics  *observability.MetricsCollector
	Tracer   *observability.TracerProvider
}

// Controller owns every piece of mutable loop state. Only the event loop
// goroutine mutates it once Run has started.
type Controller struct {
	cfg      Config
	identity string
	source   tasksource.Source
	ledger   ledger.Ledger
	channel  *moltbook.Channel
	engine   Executor
	store    state.Store
	clock    clock.Clock
	logger   logging.Logger
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
	sched    *scheduler.Scheduler

	pollCh   chan struct{}
	mockCh   chan struct{}
	reportCh chan struct{}

	snap    state.Snapshot
	synth   *tasksource.Synthesizer
	queue   []tasksource.Task
	settled *lru.Cache[string, tasksource.Status]
	started bool
	remote  *moltbook.AgentStats

	pubMu         sync.RWMutex
	published     Stats
	publishedSnap state.Snapshot

	runMu     sync.Mutex
	cancelRun context.CancelFunc
	loopDone  chan struct{}

	finishOnce sync.Once
}

// New validates deps and returns an idle controller.
func New(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case deps.Identity == "":
		return nil, fmt.Errorf("worker: identity is required")
	case deps.Source == nil:
		return nil, fmt.Errorf("worker: task source is required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("worker: ledger is required")
	case deps.Channel == nil:
		return nil, fmt.Errorf("worker: reporting channel is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("worker: execution engine is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("worker: state store is required")
	}

	defaults := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.MockInterval <= 0 {
		cfg.MockInterval = defaults.MockInterval
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = defaults.ReportInterval
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaults.ShutdownGrace
	}
	if cfg.SettledCacheSize <= 0 {
		cfg.SettledCacheSize = defaults.SettledCacheSize
	}
	if cfg.MockPayout == "" {
		cfg.MockPayout = defaults.MockPayout
	}

	settled, err := lru.New[string, tasksource.Status](cfg.SettledCacheSize)
	if err != nil {
		return nil, fmt.Errorf("worker: settled cache: %w", err)
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = observability.NoopTracerProvider()
	}
	logger := logging.OrNop(deps.Logger)

	return &Controller{
		cfg:      cfg,
		identity: deps.Identity,
		source:   deps.Source,
		ledger:   deps.Ledger,
		channel:  deps.Channel,
		engine:   deps.Engine,
		store:    deps.Store,
		clock:    clock.OrReal(deps.Clock),
		logger:   logger,
		metrics:  deps.Metrics,
		tracer:   tracer,
		sched:    scheduler.New(logger),
		pollCh:   make(chan struct{}, 1),
		mockCh:   make(chan struct{}, 1),
		reportCh: make(chan struct{}, 1),
		settled:  settled,
		loopDone: make(chan struct{}),
	}, nil
}

// Start loads the snapshot, registers with every collaborator, then runs
// one poll and one mock-task synthesis. Every failure degrades to a
// fallback, including an unwritable snapshot, which is retried on the next
// mutation.
func (c *Controller) Start(ctx context.Context) error {
	if c.started {
		return nil
	}

	snap, err := c.store.Load(c.identity)
	if err != nil {
		c.logger.Warn("could not load state, starting from defaults: %v", err)
	} else {
		c.logger.Info("state loaded: reputation %d, %d tasks completed", snap.Reputation, snap.TasksCompleted)
	}
	c.snap = snap
	c.channel.Restore(moltbook.RateState{LastBroadcast: snap.LastBroadcast, LastComment: snap.LastComment})
	c.synth = tasksource.NewSynthesizer(snap.NextTaskID, c.cfg.MockPayout, tasksource.WithClock(c.clock))

	c.snap.Credential = c.channel.Register(ctx)
	c.metrics.RecordReport(ctx, "register", string(c.channel.Registration()))

	c.primeReputation(ctx)
	c.registerWithSource(ctx)

	if err := c.persist(ctx); err != nil {
		logFailure(c.logger, "initial state write", err)
	}
	c.started = true

	c.logger.Info("starting autonomous loop for %s", c.identity)
	c.PollCycle(ctx)
	if c.cfg.MockTasks {
		c.InjectMockTask(ctx)
	}
	return nil
}

func (c *Controller) primeReputation(ctx context.Context) {
	score, err := c.ledger.Score(ctx, c.identity)
	if err != nil {
		c.logger.Warn("could not fetch reputation, using %d: %v", c.snap.Reputation, err)
		return
	}
	c.snap.Reputation = reputation.Clamp(score)
	c.metrics.RecordReputation(ctx, c.snap.Reputation)
	c.logger.Info("current reputation: %d/100", c.snap.Reputation)
}

func (c *Controller) registerWithSource(ctx context.Context) {
	err := c.source.RegisterAgent(ctx, c.identity)
	switch {
	case err == nil:
		c.logger.Info("agent registered with task source")
	case workererrors.IsConflict(err):
		c.logger.Info("agent already registered with task source")
	default:
		c.logger.Warn("task source registration failed: %v", err)
	}
}

// Run fires the three triggers and serializes their work on the calling
// goroutine until ctx ends or Shutdown is called.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started {
		return errNotStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	c.runMu.Lock()
	c.cancelRun = cancel
	c.runMu.Unlock()
	defer cancel()
	defer close(c.loopDone)

	triggers := []scheduler.Trigger{
		{Name: TriggerPoll, Every: c.cfg.PollInterval, Run: func() { signal(c.pollCh) }},
		{Name: TriggerReport, Every: c.cfg.ReportInterval, Run: func() { signal(c.reportCh) }},
	}
	if c.cfg.MockTasks {
		triggers = append(triggers, scheduler.Trigger{Name: TriggerMock, Every: c.cfg.MockInterval, Run: func() { signal(c.mockCh) }})
	}
	for _, trigger := range triggers {
		if err := c.sched.Add(trigger); err != nil {
			return fmt.Errorf("worker: %w", err)
		}
	}
	c.sched.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			c.finish(ctx)
			return nil
		case <-c.pollCh:
			c.PollCycle(ctx)
		case <-c.mockCh:
			c.InjectMockTask(ctx)
		case <-c.reportCh:
			c.MaybeReport(ctx)
		}
	}
}

// signal posts a wakeup without blocking. A wakeup that is already pending
// absorbs the new one.
func signal(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Shutdown stops the loop, waits up to the grace period for the task in
// flight, persists a last snapshot and sends a final heartbeat without
// waiting for it. Safe to call more than once.
func (c *Controller) Shutdown(ctx context.Context) {
	c.runMu.Lock()
	cancel := c.cancelRun
	c.runMu.Unlock()

	if cancel != nil {
		cancel()
		timer := time.NewTimer(c.cfg.ShutdownGrace)
		defer timer.Stop()
		select {
		case <-c.loopDone:
		case <-timer.C:
			c.logger.Warn("in-flight work did not finish within %s, exiting anyway", c.cfg.ShutdownGrace)
		case <-ctx.Done():
		}
	}
	c.finish(ctx)
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.loopDone
}

func (c *Controller) finish(ctx context.Context) {
	c.finishOnce.Do(func() {
		c.sched.Stop()

		stats := c.Stats()
		c.logger.Info("agent shutdown: %d tasks completed, reputation %d/100, %+d gained, %d posts",
			stats.TasksCompleted, stats.Reputation, stats.TotalRepGained, stats.Posts)

		if !c.started {
			return
		}

		snap := c.lastPublished()
		err := c.store.Save(snap)
		c.metrics.RecordSnapshotWrite(ctx, err)
		if err != nil {
			c.logger.Error("final state write failed: %v", err)
		}

		hb := moltbook.Stats{TasksCompleted: stats.TasksCompleted, Reputation: stats.Reputation}
		async.Detach(ctx, c.cfg.ShutdownGrace, c.logger, "final-heartbeat", func(ctx context.Context) {
			outcome := c.channel.Heartbeat(ctx, hb)
			c.metrics.RecordReport(ctx, "heartbeat", outcome.String())
		})
	})
}
