// Package scheduler runs the worker's periodic triggers on robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"agentscore/internal/async"
	"agentscore/internal/logging"

	"github.com/robfig/cron/v3"
)

// Scheduler fires triggers independently of each other. A trigger whose
// previous run has not returned is skipped.
type Scheduler struct {
	cron     *cron.Cron
	logger   logging.Logger
	mu       sync.Mutex
	entryIDs map[string]cron.EntryID // trigger name → cron entry
	started  bool
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a stopped Scheduler.
func New(logger logging.Logger) *Scheduler {
	logger = logging.OrNop(logger)
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:   logger,
		entryIDs: make(map[string]cron.EntryID),
		stopped:  make(chan struct{}),
	}
}

// Add registers a trigger. Names must be unique.
func (s *Scheduler) Add(trigger Trigger) error {
	spec, err := trigger.spec()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entryIDs[trigger.Name]; exists {
		return fmt.Errorf("trigger %q already registered", trigger.Name)
	}

	entryID, err := s.cron.AddFunc(spec, trigger.Run)
	if err != nil {
		return fmt.Errorf("invalid schedule for %q: %w", trigger.Name, err)
	}
	s.entryIDs[trigger.Name] = entryID
	s.logger.Info("Scheduler: registered trigger %q (%s)", trigger.Name, spec)
	return nil
}

// Triggers returns the registered trigger names, sorted.
func (s *Scheduler) Triggers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entryIDs))
	for name := range s.entryIDs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins firing triggers. The scheduler stops when ctx ends or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	count := len(s.entryIDs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started with %d triggers", count)

	async.Go(s.logger, "scheduler.ctx", func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopped:
		}
	})
}

// Stop cancels all triggers. Runs already in progress are not waited for.
// Safe to call multiple times, and before Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cron.Stop()
		close(s.stopped)
		s.logger.Info("Scheduler stopped")
	})
}

// Done returns a channel that is closed once the scheduler has stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// cronLogger routes robfig/cron's logr-style output to the worker logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
