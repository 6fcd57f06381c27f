package worker

import (
	"context"
	"fmt"
	"time"

	workererrors "agentscore/internal/errors"
	"agentscore/internal/logging"
	"agentscore/internal/observability"
	"agentscore/internal/reputation"
	"agentscore/internal/tasksource"

	"go.opentelemetry.io/otel/attribute"
)

// Poll outcomes recorded in metrics.
const (
	pollTask  = "task"
	pollIdle  = "idle"
	pollError = "error"
)

// PollCycle runs at most one task: the oldest queued task if any, else the
// first unsettled task the source lists.
func (c *Controller) PollCycle(ctx context.Context) {
	ctx = observability.ContextWithCycleID(ctx, logging.NewCycleID())
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanPollCycle)
	logger := logging.FromContext(ctx, c.logger)

	task, ok, err := c.nextTask(ctx)
	if err != nil {
		c.metrics.RecordPoll(ctx, pollError)
		logFailure(logger, "poll", err)
		observability.EndSpan(span, err)
		return
	}
	if !ok {
		c.metrics.RecordPoll(ctx, pollIdle)
		logger.Info("polling tasks... (none available)")
		observability.EndSpan(span, nil)
		return
	}

	c.metrics.RecordPoll(ctx, pollTask)
	c.AcceptAndComplete(ctx, task)
	observability.EndSpan(span, nil)
}

func (c *Controller) nextTask(ctx context.Context) (tasksource.Task, bool, error) {
	if len(c.queue) > 0 {
		task := c.queue[0]
		c.queue = c.queue[1:]
		c.publish()
		logging.FromContext(ctx, c.logger).Info("task from queue: #%s", task.ID)
		return task, true, nil
	}

	tasks, err := c.source.ListAvailable(ctx, c.identity)
	if err != nil {
		return tasksource.Task{}, false, err
	}
	for _, task := range tasks {
		if _, settled := c.settled.Get(task.ID); settled {
			continue
		}
		logging.FromContext(ctx, c.logger).Info("found %d task(s), taking #%s", len(tasks), task.ID)
		return task, true, nil
	}
	return tasksource.Task{}, false, nil
}

// AcceptAndComplete takes one task through accept, execute and complete,
// then applies the reputation change and persists the snapshot. An accept
// failure abandons the task. A complete failure is logged and the task still
// counts locally.
func (c *Controller) AcceptAndComplete(ctx context.Context, task tasksource.Task) {
	started := c.clock.Now()
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanTask, observability.TaskAttrs(task.ID, string(task.Origin))...)
	logger := logging.FromContext(ctx, c.logger)

	c.setCurrent(&task)
	defer c.setCurrent(nil)

	logger.Info("accepting task #%s...", task.ID)
	if err := c.source.Accept(ctx, task.ID, c.identity); err != nil {
		task.Status = tasksource.StatusAcceptFailed
		logFailure(logger, fmt.Sprintf("accept task #%s", task.ID), err)
		c.metrics.RecordTask(ctx, string(task.Status), string(task.Origin), c.clock.Now().Sub(started))
		span.SetAttributes(attribute.String(observability.AttrStatus, string(task.Status)))
		observability.EndSpan(span, err)
		return
	}
	task.Status = tasksource.StatusAccepted
	logger.Info("task #%s accepted", task.ID)

	task.Status = tasksource.StatusExecuting
	rating, err := c.engine.Execute(ctx, task)
	if err != nil {
		// Accepted but never completed; the source may hand it out again.
		logFailure(logger, fmt.Sprintf("execute task #%s", task.ID), err)
		c.metrics.RecordTask(ctx, "abandoned", string(task.Origin), c.clock.Now().Sub(started))
		observability.EndSpan(span, err)
		return
	}
	logger.Info("task #%s completed with rating %d/100", task.ID, rating)
	span.SetAttributes(attribute.Int(observability.AttrRating, rating))

	task.Status = tasksource.StatusCompleted
	if err := c.source.Complete(ctx, task.ID, rating); err != nil {
		task.Status = tasksource.StatusCompleteFailed
		logFailure(logger, fmt.Sprintf("complete task #%s", task.ID), err)
	} else {
		logger.Info("task #%s marked complete", task.ID)
	}
	c.settled.Add(task.ID, task.Status)

	old := c.snap.Reputation
	updated, delta := reputation.Apply(old, rating)
	c.snap.Reputation = updated
	c.snap.TotalRepGained += delta
	c.snap.TasksCompleted++
	c.snap.TotalPayout = addPayout(c.snap.TotalPayout, task.PayoutOrDefault(c.cfg.MockPayout))

	if err := c.ledger.SetScore(ctx, c.identity, updated); err != nil {
		logFailure(logger, "reputation update", err)
	}
	logger.Info("reputation: %d -> %d (%+d)", old, updated, delta)
	logger.Info("task #%s complete! payout: %s USDC", task.ID, task.PayoutOrDefault(c.cfg.MockPayout))

	c.metrics.RecordReputation(ctx, updated)
	c.metrics.RecordTask(ctx, string(task.Status), string(task.Origin), c.clock.Now().Sub(started))
	if err := c.persist(ctx); err != nil {
		logger.Error("state write failed: %v", err)
	}

	c.commentOn(ctx, task, rating)
	span.SetAttributes(attribute.String(observability.AttrStatus, string(task.Status)))
	observability.EndSpan(span, nil)
}

// InjectMockTask synthesizes a task and queues it for the next poll.
func (c *Controller) InjectMockTask(ctx context.Context) {
	task := c.synth.Synthesize()
	task.Status = tasksource.StatusQueued
	c.queue = append(c.queue, task)
	c.logger.Info("[mock task generated] task #%s: %s", task.ID, task.Description)
	if err := c.persist(ctx); err != nil {
		c.logger.Error("state write failed: %v", err)
	}
}

// logFailure applies the error policy: cancellations are quiet, remote
// failures wait for the next tick.
func logFailure(logger logging.Logger, what string, err error) {
	switch workererrors.KindOf(err) {
	case workererrors.KindCanceled:
		logger.Debug("%s canceled: %v", what, err)
	case workererrors.KindPermanentRemote:
		logger.Warn("%s rejected: %v", what, err)
	case workererrors.KindLocalCorruption:
		logger.Error("%s: %v", what, err)
	default:
		logger.Warn("%s failed, retrying next tick: %v", what, err)
	}
}

func elapsedSince(start, now time.Time) time.Duration {
	if start.IsZero() {
		return 0
	}
	return now.Sub(start)
}
