package worker

import (
	"context"
	"fmt"

	"agentscore/internal/logging"
	"agentscore/internal/moltbook"
	"agentscore/internal/observability"
	"agentscore/internal/tasksource"
)

// MaybeReport sends a heartbeat and a progress broadcast. Whether the
// broadcast goes out is the channel's rate-limit decision.
func (c *Controller) MaybeReport(ctx context.Context) {
	ctx = observability.ContextWithCycleID(ctx, logging.NewCycleID())
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanReport)
	defer observability.EndSpan(span, nil)

	stats := moltbook.Stats{
		TasksCompleted: c.snap.TasksCompleted,
		Reputation:     c.snap.Reputation,
		TotalRepGained: c.snap.TotalRepGained,
	}
	logger := logging.FromContext(ctx, c.logger)
	c.metrics.RecordReport(ctx, "heartbeat", c.channel.Heartbeat(ctx, stats).String())

	outcome := c.channel.Broadcast(ctx, moltbook.UpdateMessage(stats))
	c.metrics.RecordReport(ctx, "broadcast", outcome.String())

	if remote := c.channel.Stats(ctx); remote != nil {
		c.remote = remote
		logger.Info("moltbook stats: %d posts, %d comments, %d followers, karma %d",
			remote.Posts, remote.Comments, remote.Followers, remote.Karma)
		c.metrics.RecordReport(ctx, "stats", moltbook.Sent.String())
	}

	if outcome == moltbook.Sent {
		if err := c.persist(ctx); err != nil {
			logger.Error("state write failed: %v", err)
		}
		return
	}
	c.publish()
}

func (c *Controller) commentOn(ctx context.Context, task tasksource.Task, rating int) {
	text := fmt.Sprintf("Completed with rating %d/100", rating)
	outcome := c.channel.Comment(ctx, task.ID, text)
	c.metrics.RecordReport(ctx, "comment", outcome.String())
	if outcome == moltbook.Sent {
		if err := c.persist(ctx); err != nil {
			logging.FromContext(ctx, c.logger).Error("state write failed: %v", err)
		}
	}
}
