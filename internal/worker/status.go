package worker

import (
	"context"
	"math/big"
	"strings"
	"time"

	"agentscore/internal/moltbook"
	"agentscore/internal/observability"
	"agentscore/internal/state"
	"agentscore/internal/tasksource"
)

// Stats is a point-in-time view of the loop, safe to read from any
// goroutine.
type Stats struct {
	Identity       string        `json:"identity"`
	Reputation     int           `json:"reputation"`
	TasksCompleted int           `json:"tasksCompleted"`
	TotalRepGained int           `json:"totalRepGained"`
	TotalPayout    string        `json:"totalPayout"`
	Posts          int           `json:"moltbookPosts"`
	Queued         int           `json:"queued"`
	CurrentTask    string        `json:"currentTask,omitempty"`
	Credential     string        `json:"credential,omitempty"`
	LastBroadcast  time.Time     `json:"lastBroadcast"`
	LastComment    time.Time     `json:"lastComment"`
	StartedAt      time.Time     `json:"startedAt"`
	Uptime         time.Duration `json:"uptime"`
	NextTaskID     int64         `json:"nextTaskId"`
	// Moltbook is the channel's last reported view of the agent, nil until
	// one has been fetched.
	Moltbook *moltbook.AgentStats `json:"moltbook,omitempty"`
}

// Stats returns the latest published view.
func (c *Controller) Stats() Stats {
	c.pubMu.RLock()
	stats := c.published
	c.pubMu.RUnlock()
	stats.Posts = c.channel.Posts()
	stats.Uptime = elapsedSince(stats.StartedAt, c.clock.Now())
	return stats
}

// snapshot assembles the durable record from loop state.
func (c *Controller) snapshot() state.Snapshot {
	snap := c.snap
	snap.Identity = c.identity
	rate := c.channel.RateState()
	snap.LastBroadcast = rate.LastBroadcast
	snap.LastComment = rate.LastComment
	if credential := c.channel.Credential(); credential != "" {
		snap.Credential = credential
	}
	if c.synth != nil {
		snap.NextTaskID = c.synth.NextID()
	}
	return snap
}

// persist writes the snapshot and republishes the view. Every mutation is
// followed by persist before the loop moves on.
func (c *Controller) persist(ctx context.Context) error {
	snap := c.snapshot()
	c.snap = snap
	err := c.store.Save(snap)
	c.metrics.RecordSnapshotWrite(ctx, err)
	c.publish()
	return err
}

func (c *Controller) publish() {
	snap := c.snap
	c.pubMu.Lock()
	current := c.published.CurrentTask
	c.published = Stats{
		Identity:       snap.Identity,
		Reputation:     snap.Reputation,
		TasksCompleted: snap.TasksCompleted,
		TotalRepGained: snap.TotalRepGained,
		TotalPayout:    payoutOrZero(snap.TotalPayout),
		Queued:         len(c.queue),
		CurrentTask:    current,
		Credential:     observability.SanitizeAPIKey(snap.Credential),
		LastBroadcast:  snap.LastBroadcast,
		LastComment:    snap.LastComment,
		StartedAt:      snap.StartedAt,
		NextTaskID:     snap.NextTaskID,
		Moltbook:       c.remote,
	}
	c.publishedSnap = snap
	c.pubMu.Unlock()
}

func (c *Controller) lastPublished() state.Snapshot {
	c.pubMu.RLock()
	defer c.pubMu.RUnlock()
	return c.publishedSnap
}

func (c *Controller) setCurrent(task *tasksource.Task) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if task == nil {
		c.published.CurrentTask = ""
		return
	}
	c.published.CurrentTask = task.ID
}

// addPayout sums two decimal amounts exactly. Unparseable amounts are
// ignored.
func addPayout(total, payout string) string {
	sum, ok := new(big.Rat).SetString(payoutOrZero(total))
	if !ok {
		sum = new(big.Rat)
	}
	if amount, ok := new(big.Rat).SetString(strings.TrimSpace(payout)); ok {
		sum.Add(sum, amount)
	}
	return formatAmount(sum)
}

func formatAmount(r *big.Rat) string {
	s := r.FloatString(6)
	s = strings.TrimRight(s, "0")
	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 < 2 {
		s += strings.Repeat("0", 2-(len(s)-i-1))
	}
	return s
}

func payoutOrZero(amount string) string {
	if amount == "" {
		return "0.00"
	}
	return amount
}
