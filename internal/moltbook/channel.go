package moltbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentscore/internal/clock"
	workererrors "agentscore/internal/errors"
	"agentscore/internal/logging"
	"agentscore/internal/observability"
)

// Placeholder credentials used when Moltbook does not issue one.
const (
	CredentialExisting       = "demo-key-existing"
	credentialFallbackPrefix = "demo-key-fallback-"
	credentialIssuedPrefix   = "demo-key-"
)

// ChannelConfig wires a Channel.
type ChannelConfig struct {
	Identity string
	// Client talks to Moltbook. Nil keeps the channel fully offline: every
	// call is logged locally.
	Client *Client
	// Live sends broadcasts and comments to Moltbook. When false they are
	// only logged but still count as attempts.
	Live             bool
	BroadcastSpacing time.Duration
	CommentSpacing   time.Duration
	Clock            clock.Clock
	Logger           logging.Logger
}

// Channel is the reporting channel. It never returns errors: failures are
// logged and the worker carries on in demo mode.
type Channel struct {
	identity string
	client   *Client
	live     bool
	clock    clock.Clock
	logger   logging.Logger

	broadcasts *Window
	comments   *Window

	mu           sync.Mutex
	registered   bool
	registration Registration
	credential   string
	posts        int
}

// NewChannel returns an unregistered channel.
func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.BroadcastSpacing <= 0 {
		cfg.BroadcastSpacing = DefaultBroadcastSpacing
	}
	if cfg.CommentSpacing <= 0 {
		cfg.CommentSpacing = DefaultCommentSpacing
	}
	clk := clock.OrReal(cfg.Clock)
	return &Channel{
		identity:   cfg.Identity,
		client:     cfg.Client,
		live:       cfg.Live,
		clock:      clk,
		logger:     logging.OrNop(cfg.Logger),
		broadcasts: NewWindow(cfg.BroadcastSpacing),
		comments:   NewWindow(cfg.CommentSpacing),
	}
}

// Register moves the channel to registered and returns the credential.
// Conflicts and failures fall back to placeholder credentials.
func (c *Channel) Register(ctx context.Context) string {
	c.mu.Lock()
	if c.registered {
		credential := c.credential
		c.mu.Unlock()
		return credential
	}
	c.mu.Unlock()

	credential, how := c.obtainCredential(ctx)

	c.mu.Lock()
	c.registered = true
	c.registration = how
	c.credential = credential
	c.mu.Unlock()
	return credential
}

func (c *Channel) obtainCredential(ctx context.Context) (string, Registration) {
	if c.client == nil {
		credential := c.fallbackCredential()
		c.logger.Info("moltbook offline, using local credential %s", observability.SanitizeAPIKey(credential))
		return credential, RegistrationOffline
	}

	key, err := c.client.Register(ctx, c.identity)
	switch {
	case err == nil:
		if key == "" {
			key = fmt.Sprintf("%s%d", credentialIssuedPrefix, c.clock.Now().UnixMilli())
		}
		c.logger.Info("agent registered to moltbook (api key %s)", observability.SanitizeAPIKey(key))
		return key, RegistrationIssued
	case workererrors.IsConflict(err):
		c.logger.Info("agent already registered with moltbook")
		return CredentialExisting, RegistrationExisting
	default:
		c.logger.Warn("moltbook registration failed, continuing in demo mode: %v", err)
		return c.fallbackCredential(), RegistrationFallback
	}
}

func (c *Channel) fallbackCredential() string {
	return fmt.Sprintf("%s%d", credentialFallbackPrefix, c.clock.Now().UnixMilli())
}

// Registration reports how the credential was obtained, RegistrationNone
// before Register.
func (c *Channel) Registration() Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registration
}

// Registered reports whether Register has run.
func (c *Channel) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// Credential returns the credential in use, empty before registration.
func (c *Channel) Credential() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credential
}

// Posts returns how many broadcasts were attempted by this process.
func (c *Channel) Posts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.posts
}

// Heartbeat checks in with Moltbook. It is Skipped before registration or
// when offline and Failed when the call errors; failures are logged only.
func (c *Channel) Heartbeat(ctx context.Context, stats Stats) Outcome {
	credential, ok := c.registeredCredential()
	if !ok {
		return Skipped
	}
	if c.client == nil {
		c.logger.Debug("moltbook heartbeat (offline): %d tasks, reputation %d", stats.TasksCompleted, stats.Reputation)
		return Skipped
	}
	if err := c.client.Heartbeat(ctx, c.identity, credential, stats, c.clock.Now()); err != nil {
		c.logger.Warn("moltbook heartbeat failed: %v", err)
		return Failed
	}
	c.logger.Info("moltbook heartbeat sent")
	return Sent
}

// Broadcast publishes message unless the broadcast window is still closed.
func (c *Channel) Broadcast(ctx context.Context, message string) Outcome {
	credential, ok := c.registeredCredential()
	if !ok {
		return Skipped
	}
	now := c.clock.Now()
	if allowed, wait := c.broadcasts.Allow(now); !allowed {
		c.logger.Info("moltbook broadcast skipped, next post in %s", wait.Truncate(time.Second))
		return Skipped
	}

	attempted := true
	if c.client != nil && c.live {
		err := c.client.Publish(ctx, c.identity, credential, message, now)
		attempted = reachedServer(err)
		if err != nil {
			c.logger.Warn("moltbook post failed: %v", err)
		}
	}
	if !attempted {
		return Skipped
	}

	c.broadcasts.Record(now)
	c.mu.Lock()
	c.posts++
	c.mu.Unlock()
	c.logger.Info("[moltbook post] %q", message)
	return Sent
}

// Comment posts text on taskID unless the comment window is still closed.
// Skips are silent.
func (c *Channel) Comment(ctx context.Context, taskID, text string) Outcome {
	credential, ok := c.registeredCredential()
	if !ok {
		return Skipped
	}
	now := c.clock.Now()
	if allowed, _ := c.comments.Allow(now); !allowed {
		return Skipped
	}

	if c.client != nil && c.live {
		err := c.client.Comment(ctx, c.identity, credential, taskID, text, now)
		if err != nil {
			c.logger.Warn("moltbook comment failed: %v", err)
		}
		if !reachedServer(err) {
			return Skipped
		}
	}

	c.comments.Record(now)
	c.logger.Info("[moltbook comment] task #%s: %q", taskID, text)
	return Sent
}

// Stats fetches Moltbook's view of the agent; nil when offline or failing.
func (c *Channel) Stats(ctx context.Context) *AgentStats {
	credential, ok := c.registeredCredential()
	if !ok || c.client == nil {
		return nil
	}
	stats, err := c.client.Stats(ctx, c.identity, credential)
	if err != nil {
		c.logger.Warn("failed to fetch moltbook stats: %v", err)
		return nil
	}
	return &stats
}

// RateState returns the timestamps of the last attempts.
func (c *Channel) RateState() RateState {
	return RateState{
		LastBroadcast: c.broadcasts.Last(),
		LastComment:   c.comments.Last(),
	}
}

// Restore resumes rate limiting from persisted timestamps.
func (c *Channel) Restore(state RateState) {
	c.broadcasts.Restore(state.LastBroadcast)
	c.comments.Restore(state.LastComment)
}

func (c *Channel) registeredCredential() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credential, c.registered
}

// reachedServer reports whether a send produced any HTTP answer. Transport
// errors and an open circuit do not count as attempts.
func reachedServer(err error) bool {
	return err == nil || workererrors.StatusCode(err) != 0
}

// UpdateMessage renders the periodic progress broadcast.
func UpdateMessage(stats Stats) string {
	return fmt.Sprintf("Agent Update: Completed %d tasks. Reputation: %d/100 (%+d total) #AgentScore #SkillBond",
		stats.TasksCompleted, stats.Reputation, stats.TotalRepGained)
}
