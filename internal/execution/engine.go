// Package execution simulates doing a task's work and grading it.
package execution

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"agentscore/internal/tasksource"
)

// Rating is the quality grade of a completed task, in [0,100].
type Rating = int

// Profile bounds the ratings an engine produces.
type Profile struct {
	Name      string
	MinRating Rating
	MaxRating Rating
}

var (
	// Standard mirrors an ordinary agent.
	Standard = Profile{Name: "standard", MinRating: 70, MaxRating: 95}
	// Premium mirrors a high-tier agent.
	Premium = Profile{Name: "premium", MinRating: 90, MaxRating: 100}
)

// ProfileByName resolves a configured profile name.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case "", Standard.Name:
		return Standard, nil
	case Premium.Name:
		return Premium, nil
	default:
		return Profile{}, fmt.Errorf("unknown rating profile %q", name)
	}
}

// Config tunes an Engine. Zero values fall back to the standard profile
// and a 2-5 s work delay.
type Config struct {
	Profile  Profile
	MinDelay time.Duration
	MaxDelay time.Duration
	// Rand overrides the random source; it must be safe for the engine's
	// single caller.
	Rand *rand.Rand
}

// Engine produces a rating for a task after a simulated work delay.
type Engine struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an Engine, or an error when cfg bounds are inverted or out
// of range.
func New(cfg Config) (*Engine, error) {
	if cfg.Profile == (Profile{}) {
		cfg.Profile = Standard
	}
	if cfg.MinDelay == 0 && cfg.MaxDelay == 0 {
		cfg.MinDelay, cfg.MaxDelay = 2*time.Second, 5*time.Second
	}
	p := cfg.Profile
	if p.MinRating < 0 || p.MaxRating > 100 || p.MinRating > p.MaxRating {
		return nil, fmt.Errorf("invalid rating range [%d,%d]", p.MinRating, p.MaxRating)
	}
	if cfg.MinDelay < 0 || cfg.MinDelay > cfg.MaxDelay {
		return nil, fmt.Errorf("invalid delay range [%s,%s]", cfg.MinDelay, cfg.MaxDelay)
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Engine{cfg: cfg, rng: rng}, nil
}

// Profile returns the rating bounds in effect.
func (e *Engine) Profile() Profile { return e.cfg.Profile }

// Execute waits the simulated work time and returns a rating. A cancelled
// ctx aborts the wait and returns ctx.Err().
func (e *Engine) Execute(ctx context.Context, _ tasksource.Task) (Rating, error) {
	delay, rating := e.draw()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return 0, err
	}
	return rating, nil
}

func (e *Engine) draw() (time.Duration, Rating) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delay := e.cfg.MinDelay
	if span := e.cfg.MaxDelay - e.cfg.MinDelay; span > 0 {
		delay += time.Duration(e.rng.Int64N(int64(span) + 1))
	}
	p := e.cfg.Profile
	rating := p.MinRating + e.rng.IntN(p.MaxRating-p.MinRating+1)
	return delay, rating
}
