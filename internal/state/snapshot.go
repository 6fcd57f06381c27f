// Package state persists the worker's durable snapshot.
package state

import (
	"time"

	"agentscore/internal/reputation"
)

// SchemaVersion is written into every snapshot.
const SchemaVersion = 1

// Snapshot is the minimal state needed to resume the loop after a restart.
// Zero timestamps mean the action never happened.
type Snapshot struct {
	Version        int       `json:"version"`
	Identity       string    `json:"agentAddress"`
	Credential     string    `json:"moltbookApiKey,omitempty"`
	Reputation     int       `json:"reputation"`
	TasksCompleted int       `json:"tasksCompleted"`
	TotalRepGained int       `json:"totalRepGained"`
	TotalPayout    string    `json:"totalPayout,omitempty"`
	NextTaskID     int64     `json:"nextTaskId,omitempty"`
	LastBroadcast  time.Time `json:"lastMoltbookPost"`
	LastComment    time.Time `json:"lastMoltbookComment"`
	StartedAt      time.Time `json:"startedAt"`
}

// Defaults returns the snapshot of a worker that has never run.
func Defaults(identity string, now time.Time) Snapshot {
	return Snapshot{
		Version:    SchemaVersion,
		Identity:   identity,
		Reputation: reputation.Bootstrap,
		StartedAt:  now.UTC(),
	}
}

// normalize repairs fields a hand-edited or older file may carry.
func (s Snapshot) normalize(identity string, now time.Time) Snapshot {
	s.Version = SchemaVersion
	s.Reputation = reputation.Clamp(s.Reputation)
	if s.TasksCompleted < 0 {
		s.TasksCompleted = 0
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = now.UTC()
	}
	if s.Identity == "" {
		s.Identity = identity
	}
	return s
}
