// Package tasksource discovers tasks and settles them with the task-source
// service, and synthesizes demo tasks when no such service is reachable.
package tasksource

import "time"

// Status is the lifecycle tag of a task. Only the loop controller moves it.
type Status string

const (
	StatusDiscovered     Status = "discovered"
	StatusQueued         Status = "queued"
	StatusAccepted       Status = "accepted"
	StatusExecuting      Status = "executing"
	StatusCompleted      Status = "completed"
	StatusAcceptFailed   Status = "accept_failed"
	StatusCompleteFailed Status = "complete_failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusAcceptFailed, StatusCompleteFailed:
		return true
	default:
		return false
	}
}

// Origin tells where a task came from.
type Origin string

const (
	OriginRemote    Origin = "remote"
	OriginSynthetic Origin = "synthetic"
)

// DefaultTier is the tier every synthesized task requires.
const DefaultTier = "STANDARD"

// Task is a unit of work. Apart from Status it is never changed after creation.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description"`
	Payout       string    `json:"payoutAmount"`
	RequiredTier string    `json:"requiredTier"`
	CreatedAt    time.Time `json:"createdAt"`
	Origin       Origin    `json:"-"`
	Status       Status    `json:"-"`
}

// PayoutOrDefault returns the payout, falling back to def when the source
// left it empty.
func (t Task) PayoutOrDefault(def string) string {
	if t.Payout == "" {
		return def
	}
	return t.Payout
}
