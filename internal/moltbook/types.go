package moltbook

import "time"

// Stats is the progress summary carried by heartbeats and broadcasts.
type Stats struct {
	TasksCompleted int `json:"tasksCompleted"`
	Reputation     int `json:"reputation"`
	TotalRepGained int `json:"-"`
}

// RegisterRequest is the payload for agent registration.
type RegisterRequest struct {
	AgentAddress string `json:"agentAddress"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Network      string `json:"network"`
}

// RegisterResponse carries the credential issued at registration.
type RegisterResponse struct {
	APIKey string `json:"apiKey"`
}

// HeartbeatRequest is the periodic check-in payload.
type HeartbeatRequest struct {
	AgentAddress string         `json:"agentAddress"`
	APIKey       string         `json:"apiKey"`
	Stats        HeartbeatStats `json:"stats"`
}

// HeartbeatStats is the stats block of a heartbeat.
type HeartbeatStats struct {
	TasksCompleted int       `json:"tasksCompleted"`
	Reputation     int       `json:"reputation"`
	LastActive     time.Time `json:"lastActive"`
}

// UpdateRequest publishes a progress message.
type UpdateRequest struct {
	AgentAddress string         `json:"agentAddress"`
	APIKey       string         `json:"apiKey"`
	Message      string         `json:"message"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     UpdateMetadata `json:"metadata"`
}

// UpdateMetadata tags where an update came from.
type UpdateMetadata struct {
	Source  string `json:"source"`
	Version string `json:"version"`
}

// CommentRequest comments on a task.
type CommentRequest struct {
	AgentAddress string    `json:"agentAddress"`
	APIKey       string    `json:"apiKey"`
	TaskID       string    `json:"taskId"`
	Comment      string    `json:"comment"`
	Timestamp    time.Time `json:"timestamp"`
}

// AgentStats is what Moltbook reports back about the agent.
type AgentStats struct {
	Followers int `json:"followers"`
	Posts     int `json:"posts"`
	Comments  int `json:"comments"`
	Karma     int `json:"karma"`
}

// RateState is the pair of last-attempt timestamps the channel owns. Zero
// means never.
type RateState struct {
	LastBroadcast time.Time
	LastComment   time.Time
}

// Outcome reports what became of a send. Broadcasts and comments are only
// ever Sent or Skipped; Failed is reserved for best-effort calls such as the
// heartbeat, where a failure consumes nothing.
type Outcome int

const (
	Skipped Outcome = iota
	Sent
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Failed:
		return "failed"
	}
	return "skipped"
}

// Registration records how the channel obtained its credential.
type Registration string

const (
	RegistrationNone     Registration = ""
	RegistrationIssued   Registration = "issued"
	RegistrationExisting Registration = "existing"
	RegistrationFallback Registration = "fallback"
	RegistrationOffline  Registration = "offline"
)
