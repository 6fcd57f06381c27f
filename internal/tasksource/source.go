package tasksource

import "context"

// Source is the task-source service as the loop controller sees it. Every
// method returns errors classified by agentscore/internal/errors.
type Source interface {
	// ListAvailable returns the tasks currently open to identity; may be empty.
	ListAvailable(ctx context.Context, identity string) ([]Task, error)
	// Accept claims taskID for identity.
	Accept(ctx context.Context, taskID, identity string) error
	// Complete settles taskID with the given rating.
	Complete(ctx context.Context, taskID string, rating int) error
	// RegisterAgent announces identity to the service. A 409 answer means the
	// agent is already registered.
	RegisterAgent(ctx context.Context, identity string) error
}

// LocalSource stands in for the task-source service when none is configured:
// it lists nothing and accepts and completes every task, so synthesized tasks
// still run end to end.
type LocalSource struct{}

// NewLocal returns a LocalSource.
func NewLocal() LocalSource { return LocalSource{} }

func (LocalSource) ListAvailable(context.Context, string) ([]Task, error) { return nil, nil }
func (LocalSource) Accept(context.Context, string, string) error          { return nil }
func (LocalSource) Complete(context.Context, string, int) error           { return nil }
func (LocalSource) RegisterAgent(context.Context, string) error           { return nil }
