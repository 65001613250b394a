// Package runtime implements the Execution Runtime (spec §4.5): dispatches
// an Envelope to the executor that can handle it, applies retry backoff
// and DLQ synthesis on failure, and tracks the envelope lifecycle state
// machine. Grounded on executor.Executor/executor.Registry, generalized
// from a single SemanticScheduledAction argument to envelope.Envelope.
package runtime

import (
	"context"
	"time"
)

// Status is the outcome of a single execution attempt, distinct from
// envelope.State: a Status reports what the executor itself observed;
// the Runtime maps it onto the envelope's lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Error carries a machine-readable code alongside a human message,
// kept in the same shape as the teacher's ExecutionError.
type Error struct {
	Message string
	Code    string
	Details map[string]interface{}
}

func (e *Error) Error() string { return e.Message }

// Result is what an Executor returns for a single attempt.
type Result struct {
	Output    string
	Status    Status
	Metadata  map[string]interface{}
	Error     *Error
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Action is the executable unit an Executor receives: the envelope's
// routing key selects the target, and its payload/headers/attributes
// carry the instructions.
type Action struct {
	RoutingKey  string
	Payload     []byte
	ContentType string
	Headers     map[string]string
}

// Executor is implemented by each concrete execution backend (command,
// HTTP, ...). Kept identical in shape to the teacher's Executor interface.
type Executor interface {
	Name() string
	CanHandle(action *Action) bool
	Execute(ctx context.Context, action *Action) (*Result, error)
}

// Registry dispatches an Action to the first registered Executor willing
// to handle it, in registration order — same find-first-CanHandle idiom
// as the teacher's executor.Registry.Execute.
type Registry struct {
	executors []Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an executor to the dispatch chain.
func (r *Registry) Register(e Executor) {
	r.executors = append(r.executors, e)
}

// Execute finds the first executor that can handle action and runs it.
func (r *Registry) Execute(ctx context.Context, action *Action) (*Result, error) {
	for _, e := range r.executors {
		if e.CanHandle(action) {
			return e.Execute(ctx, action)
		}
	}
	return nil, &Error{Message: "no executor registered for action", Code: "NO_EXECUTOR"}
}
