// Package executors provides concrete runtime.Executor backends, adapted
// from executor.CommandExecutor/executor.HTTPExecutor with the action
// shape generalized from semantic.SemanticScheduledAction to
// runtime.Action.
package executors

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"dispatch.evalgo.org/runtime"
)

// Command executes a routing key of the form "exec://<shell command>"
// (or the "command://"/"shell://" aliases) via the configured shell.
type Command struct {
	Shell string
}

// NewCommand creates a command executor using /bin/sh.
func NewCommand() *Command {
	return &Command{Shell: "/bin/sh"}
}

func (e *Command) Name() string { return "command" }

func (e *Command) CanHandle(action *runtime.Action) bool {
	if action == nil {
		return false
	}
	return strings.HasPrefix(action.RoutingKey, "exec://") ||
		strings.HasPrefix(action.RoutingKey, "command://") ||
		strings.HasPrefix(action.RoutingKey, "shell://")
}

func (e *Command) Execute(ctx context.Context, action *runtime.Action) (*runtime.Result, error) {
	result := &runtime.Result{StartTime: time.Now(), Status: runtime.StatusRunning, Metadata: make(map[string]interface{})}

	command := strings.TrimPrefix(action.RoutingKey, "exec://")
	command = strings.TrimPrefix(command, "command://")
	command = strings.TrimPrefix(command, "shell://")
	if command == "" {
		result.Status = runtime.StatusFailed
		result.Error = &runtime.Error{Message: "empty command", Code: "INVALID_COMMAND"}
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		return result, result.Error
	}

	result.Metadata["command"] = command
	result.Metadata["shell"] = e.Shell

	cmd := exec.CommandContext(ctx, e.Shell, "-c", command)
	if len(action.Payload) > 0 {
		cmd.Stdin = strings.NewReader(string(action.Payload))
	}

	output, err := cmd.CombinedOutput()
	result.Output = string(output)
	result.Metadata["output_length"] = len(output)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if err != nil {
		result.Status = runtime.StatusFailed
		result.Error = &runtime.Error{
			Message: fmt.Sprintf("command execution failed: %v", err),
			Code:    "COMMAND_ERROR",
			Details: map[string]interface{}{"command": command, "output": string(output)},
		}
		return result, result.Error
	}

	result.Status = runtime.StatusCompleted
	return result, nil
}
