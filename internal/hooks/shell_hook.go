// Shell hook implementation
// This file implements a hook that executes shell scripts with environment variables
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellHook executes shell scripts when events occur.
type ShellHook struct {
	id       string
	command  string
	args     []string
	env      []string
	passJSON bool
	timeout  time.Duration
}

// NewShellHook creates a new shell hook that runs scriptPath with /bin/bash.
func NewShellHook(id, scriptPath string, timeout time.Duration) *ShellHook {
	return &ShellHook{
		id:      id,
		command: "/bin/bash",
		args:    []string{scriptPath},
		env:     []string{},
		timeout: timeout,
	}
}

// NewShellHookWithCommand creates a shell hook with a custom command.
func NewShellHookWithCommand(id, command string, args []string, timeout time.Duration) *ShellHook {
	return &ShellHook{
		id:      id,
		command: command,
		args:    args,
		env:     []string{},
		timeout: timeout,
	}
}

// SetPassJSON enables passing event data as JSON via stdin.
func (h *ShellHook) SetPassJSON(passJSON bool) *ShellHook {
	h.passJSON = passJSON
	return h
}

// SetEnv sets additional environment variables for the script.
func (h *ShellHook) SetEnv(env []string) *ShellHook {
	h.env = env
	return h
}

// Execute runs the shell script with event data passed as environment variables.
func (h *ShellHook) Execute(ctx context.Context, event Event) error {
	execCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, h.command, h.args...)

	env := h.buildEnvironment(event)
	cmd.Env = append(cmd.Env, env...)

	if h.passJSON {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("shell hook %s: failed to create stdin pipe: %w", h.id, err)
		}

		go func() {
			defer stdin.Close()
			_ = json.NewEncoder(stdin).Encode(event)
		}()
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s: execution failed: %w", h.id, err)
	}

	return nil
}

// Type returns the hook type.
func (h *ShellHook) Type() string {
	return "shell"
}

// ID returns the hook ID.
func (h *ShellHook) ID() string {
	return h.id
}

// buildEnvironment creates environment variables from event data, prefixed
// STREAM_ to keep them namespaced away from the rest of the child's environment.
func (h *ShellHook) buildEnvironment(event Event) []string {
	env := make([]string, 0)

	env = append(env, h.env...)

	env = append(env, "STREAM_EVENT_TYPE="+string(event.Type))
	env = append(env, fmt.Sprintf("STREAM_TIMESTAMP=%d", event.Timestamp))

	if event.SessionID != "" {
		env = append(env, "STREAM_SESSION_ID="+event.SessionID)
	}

	if event.StreamID != "" {
		env = append(env, "STREAM_STREAM_ID="+event.StreamID)
	}

	for key, value := range event.Data {
		envKey := "STREAM_" + strings.ToUpper(key)
		envValue := fmt.Sprintf("%v", value)
		env = append(env, envKey+"="+envValue)
	}

	return env
}
