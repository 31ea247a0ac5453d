package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli"
)

// validateFlags runs as the cli.App's Before hook so bad flag values are
// rejected before the acceptor ever binds a listener.
func validateFlags(c *cli.Context) error {
	switch c.String("log-level") {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level %q", c.String("log-level"))
	}

	if format := c.String("hook-stdio-format"); format != "" && format != "json" && format != "env" {
		return fmt.Errorf("invalid hook-stdio-format %q, must be 'json' or 'env'", format)
	}

	if timeout := c.String("hook-timeout"); timeout != "" {
		if err := validateTimeoutSuffix(timeout); err != nil {
			return fmt.Errorf("invalid hook-timeout %q: %w", timeout, err)
		}
	}

	if n := c.Int("hook-concurrency"); n < 1 || n > 100 {
		return fmt.Errorf("hook-concurrency must be between 1 and 100, got %d", n)
	}

	for _, script := range c.StringSlice("hook-script") {
		if err := validateHookAssignment("hook-script", script); err != nil {
			return err
		}
	}
	for _, webhook := range c.StringSlice("hook-webhook") {
		if err := validateHookAssignment("hook-webhook", webhook); err != nil {
			return err
		}
	}

	if n := c.Int("queue-size"); n < 0 {
		return fmt.Errorf("queue-size must be >= 0, got %d", n)
	}

	return nil
}

// validateTimeoutSuffix is a cheap sanity check ahead of the real
// time.ParseDuration call the hook manager performs on this string.
func validateTimeoutSuffix(s string) error {
	if len(s) < 2 {
		return fmt.Errorf("duration too short")
	}
	switch s[len(s)-1:] {
	case "s", "m", "h":
		return nil
	default:
		return fmt.Errorf("duration must end with s, m, or h")
	}
}

// validEventTypes mirrors the event types defined in internal/hooks (the
// hook manager itself registers hooks under any name); checked here so a
// typo surfaces at startup instead of never firing.
var validEventTypes = map[string]bool{
	"connection_accept": true,
	"connection_close":  true,
	"stream_created":    true,
	"stream_removed":    true,
	"producer_attached": true,
	"producer_detached": true,
	"viewer_attached":   true,
	"viewer_detached":   true,
}

// validateHookAssignment validates the "event_type=value" format shared by
// -hook-script and -hook-webhook.
func validateHookAssignment(flagName, assignment string) error {
	parts := strings.SplitN(assignment, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid %s format %q, expected event_type=value", flagName, assignment)
	}
	eventType, value := parts[0], parts[1]
	if eventType == "" {
		return fmt.Errorf("invalid %s: event type cannot be empty", flagName)
	}
	if value == "" {
		return fmt.Errorf("invalid %s: value cannot be empty", flagName)
	}
	if !validEventTypes[eventType] {
		return fmt.Errorf("invalid %s: unknown event type %q", flagName, eventType)
	}
	return nil
}
