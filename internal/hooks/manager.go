package hooks

// HookManager (§4.8)
// -------------------
// Registry of per-event-type hook chains plus the bounded worker pool that
// runs them. Registration and lookup are protected by mu; execution itself
// always happens off the caller's goroutine through executionPool so a slow
// shell or webhook hook never adds latency to the fan-out path.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HookManager manages hook registration and execution. Hooks are advisory
// observers on lifecycle events: a failing or slow hook never affects the
// fan-out path, since TriggerEvent only ever hands off to goroutines in the
// execution pool and never blocks the caller.
type HookManager struct {
	hooks     map[EventType][]Hook
	stdioHook *StdioHook
	mu        sync.RWMutex
	pool      *executionPool
	logger    *slog.Logger
	config    HookConfig
}

// NewHookManager creates a new hook manager.
func NewHookManager(config HookConfig, logger *slog.Logger) *HookManager {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := time.ParseDuration(config.Timeout)
	if err != nil {
		logger.Warn("invalid hook timeout, using default", "timeout", config.Timeout, "error", err)
	}

	manager := &HookManager{
		hooks:  make(map[EventType][]Hook),
		logger: logger,
		config: config,
		pool:   newExecutionPool(config.Concurrency, logger),
	}

	if config.StdioFormat != "" {
		_ = manager.EnableStdioOutput(config.StdioFormat)
	}

	return manager
}

// RegisterHook registers a hook for the specified event type.
func (hm *HookManager) RegisterHook(eventType EventType, hook Hook) error {
	if hook == nil {
		return fmt.Errorf("cannot register nil hook")
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.hooks[eventType] = append(hm.hooks[eventType], hook)
	hm.logger.Info("hook registered",
		"event_type", eventType,
		"hook_type", hook.Type(),
		"hook_id", hook.ID())

	return nil
}

// UnregisterHook removes a hook by ID from the specified event type.
func (hm *HookManager) UnregisterHook(eventType EventType, hookID string) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hooks := hm.hooks[eventType]
	for i, hook := range hooks {
		if hook.ID() == hookID {
			hm.hooks[eventType] = append(hooks[:i], hooks[i+1:]...)
			hm.logger.Info("hook unregistered",
				"event_type", eventType,
				"hook_id", hookID)
			return true
		}
	}

	return false
}

// TriggerEvent executes all registered hooks for the given event. It never
// touches chunk payload bytes: callers only build Event values out of ids,
// counts and other metadata derived from the registry/session layers.
func (hm *HookManager) TriggerEvent(ctx context.Context, event Event) {
	if hm == nil {
		return
	}

	hm.mu.RLock()
	hooks := make([]Hook, len(hm.hooks[event.Type]))
	copy(hooks, hm.hooks[event.Type])
	hm.mu.RUnlock()

	if hm.stdioHook != nil {
		hooks = append(hooks, hm.stdioHook)
	}

	if len(hooks) == 0 {
		return
	}

	hm.logger.Debug("triggering event",
		"event_type", event.Type,
		"hook_count", len(hooks),
		"event", event.String())

	for _, hook := range hooks {
		hm.pool.execute(ctx, hook, event)
	}
}

// EnableStdioOutput enables structured output to stderr.
func (hm *HookManager) EnableStdioOutput(format string) error {
	if format != "json" && format != "env" {
		return fmt.Errorf("unsupported stdio format: %s", format)
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.stdioHook = NewStdioHook("stdio", format)
	hm.logger.Info("stdio output enabled", "format", format)

	return nil
}

// DisableStdioOutput disables structured output.
func (hm *HookManager) DisableStdioOutput() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.stdioHook = nil
	hm.logger.Info("stdio output disabled")
}

// GetStats returns statistics about registered hooks.
func (hm *HookManager) GetStats() map[string]interface{} {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	stats := map[string]interface{}{
		"event_types":   len(hm.hooks),
		"total_hooks":   0,
		"stdio_enabled": hm.stdioHook != nil,
		"pool_size":     hm.pool.size,
		"pool_active":   hm.pool.active,
	}

	hooksByType := make(map[string]int)
	totalHooks := 0

	for eventType, hooks := range hm.hooks {
		hooksByType[string(eventType)] = len(hooks)
		totalHooks += len(hooks)
	}

	stats["total_hooks"] = totalHooks
	stats["hooks_by_type"] = hooksByType

	return stats
}

// Close shuts down the hook manager. It waits for hook executions that already
// hold a pool slot to finish; executions still waiting for a slot never run.
func (hm *HookManager) Close() error {
	if hm.pool != nil {
		hm.pool.close()
	}
	hm.logger.Info("hook manager closed")
	return nil
}

// executionPool bounds concurrent hook execution with a channel-backed
// semaphore, so a slow shell or webhook hook cannot pile up unbounded
// goroutines under a busy stream.
type executionPool struct {
	workers chan struct{}
	size    int
	active  int
	mu      sync.Mutex
	logger  *slog.Logger
}

func newExecutionPool(size int, logger *slog.Logger) *executionPool {
	if size <= 0 {
		size = 10
	}

	return &executionPool{
		workers: make(chan struct{}, size),
		size:    size,
		logger:  logger,
	}
}

func (ep *executionPool) execute(ctx context.Context, hook Hook, event Event) {
	go func() {
		ep.workers <- struct{}{}
		defer func() { <-ep.workers }()

		ep.mu.Lock()
		ep.active++
		ep.mu.Unlock()

		defer func() {
			ep.mu.Lock()
			ep.active--
			ep.mu.Unlock()
		}()

		start := time.Now()
		err := hook.Execute(ctx, event)
		duration := time.Since(start)

		if err != nil {
			ep.logger.Error("hook execution failed",
				"hook_type", hook.Type(),
				"hook_id", hook.ID(),
				"event_type", event.Type,
				"duration_ms", duration.Milliseconds(),
				"error", err)
		} else {
			ep.logger.Debug("hook executed successfully",
				"hook_type", hook.Type(),
				"hook_id", hook.ID(),
				"event_type", event.Type,
				"duration_ms", duration.Milliseconds())
		}
	}()
}

// close waits for in-flight hook executions to finish by reclaiming every
// semaphore slot and keeping them; executions queued behind a slot stay
// blocked and never run.
func (ep *executionPool) close() {
	for i := 0; i < cap(ep.workers); i++ {
		ep.workers <- struct{}{}
	}
}
