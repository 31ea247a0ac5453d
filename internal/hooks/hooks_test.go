// Hook system tests
package hooks

import (
	"context"
	"testing"
	"time"
)

// TestEvent tests basic event creation and functionality
func TestEvent(t *testing.T) {
	event := NewEvent(EventViewerAttached).
		WithSessionID("test-session").
		WithStreamID("test-stream").
		WithData("remote_addr", "192.168.1.100:54321").
		WithData("viewer_count", 3)

	if event.Type != EventViewerAttached {
		t.Errorf("expected event type %s, got %s", EventViewerAttached, event.Type)
	}

	if event.SessionID != "test-session" {
		t.Errorf("expected session id 'test-session', got %s", event.SessionID)
	}

	if event.StreamID != "test-stream" {
		t.Errorf("expected stream id 'test-stream', got %s", event.StreamID)
	}

	if event.Data["remote_addr"] != "192.168.1.100:54321" {
		t.Errorf("expected remote_addr '192.168.1.100:54321', got %v", event.Data["remote_addr"])
	}

	if event.Data["viewer_count"] != 3 {
		t.Errorf("expected viewer_count 3, got %v", event.Data["viewer_count"])
	}

	str := event.String()
	if str != "viewer_attached:test-stream" {
		t.Errorf("expected string 'viewer_attached:test-stream', got %s", str)
	}
}

// TestShellHook tests shell hook creation and basic functionality
func TestShellHook(t *testing.T) {
	hook := NewShellHook("test-hook", "/bin/echo", 10*time.Second)

	if hook.Type() != "shell" {
		t.Errorf("expected hook type 'shell', got %s", hook.Type())
	}

	if hook.ID() != "test-hook" {
		t.Errorf("expected hook ID 'test-hook', got %s", hook.ID())
	}

	customHook := NewShellHookWithCommand("custom", "/bin/true", []string{}, 5*time.Second)
	if customHook.command != "/bin/true" {
		t.Errorf("expected command '/bin/true', got %s", customHook.command)
	}
}

// TestHookManager tests hook manager registration and basic functionality
func TestHookManager(t *testing.T) {
	config := DefaultHookConfig()
	manager := NewHookManager(config, nil)

	hook := NewShellHook("test", "/bin/true", 10*time.Second)
	err := manager.RegisterHook(EventStreamCreated, hook)
	if err != nil {
		t.Errorf("failed to register hook: %v", err)
	}

	stats := manager.GetStats()
	if stats["total_hooks"] != 1 {
		t.Errorf("expected 1 total hook, got %v", stats["total_hooks"])
	}

	success := manager.UnregisterHook(EventStreamCreated, "test")
	if !success {
		t.Error("failed to unregister hook")
	}

	// should not crash with no hooks registered
	event := NewEvent(EventStreamCreated)
	manager.TriggerEvent(context.Background(), *event)

	manager.Close()
}

// TestStdioHook tests stdio hook creation and basic functionality
func TestStdioHook(t *testing.T) {
	hook := NewStdioHook("stdio-test", "json")

	if hook.Type() != "stdio" {
		t.Errorf("expected hook type 'stdio', got %s", hook.Type())
	}

	if hook.ID() != "stdio-test" {
		t.Errorf("expected hook ID 'stdio-test', got %s", hook.ID())
	}

	if hook.format != "json" {
		t.Errorf("expected format 'json', got %s", hook.format)
	}
}

// TestWebhookHook tests webhook hook creation and basic functionality
func TestWebhookHook(t *testing.T) {
	hook := NewWebhookHook("webhook-test", "https://example.com/webhook", 30*time.Second)

	if hook.Type() != "webhook" {
		t.Errorf("expected hook type 'webhook', got %s", hook.Type())
	}

	if hook.ID() != "webhook-test" {
		t.Errorf("expected hook ID 'webhook-test', got %s", hook.ID())
	}

	if hook.url != "https://example.com/webhook" {
		t.Errorf("expected URL 'https://example.com/webhook', got %s", hook.url)
	}

	hook.AddHeader("Authorization", "Bearer token")
	if hook.headers["Authorization"] != "Bearer token" {
		t.Errorf("expected Authorization header 'Bearer token', got %s", hook.headers["Authorization"])
	}
}

// TestHookManagerConcurrentTrigger exercises the bounded execution pool with
// more in-flight hooks than its concurrency limit and checks that Close
// returns while executions are queued.
func TestHookManagerConcurrentTrigger(t *testing.T) {
	config := HookConfig{Timeout: "2s", Concurrency: 2}
	manager := NewHookManager(config, nil)

	for i := 0; i < 5; i++ {
		hook := NewShellHook("fanout", "/bin/true", time.Second)
		_ = manager.RegisterHook(EventViewerAttached, hook)
	}

	event := NewEvent(EventViewerAttached).WithStreamID("s1")
	manager.TriggerEvent(context.Background(), *event)
	manager.Close()
}
