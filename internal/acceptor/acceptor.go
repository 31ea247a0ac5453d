// Package acceptor owns the listener and the worker pool that turns accepted
// TCP connections into Anonymous sessions handed off to the dispatcher
// (§4.7).
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/catapult-stream/relay-server/internal/dispatch"
	"github.com/catapult-stream/relay-server/internal/hooks"
	"github.com/catapult-stream/relay-server/internal/logger"
	"github.com/catapult-stream/relay-server/internal/session"
	"github.com/catapult-stream/relay-server/internal/stream"
)

// Config holds the acceptor's configuration knobs.
type Config struct {
	ListenAddr   string
	Threads      int // number of goroutines sharing the accept loop
	MaxFrameSize uint32

	ShutdownDrain time.Duration // bound on how long Stop waits for in-flight sessions

	// MaxViewerBacklog bounds how many queued writes a single viewer's
	// strand may accumulate before fan-out drops it as too slow. 0 (the
	// default) leaves it unbounded.
	MaxViewerBacklog int

	HookScripts     []string // event_type=script_path pairs
	HookWebhooks    []string // event_type=webhook_url pairs
	HookStdioFormat string
	HookTimeout     string
	HookConcurrency int
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9000"
	}
	if c.Threads <= 0 {
		c.Threads = 1
	}
	if c.ShutdownDrain <= 0 {
		c.ShutdownDrain = 5 * time.Second
	}
}

// Acceptor listens on a single TCP address and shares one accept loop across
// Threads worker goroutines, each promoting accepted connections to an
// Anonymous session and handing it to the dispatcher.
type Acceptor struct {
	cfg     Config
	log     *slog.Logger
	reg     *stream.Registry
	hookMgr *hooks.HookManager

	mu       sync.Mutex
	ln       net.Listener
	closing  bool
	workerWg sync.WaitGroup

	sessionsMu sync.Mutex
	sessions   map[string]*session.Session
}

// New creates an unstarted Acceptor.
func New(cfg Config) *Acceptor {
	cfg.applyDefaults()
	hookMgr := initHookManager(cfg, logger.Logger())
	reg := stream.NewRegistry(hookMgr)
	reg.SetMaxViewerBacklog(cfg.MaxViewerBacklog)
	return &Acceptor{
		cfg:      cfg,
		log:      logger.Logger().With("component", "acceptor"),
		reg:      reg,
		hookMgr:  hookMgr,
		sessions: make(map[string]*session.Session),
	}
}

// Start binds the listener and launches Threads worker goroutines sharing
// its accept loop. Safe to call once.
func (a *Acceptor) Start() error {
	a.mu.Lock()
	if a.ln != nil {
		a.mu.Unlock()
		return errors.New("acceptor already started")
	}
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		a.mu.Unlock()
		return pkgerrors.Wrapf(err, "listen %s", a.cfg.ListenAddr)
	}
	a.ln = ln
	a.mu.Unlock()

	a.log.Info("listening", "addr", ln.Addr().String(), "threads", a.cfg.Threads)

	for i := 0; i < a.cfg.Threads; i++ {
		a.workerWg.Add(1)
		go a.acceptLoop()
	}
	return nil
}

func (a *Acceptor) acceptLoop() {
	defer a.workerWg.Done()
	for {
		a.mu.Lock()
		ln := a.ln
		a.mu.Unlock()
		if ln == nil {
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			a.mu.Lock()
			closing := a.closing
			a.mu.Unlock()
			if closing || errors.Is(err, net.ErrClosed) {
				return
			}
			a.log.Warn("accept error", "error", err)
			continue
		}

		s := session.New(conn, a.cfg.MaxFrameSize)
		s.SetOnClose(func() { a.untrackSession(s.ID()) })
		a.trackSession(s)
		a.log.Info("session accepted", "session_id", s.ID(), "remote_addr", s.RemoteAddr())

		a.hookMgr.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventConnectionAccept).WithSessionID(s.ID()))

		dispatch.Dispatch(s, a.reg, a.hookMgr)
	}
}

func (a *Acceptor) trackSession(s *session.Session) {
	a.sessionsMu.Lock()
	a.sessions[s.ID()] = s
	a.sessionsMu.Unlock()
}

func (a *Acceptor) untrackSession(id string) {
	a.sessionsMu.Lock()
	delete(a.sessions, id)
	a.sessionsMu.Unlock()
}

// Addr returns the bound listener address, or nil if Start hasn't run.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Stop stops accepting new connections, closes every tracked session, and
// waits (bounded by cfg.ShutdownDrain) for the accept loop workers to exit.
func (a *Acceptor) Stop() error {
	a.mu.Lock()
	if a.ln == nil {
		a.mu.Unlock()
		return nil
	}
	a.closing = true
	ln := a.ln
	a.ln = nil
	a.mu.Unlock()
	_ = ln.Close()

	a.sessionsMu.Lock()
	for id, s := range a.sessions {
		a.hookMgr.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventConnectionClose).WithSessionID(id).WithData("reason", "server_shutdown"))
		_ = s.Close()
	}
	a.sessionsMu.Unlock()

	if err := a.hookMgr.Close(); err != nil {
		a.log.Error("hook manager close error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		a.workerWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.cfg.ShutdownDrain):
		a.log.Warn("shutdown drain timeout exceeded, worker goroutines may still be exiting")
	}

	a.log.Info("acceptor stopped")
	return nil
}

func initHookManager(cfg Config, log *slog.Logger) *hooks.HookManager {
	hookCfg := hooks.DefaultHookConfig()
	if cfg.HookTimeout != "" {
		hookCfg.Timeout = cfg.HookTimeout
	}
	if cfg.HookConcurrency != 0 {
		hookCfg.Concurrency = cfg.HookConcurrency
	}
	if cfg.HookStdioFormat != "" {
		hookCfg.StdioFormat = cfg.HookStdioFormat
	}

	hookMgr := hooks.NewHookManager(hookCfg, log)

	hookTimeout := 30 * time.Second
	if d, err := time.ParseDuration(hookCfg.Timeout); err == nil && d > 0 {
		hookTimeout = d
	}

	if err := registerShellHooks(hookMgr, cfg.HookScripts, hookTimeout, log); err != nil {
		log.Error("failed to register shell hooks", "error", err)
	}
	if err := registerWebhookHooks(hookMgr, cfg.HookWebhooks, hookTimeout, log); err != nil {
		log.Error("failed to register webhook hooks", "error", err)
	}
	return hookMgr
}

func registerShellHooks(hookMgr *hooks.HookManager, scripts []string, timeout time.Duration, log *slog.Logger) error {
	for i, script := range scripts {
		parts := strings.SplitN(script, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid shell hook format: %s", script)
		}
		eventType := hooks.EventType(parts[0])
		scriptPath := parts[1]
		h := hooks.NewShellHook(fmt.Sprintf("shell_%d", i), scriptPath, timeout)
		if err := hookMgr.RegisterHook(eventType, h); err != nil {
			return fmt.Errorf("register shell hook %s: %w", script, err)
		}
		log.Info("registered shell hook", "event_type", eventType, "script_path", scriptPath)
	}
	return nil
}

func registerWebhookHooks(hookMgr *hooks.HookManager, webhooks []string, timeout time.Duration, log *slog.Logger) error {
	for i, webhook := range webhooks {
		parts := strings.SplitN(webhook, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid webhook hook format: %s", webhook)
		}
		eventType := hooks.EventType(parts[0])
		url := parts[1]
		h := hooks.NewWebhookHook(fmt.Sprintf("webhook_%d", i), url, timeout)
		if err := hookMgr.RegisterHook(eventType, h); err != nil {
			return fmt.Errorf("register webhook hook %s: %w", webhook, err)
		}
		log.Info("registered webhook hook", "event_type", eventType, "webhook_url", url)
	}
	return nil
}
