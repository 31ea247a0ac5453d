package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/catapult-stream/relay-server/internal/acceptor"
	"github.com/catapult-stream/relay-server/internal/logger"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

func main() {
	app := buildApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildApp() *cli.App {
	app := cli.NewApp()
	app.Name = "stream-server"
	app.Usage = "accepts one producer and fans its chunks out to many viewers per stream id"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "port, p", Value: 9000, Usage: "TCP port to listen on"},
		cli.IntFlag{Name: "threads, t", Value: 1, Usage: "number of goroutines sharing the accept loop"},
		cli.IntFlag{Name: "max-frame-size", Value: 10 << 20, Usage: "maximum accepted frame size, in bytes"},
		cli.IntFlag{Name: "queue-size", Value: 0, Usage: "max queued writes a single slow viewer may accumulate before being dropped (0 = unbounded)"},
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug|info|warn|error"},
		cli.DurationFlag{Name: "shutdown-drain", Value: 5 * time.Second, Usage: "how long graceful shutdown waits for in-flight sessions"},
		cli.StringSliceFlag{Name: "hook-script", Usage: "hook script in format event_type=script_path (repeatable)"},
		cli.StringSliceFlag{Name: "hook-webhook", Usage: "hook webhook in format event_type=webhook_url (repeatable)"},
		cli.StringFlag{Name: "hook-stdio-format", Usage: "enable structured stdio hook output: json|env (empty=disabled)"},
		cli.StringFlag{Name: "hook-timeout", Value: "30s", Usage: "timeout for hook execution"},
		cli.IntFlag{Name: "hook-concurrency", Value: 10, Usage: "maximum concurrent hook executions"},
	}
	app.Before = validateFlags
	app.Action = run
	return app
}

// run is the cli.Action. It also accepts the legacy positional form
// `stream-server <port> <threadNumber>` so existing launch scripts keep
// working; named flags take precedence when both are given.
func run(c *cli.Context) error {
	port := c.Int("port")
	threads := c.Int("threads")
	if c.NArg() >= 1 && !c.IsSet("port") {
		if v, err := parsePositiveInt(c.Args().Get(0)); err == nil {
			port = v
		}
	}
	if c.NArg() >= 2 && !c.IsSet("threads") {
		if v, err := parsePositiveInt(c.Args().Get(1)); err == nil {
			threads = v
		}
	}

	logger.Init()
	if c.IsSet("log-level") {
		if err := logger.SetLevel(c.String("log-level")); err != nil {
			fmt.Printf("Warning: invalid log level %q, using default\n", c.String("log-level"))
		}
	}
	log := logger.Logger().With("component", "cli")

	a := acceptor.New(acceptor.Config{
		ListenAddr:       fmt.Sprintf(":%d", port),
		Threads:          threads,
		MaxFrameSize:     uint32(c.Int("max-frame-size")),
		MaxViewerBacklog: c.Int("queue-size"),
		ShutdownDrain:    c.Duration("shutdown-drain"),
		HookScripts:      c.StringSlice("hook-script"),
		HookWebhooks:     c.StringSlice("hook-webhook"),
		HookStdioFormat:  c.String("hook-stdio-format"),
		HookTimeout:      c.String("hook-timeout"),
		HookConcurrency:  c.Int("hook-concurrency"),
	})

	if err := a.Start(); err != nil {
		log.Error("failed to start acceptor", "error", err)
		return err
	}
	log.Info("server started", "addr", a.Addr().String(), "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := a.Stop(); err != nil {
			log.Error("acceptor stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
	return nil
}

func parsePositiveInt(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be positive: %q", s)
	}
	return v, nil
}
