// Command zapmaster is the Zap Empire process supervisor: it spawns and
// monitors the relay, mint, and user-agent processes described by a
// manifest and exposes a control socket for zapctl.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zap-empire/zapempire/internal/supervisor"
	"github.com/zap-empire/zapempire/pkg/logging"
)

var (
	version = "0.1.0-dev"
)

func main() {
	var (
		projectDir  = flag.String("project-dir", ".", "Project root directory (contains config/agents.json)")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("zapmaster %s", version)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := supervisor.New(supervisor.Config{ProjectDir: *projectDir, Log: log})

	shutdownOnce := make(chan struct{})
	triggerShutdown := func() {
		select {
		case <-shutdownOnce:
			return
		default:
			close(shutdownOnce)
			cancel()
		}
	}

	control := supervisor.NewControlServer(*projectDir, sup, triggerShutdown)
	if err := control.Start(ctx); err != nil {
		log.Fatal("failed to start control server", "error", err)
	}

	if err := sup.StartAll(ctx); err != nil {
		log.Fatal("failed to start agents", "error", err)
	}

	go sup.MonitorLoop(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("received shutdown signal")
	case <-ctx.Done():
		log.Info("shutdown requested via control socket")
	}

	cancel()
	sup.Shutdown()
	_ = control.Close()
	log.Info("goodbye")
}
