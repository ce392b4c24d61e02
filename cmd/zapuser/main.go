// Command zapuser runs a single autonomous trading agent. It reads its
// roster index from the AGENT_INDEX environment variable, else from
// AGENT_ID="user<N>" (which zapmaster sets when it spawns an agent), else
// from the first argument, and drives one agent.Agent through boot and the
// run loop until signalled.
// Grounded on original_source/src/user/main.py.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/zap-empire/zapempire/internal/agent"
	"github.com/zap-empire/zapempire/internal/config"
	"github.com/zap-empire/zapempire/pkg/logging"
)

var errNoAgentIndex = errors.New("no agent index: set AGENT_INDEX or AGENT_ID, or pass it as the first argument")

func resolveAgentIndex() (int, error) {
	if v := os.Getenv("AGENT_INDEX"); v != "" {
		return strconv.Atoi(v)
	}
	if v := os.Getenv("AGENT_ID"); v != "" {
		// zapmaster spawns children with AGENT_ID="user<N>".
		n := strings.TrimPrefix(v, "user")
		return strconv.Atoi(n)
	}
	if flag.NArg() > 0 {
		return strconv.Atoi(flag.Arg(0))
	}
	return -1, errNoAgentIndex
}

func main() {
	projectDir := flag.String("project-dir", ".", "Project root directory (contains config.yaml)")
	flag.Parse()

	agentIndex, err := resolveAgentIndex()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*projectDir)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(&logging.Config{Level: cfg.LogLevel})
	logging.SetDefault(log)

	a, err := agent.New(agent.Config{
		Index:        agentIndex,
		DataDir:      cfg.DataDir,
		RelayURL:     cfg.RelayURL,
		TickInterval: cfg.TickInterval(),
	})
	if err != nil {
		log.Fatal("failed to construct agent", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	if err := a.Boot(ctx); err != nil {
		log.Fatal("boot failed", "error", err)
	}

	if err := a.Run(ctx); err != nil {
		log.Fatal("run failed", "error", err)
	}
}
