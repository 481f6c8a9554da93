// Package main is the entry point for the pibuild gateway.
// One binary runs the WebSocket gateway, the agent registry, the session
// orchestrator, PTY and RPC session managers, the thread engine, and the
// teams driver together over a shared event bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/agent/registry"
	"github.com/arosstale/pi-builder-sub000/internal/agent/wrappers"
	"github.com/arosstale/pi-builder-sub000/internal/common/config"
	"github.com/arosstale/pi-builder-sub000/internal/common/constants"
	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
	"github.com/arosstale/pi-builder-sub000/internal/events"
	"github.com/arosstale/pi-builder-sub000/internal/events/bus"
	"github.com/arosstale/pi-builder-sub000/internal/gateway"
	"github.com/arosstale/pi-builder-sub000/internal/mcpserver"
	"github.com/arosstale/pi-builder-sub000/internal/pty"
	"github.com/arosstale/pi-builder-sub000/internal/rpc"
	"github.com/arosstale/pi-builder-sub000/internal/session"
	"github.com/arosstale/pi-builder-sub000/internal/teams"
	"github.com/arosstale/pi-builder-sub000/internal/threads"
	"github.com/arosstale/pi-builder-sub000/internal/tracing"
)

func main() {
	// .env is optional; real config comes from viper (file + env + flags).
	_ = godotenv.Load()

	args := os.Args[1:]
	cmd := "start"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "agents":
		os.Exit(runAgents(args))
	case "run":
		os.Exit(runOnce(args))
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `pibuild - local-first gateway for CLI coding agents

Usage:
  pibuild start [flags]    start the gateway (default)
  pibuild agents           print the agent registry with health status
  pibuild run <prompt>     run one prompt through the orchestrator and exit

Start flags:
  --config    config file directory
  --host      listen host (default 127.0.0.1)
  --port      listen port (default 18900)
  --work-dir  working directory for agent tasks
  --agents    comma-separated agent ids to register (default: all)
  --db        chat history DSN: ':memory:', sqlite path, or postgres URL
`)
}

// loadConfig loads configuration and applies command-line overrides.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, string, error) {
	configPath := fs.String("config", "", "config file directory")
	host := fs.String("host", "", "listen host")
	port := fs.Int("port", 0, "listen port")
	workDir := fs.String("work-dir", "", "working directory for agent tasks")
	agents := fs.String("agents", "", "comma-separated agent ids to register")
	db := fs.String("db", "", "chat history DSN")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	cfg, err := config.LoadWithPath(*configPath)
	if err != nil {
		return nil, "", err
	}

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *workDir != "" {
		cfg.Server.WorkDir = *workDir
	}
	if *db != "" {
		cfg.Session.DB = *db
	}

	return cfg, *agents, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.NewLogger(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// newRegistry builds the agent registry. An empty filter registers the full
// default wrapper catalog; otherwise only the named agents are registered.
func newRegistry(cfg *config.Config, filter string, log *logger.Logger) (*registry.Registry, error) {
	preferred := registry.WithPreferredAgents(cfg.Session.PreferredAgents...)
	if strings.TrimSpace(filter) == "" {
		return registry.NewDefaultRegistry(log, preferred), nil
	}

	wanted := map[string]bool{}
	for _, id := range strings.Split(filter, ",") {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = true
		}
	}

	reg := registry.NewRegistry(log, preferred)
	for _, w := range wrappers.DefaultWrappers() {
		if !wanted[w.ID()] {
			continue
		}
		if err := reg.Register(w); err != nil {
			return nil, err
		}
		delete(wanted, w.ID())
	}
	if len(wanted) > 0 {
		ids := make([]string, 0, len(wanted))
		for id := range wanted {
			ids = append(ids, id)
		}
		return nil, fmt.Errorf("unknown agents: %s", strings.Join(ids, ", "))
	}
	if len(reg.List()) == 0 {
		return nil, fmt.Errorf("no agents registered")
	}
	return reg, nil
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	cfg, agentFilter, err := loadConfig(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providedBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Error("failed to connect event bus", zap.Error(err))
		return 1
	}
	defer func() { _ = busCleanup() }()
	eventBus := providedBus.Bus

	reg, err := newRegistry(cfg, agentFilter, log)
	if err != nil {
		log.Error("failed to build agent registry", zap.Error(err))
		return 1
	}

	sess := session.New(cfg, reg, eventBus, log)
	if err := sess.Start(ctx); err != nil {
		log.Error("failed to start session", zap.Error(err))
		return 1
	}

	ptyMgr := pty.NewManager(eventBus, log)
	rpcMgr := rpc.NewManager(eventBus, log)
	threadEngine := threads.NewEngine(rpcMgr, eventBus, log)

	teamsDriver, err := teams.NewDriver(cfg.Teams.BaseDir, eventBus, log)
	if err != nil {
		log.Error("failed to initialize teams driver", zap.Error(err))
		return 1
	}

	server := gateway.NewServer(cfg, gateway.Deps{
		Session:  sess,
		Registry: reg,
		Pty:      ptyMgr,
		RPC:      rpcMgr,
		Threads:  threadEngine,
		Teams:    teamsDriver,
		Bus:      eventBus,
	}, log)

	if err := server.Start(ctx); err != nil {
		log.Error("failed to start gateway", zap.Error(err))
		return 1
	}
	log.Info("pibuild gateway started",
		zap.String("addr", server.Addr()),
		zap.Int("agents", len(reg.List())))

	// The MCP surface is optional and never blocks gateway start.
	var mcpCleanup func() error
	if cfg.MCP.Enabled {
		_, cleanup, err := mcpserver.Provide(ctx, mcpserver.Config{
			Port:    cfg.MCP.Port,
			WorkDir: cfg.Server.WorkDir,
		}, mcpserver.Deps{Registry: reg, Session: sess}, log)
		if err != nil {
			log.Warn("MCP server failed to start, continuing without it", zap.Error(err))
		} else {
			mcpCleanup = cleanup
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer shutdownCancel()

	exitCode := 0
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("gateway shutdown error", zap.Error(err))
		exitCode = 1
	}
	if mcpCleanup != nil {
		if err := mcpCleanup(); err != nil {
			log.Error("MCP server shutdown error", zap.Error(err))
		}
	}
	threadEngine.Close()
	teamsDriver.Close()
	rpcMgr.KillAll()
	ptyMgr.CloseAll()
	if err := sess.Close(); err != nil {
		log.Error("session close error", zap.Error(err))
		exitCode = 1
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", zap.Error(err))
	}

	log.Info("pibuild stopped")
	return exitCode
}

func runAgents(args []string) int {
	fs := flag.NewFlagSet("agents", flag.ExitOnError)
	cfg, agentFilter, err := loadConfig(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	// Health probes only; keep log noise off the table output.
	cfg.Logging.Level = "error"
	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	reg, err := newRegistry(cfg, agentFilter, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build agent registry: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	health := reg.CheckHealth(ctx)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBINARY\tHEALTHY\tCAPABILITIES")
	for _, w := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n",
			w.ID(), w.Name(), w.Binary(), health[w.ID()],
			strings.Join(w.Capabilities(), ","))
	}
	_ = tw.Flush()
	return 0
}

func runOnce(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg, agentFilter, err := loadConfig(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: pibuild run <prompt>")
		return 1
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	reg, err := newRegistry(cfg, agentFilter, log)
	if err != nil {
		log.Error("failed to build agent registry", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.NewMemoryEventBus(log)
	sess := session.New(cfg, reg, eventBus, log)
	if err := sess.Start(ctx); err != nil {
		log.Error("failed to start session", zap.Error(err))
		return 1
	}
	defer func() { _ = sess.Close() }()

	result := <-sess.ProcessMessage(prompt)
	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", result.Err)
		return 1
	}
	if result.Message != nil {
		fmt.Println(result.Message.Content)
	}
	if result.Result != nil && !result.Result.OK() {
		return 1
	}
	return 0
}
