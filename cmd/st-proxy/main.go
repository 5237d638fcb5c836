package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"

	"split-tunnel-proxy/internal/core"
	"split-tunnel-proxy/internal/ipc"
	"split-tunnel-proxy/internal/policy"
	"split-tunnel-proxy/internal/process"
	"split-tunnel-proxy/internal/proxy"
	"split-tunnel-proxy/internal/service"
)

// Build info, injected via ldflags at compile time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	showStatus := flag.Bool("status", false, "Print the status of a running proxy and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("st-proxy %s (commit=%s, built=%s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// === 1. Configuration and logging ===
	bus := core.NewEventBus()
	cfgManager := core.NewConfigManager(resolveRelativeToExe(*configPath), bus)
	if err := cfgManager.Load(); err != nil {
		log.Fatalf("[Core] Failed to load config: %v", err)
	}
	cfg := cfgManager.Get()

	if *showStatus {
		if err := printStatus(cfg.Control.Socket); err != nil {
			log.Fatalf("[IPC] %v", err)
		}
		return
	}

	logOut, err := core.OpenLogOutput(cfg.Logging)
	if err != nil {
		log.Fatalf("[Core] %v", err)
	}
	defer logOut.Close()
	logger := core.NewLogger(cfg.Logging)
	core.Log = logger
	logger.Infof("Core", "Split tunnel proxy %s starting...", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === 2. Platform ===
	plat := newPlatform()
	binder := plat.NewInterfaceBinder(cfg.Redirect.RoutingMark)
	ports := plat.NewProcessID()

	// === 3. Policy ===
	matcher := process.NewMatcher()
	matcher.StartRevalidation(ctx)
	resolver := process.NewResolver(tokenPIDs(ports), matcher)
	evaluator := policy.NewEvaluator(policy.AppTable{}, resolver, logger)

	// === 4. Proxy engine ===
	outbound, err := proxy.NewOutbound(plat.LookupInterface, binder)
	if err != nil {
		log.Fatalf("[Core] %v", err)
	}
	registry := proxy.NewRegistry(bus)
	dispatcher := proxy.NewDispatcher(proxy.DispatcherConfig{
		Evaluator: evaluator,
		Factory:   &proxy.DefaultFactory{Outbound: outbound, Registry: registry, Log: logger},
		Registry:  registry,
		Bus:       bus,
		Log:       logger,
		State:     cfg.Vpn,
	})

	// === 5. Control plane ===
	stats := service.NewStatsCollector(registry, bus, func() string {
		return dispatcher.State().NetworkInterface
	})
	svc := service.New(service.Config{
		Dispatcher:    dispatcher,
		Stats:         stats,
		ConfigManager: cfgManager,
		Log:           logger,
		Version:       version,
	})
	tracker := ipc.NewConnTracker(logger)
	server := ipc.NewServer(svc, grpc.UnaryInterceptor(tracker.UnaryInterceptor()))
	svc.Start(ctx)

	// === 6. Serve ===
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("IPC", "Control plane listening on %s", cfg.Control.Socket)
		if err := server.Start(cfg.Control.Socket); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	stopHost, err := startRedirectHost(gctx, cfg.Redirect, dispatcher, binder, logger)
	if err != nil {
		logger.Errorf("Core", "Failed to start redirect host: %v", err)
		cancel()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	logger.Infof("Core", "Running. Press Ctrl+C to stop.")
	select {
	case s := <-sig:
		logger.Infof("Core", "Received %s", s)
	case <-gctx.Done():
	}

	// === Graceful shutdown (reverse order) ===
	logger.Infof("Core", "Shutting down...")
	cancel()

	done := make(chan struct{})
	go func() {
		if stopHost != nil {
			stopHost()
		}
		server.Stop()
		svc.Stop()
		dispatcher.Close()
		close(done)
	}()

	select {
	case <-done:
		if err := g.Wait(); err != nil {
			logger.Errorf("Core", "Exited with error: %v", err)
			os.Exit(1)
		}
		logger.Infof("Core", "Shutdown complete.")
	case <-time.After(shutdownTimeout):
		logger.Errorf("Core", "Shutdown timed out, forcing exit.")
		os.Exit(1)
	}
}

// printStatus queries a running proxy over the control socket.
func printStatus(address string) error {
	client, err := ipc.Dial(address)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return err
	}
	status, err := client.Control.GetStatus(ctx, &emptypb.Empty{})
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	out, err := json.MarshalIndent(status.AsMap(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// resolveRelativeToExe resolves a relative path against the directory containing
// the running executable. Absolute paths are returned unchanged.
func resolveRelativeToExe(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		log.Printf("[Core] Cannot determine executable path, using %q as-is: %v", path, err)
		return path
	}
	return filepath.Join(filepath.Dir(exe), path)
}
