// Command paperminderd runs the PaperMinder WebSocket coordination hub
// between web clients and networked thermal printers.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kardianos/service"

	"paperminder/internal/bitmap"
	"paperminder/internal/config"
	"paperminder/internal/handlers"
	"paperminder/internal/logger"
	"paperminder/internal/registry"
	"paperminder/internal/rollout"
	"paperminder/internal/router"
	"paperminder/internal/scheduler"
	"paperminder/internal/session"
	"paperminder/internal/storage"
	"paperminder/internal/tracker"
	"paperminder/internal/wsconn"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config.toml", "Configuration file path")
	generateConfig := flag.Bool("generate-config", false, "Generate default config file and exit")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	healthCheck := flag.Bool("health", false, "Perform a local health check against /health and exit")
	svcCommand := flag.String("service", "", "Service command: install, uninstall, start, stop, restart, run")
	flag.Parse()

	if *showVersion {
		fmt.Printf("paperminderd %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return
	}

	if *generateConfig {
		if err := config.WriteDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("generated default configuration at %s\n", *configPath)
		return
	}

	if *healthCheck {
		if err := runHealthCheck(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("healthy")
		return
	}

	if *svcCommand != "" {
		handleServiceCommand(*svcCommand, *configPath)
		return
	}

	if !service.Interactive() {
		prg := &program{configFlag: *configPath}
		s, err := service.New(prg, getServiceConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create service: %v\n", err)
			os.Exit(1)
		}
		if err := s.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "service execution failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server exited: %v\n", err)
		os.Exit(1)
	}
}

func handleServiceCommand(cmd, configPath string) {
	prg := &program{configFlag: configPath}
	s, err := service.New(prg, getServiceConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create service: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "install":
		if err := s.Install(); err != nil {
			fmt.Fprintf(os.Stderr, "install failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("service installed")
	case "uninstall":
		if err := s.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "uninstall failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("service uninstalled")
	case "start", "stop", "restart":
		if err := s.Control(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", cmd, err)
			os.Exit(1)
		}
		fmt.Printf("service %s\n", cmd)
	case "run":
		if err := s.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown service command %q\n", cmd)
		os.Exit(1)
	}
}

func runHealthCheck(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	addr := cfg.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// runServer wires the storage backend, the core engine, and the HTTP
// surface (WebSocket upgrade endpoint plus /health and /api/version), and
// blocks until ctx is cancelled.
func runServer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := logger.INFO
	switch strings.ToLower(cfg.LogLevel) {
	case "error":
		level = logger.ERROR
	case "warn":
		level = logger.WARN
	case "debug":
		level = logger.DEBUG
	case "trace":
		level = logger.TRACE
	}
	log := logger.New(level, cfg.LogDir)
	defer log.Close()

	store, err := storage.Open(storage.DatabaseConfig{
		Driver: cfg.Database.EffectiveDriver(),
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	writeTimeout := time.Duration(cfg.WriteTimeoutSec) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	maxFrameBytes := cfg.MaxFrameBytes
	if maxFrameBytes <= 0 {
		maxFrameBytes = 64 * 1024
	}

	reg := registry.New(store, log, writeTimeout)
	rtr := router.New(reg, store, log, writeTimeout)
	evalr := rollout.New(store, log, cfg.BaseURL)
	trackr := tracker.New(store, log)
	bmp := bitmap.New(reg)
	_ = bmp // the bitmap dispatcher is invoked by the HTTP print-request collaborator (spec.md §6), out of this process's own routes

	tickInterval := time.Duration(cfg.SchedulerTickS) * time.Second
	if tickInterval <= 0 {
		tickInterval = 30 * time.Second
	}
	sched := scheduler.New(store, reg, evalr, log, tickInterval)
	sched.Start(ctx)
	defer sched.Stop()

	mux := http.NewServeMux()
	handlers.NewHealthAPI(store, reg).RegisterRoutes(mux)
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		urlIdentity := strings.TrimPrefix(r.URL.Path, "/ws/")
		if urlIdentity == "" {
			urlIdentity = uuid.NewString()
		}
		conn, err := wsconn.Upgrade(w, r)
		if err != nil {
			log.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
			return
		}
		loop := session.New(conn, urlIdentity, reg, store, rtr, evalr, trackr, log, maxFrameBytes, writeTimeout)
		go loop.Run(r.Context())
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Info("paperminderd listening", "addr", cfg.HTTPAddr, "driver", cfg.Database.EffectiveDriver())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
