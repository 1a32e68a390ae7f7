package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"kitascrape-engine/internal/config"
	"kitascrape-engine/internal/events"
	"kitascrape-engine/internal/executor"
	"kitascrape-engine/internal/executor/remote"
	"kitascrape-engine/internal/executor/sim"
	"kitascrape-engine/internal/history"
	"kitascrape-engine/internal/httpapi"
	"kitascrape-engine/internal/logging"
	"kitascrape-engine/internal/metrics"
	"kitascrape-engine/internal/scheduler"
	"kitascrape-engine/internal/session"
	"kitascrape-engine/internal/store"
)

const checkpointEvery = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
}

func run() error {
	// Engine data dir: use env if provided (the desktop shell passes one), else local folder.
	dataDir := os.Getenv(config.EnvDataDir)
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		return fmt.Errorf("config bootstrap failed: %w", err)
	}

	// Load config and keep it reloadable
	var cfgVal atomic.Value // stores config.Config
	loadCfg := func() (config.Config, error) {
		cfg, err := config.Load(userCfgPath)
		if err != nil {
			return cfg, err
		}
		config.OverlayEnv(&cfg, os.Getenv)
		cfg.App.DataDir = dataDir
		cfg, vr := config.NormalizeAndValidate(cfg)
		if !vr.OK() {
			return cfg, errors.New(strings.Join(vr.Errors, "; "))
		}
		return cfg, nil
	}
	cfg, err := loadCfg()
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", userCfgPath, err)
	}
	cfgVal.Store(cfg)

	log := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	_, vr := config.NormalizeAndValidate(cfg)
	for _, w := range vr.Warnings {
		log.Warn("config warning", "msg", w)
	}

	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("another engine is already using %s", dataDir)
	}
	defer func() { _ = lock.Unlock() }()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, shutdown := context.WithCancel(sigCtx)
	defer shutdown()

	m := metrics.NewEngine()

	var (
		persister  history.Persister
		checkpoint func(context.Context) error
	)
	switch cfg.History.Backend {
	case "file":
		persister = history.NewFilePersister(filepath.Join(dataDir, cfg.History.File))
	default:
		dbPath := filepath.Join(dataDir, cfg.History.DB)
		db, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", dbPath, err)
		}
		defer db.Close()
		persister = store.NewHistoryRepo(db)
		checkpoint = db.Checkpoint
	}
	hist := history.Open(ctx, persister, history.Options{
		Capacity: cfg.History.Capacity,
		Logger:   log.With("component", "history"),
		Metrics:  m,
	})
	defer hist.Close()

	hub := events.NewHub()

	var (
		exec    executor.Executor
		simExec *sim.Simulator
		client  *remote.Client
	)
	switch executor.Mode(cfg.Executor.Mode) {
	case executor.ModeRemote:
		rc := cfg.Executor.Remote
		client, err = remote.New(remote.Options{
			BaseURL:        rc.BaseURL,
			RequestTimeout: rc.RequestTimeout,
			PingInterval:   rc.PingInterval,
			Reconnect: remote.ReconnectPolicy{
				MaxAttempts:  rc.Reconnect.MaxAttempts,
				InitialDelay: rc.Reconnect.InitialDelay,
				MaxDelay:     rc.Reconnect.MaxDelay,
			},
			Logger:  log.With("component", "executor"),
			Metrics: m,
		})
		if err != nil {
			return err
		}
		exec = client
	default:
		simExec = sim.New(sim.Options{
			Cities:      cfg.Simulator.Cities,
			MinItems:    cfg.Simulator.MinItems,
			MaxItems:    cfg.Simulator.MaxItems,
			FailureRate: cfg.Simulator.FailureRate,
			MaxLatency:  cfg.Simulator.MaxLatency,
			Logger:      log.With("component", "simulator"),
		})
		defer simExec.Close()
		exec = simExec
	}

	ctrl := session.New(exec, hist, session.Options{
		Logger:   log.With("component", "session"),
		Metrics:  m,
		Notifier: hub,
	})
	if simExec != nil {
		simExec.Bind(ctrl.Status)
	}

	token := cfg.App.ShutdownToken
	if token == "" {
		if token, err = writeShutdownToken(dataDir); err != nil {
			return err
		}
	}

	deps := httpapi.Deps{
		Session:       ctrl,
		History:       hist,
		Hub:           hub,
		ExecutorMode:  cfg.Executor.Mode,
		Connected:     exec.Connected,
		CfgVal:        &cfgVal,
		UserCfgPath:   userCfgPath,
		LoadCfg:       loadCfg,
		Checkpoint:    checkpoint,
		Metrics:       m.Handler(),
		ShutdownToken: token,
		Shutdown:      shutdown,
		Logger:        log.With("component", "http"),
	}
	if client != nil {
		deps.Reconnect = client.Reconnect
	}

	ln, err := net.Listen("tcp", cfg.App.Listen)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		// SSE streams end with the process.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error { return ctrl.Run(gctx) })
	if client != nil {
		g.Go(func() error { return client.Run(gctx) })
	}
	if checkpoint != nil {
		g.Go(func() error {
			scheduler.Every(gctx, log, checkpointEvery, "wal-checkpoint", checkpoint)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("engine listening", "addr", "http://"+ln.Addr().String(), "executor", cfg.Executor.Mode,
			"history", cfg.History.Backend, "data_dir", dataDir)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	log.Info("engine stopped")
	return err
}

// writeShutdownToken generates a token for this run and leaves it where the
// desktop shell can read it.
func writeShutdownToken(dataDir string) (string, error) {
	token, err := httpapi.RandomToken(16)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dataDir, "shutdown.token")
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return token, nil
}
