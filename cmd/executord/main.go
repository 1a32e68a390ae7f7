// Command executord runs the simulator as a standalone executor agent that an
// engine in remote mode connects to.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kitascrape-engine/internal/agent"
	"kitascrape-engine/internal/config"
	"kitascrape-engine/internal/executor/sim"
	"kitascrape-engine/internal/logging"
	"kitascrape-engine/internal/metrics"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default <data_dir>/config.yml)")
	listen := flag.String("listen", "", "listen address, overrides agent.listen")
	flag.Parse()

	if err := run(*cfgPath, *listen); err != nil {
		fmt.Fprintln(os.Stderr, "executord:", err)
		os.Exit(1)
	}
}

func run(cfgPath, listen string) error {
	if cfgPath == "" {
		dataDir := os.Getenv(config.EnvDataDir)
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return err
		}
		p, err := config.EnsureUserConfig(dataDir, filepath.Join("config", "config.yml"))
		if err != nil {
			return fmt.Errorf("config bootstrap failed: %w", err)
		}
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", cfgPath, err)
	}
	if listen != "" {
		cfg.Agent.Listen = listen
	}
	cfg, vr := config.NormalizeAndValidate(cfg)
	if !vr.OK() {
		return errors.New(strings.Join(vr.Errors, "; "))
	}

	log := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := sim.New(sim.Options{
		Cities:      cfg.Simulator.Cities,
		MinItems:    cfg.Simulator.MinItems,
		MaxItems:    cfg.Simulator.MaxItems,
		FailureRate: cfg.Simulator.FailureRate,
		MaxLatency:  cfg.Simulator.MaxLatency,
		Logger:      log.With("component", "simulator"),
	})
	defer s.Close()

	srv := agent.New(s, agent.Options{
		StatsResend: cfg.Agent.StatsResend,
		Logger:      log.With("component", "agent"),
		Metrics:     metrics.NewAgent(),
	})

	ln, err := net.Listen("tcp", cfg.Agent.Listen)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	hs := &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		log.Info("executor agent listening", "addr", "http://"+ln.Addr().String())
		if err := hs.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(sctx)
	})

	err = g.Wait()
	log.Info("executor agent stopped")
	return err
}
