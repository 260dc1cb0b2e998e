package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/adrelay/internal/adapter/httpserver"
	"github.com/pscheid92/adrelay/internal/adapter/metrics"
	"github.com/pscheid92/adrelay/internal/app"
	"github.com/pscheid92/adrelay/internal/platform/config"
	"github.com/pscheid92/adrelay/internal/platform/logging"
	"github.com/pscheid92/adrelay/internal/platform/version"
	"github.com/pscheid92/adrelay/internal/relay"
)

const shutdownTimeout = 10 * time.Second

type servers struct {
	public   *httpserver.Server
	internal *httpserver.InternalServer
}

func runGracefulShutdown(srvs servers, stopMonitor context.CancelFunc, hub *relay.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Stop accepting triggers first so nothing races the hub's final close frames.
		if err := srvs.internal.Shutdown(shutdownCtx); err != nil {
			slog.Error("Internal server shutdown error", "error", err)
		}

		stopMonitor()
		hub.Stop()

		// Hijacked sockets are not tracked by Shutdown; the hub closed them above.
		if err := srvs.public.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Relay starting", "env", cfg.AppEnv, "port", cfg.Port, "internal_addr", cfg.InternalAddr(), "version", version.Get().String())

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	socketMetrics := metrics.NewSocketMetrics(reg)
	relayMetrics := metrics.NewRelayMetrics(reg)

	hub := relay.NewHub(clock, relayMetrics)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitor := relay.NewMonitor(hub, clock, cfg.HeartbeatInterval)
	go monitor.Run(monitorCtx)

	triggers := app.NewTriggerService(hub, hub, clock)

	srvs := servers{
		public:   httpserver.NewServer(cfg, hub, httpserver.Metrics{HTTP: httpMetrics, Socket: socketMetrics}, clock),
		internal: httpserver.NewInternalServer(cfg, triggers, httpMetrics, metrics.Handler(reg)),
	}

	done := runGracefulShutdown(srvs, stopMonitor, hub)

	go func() {
		if err := srvs.internal.Start(); err != nil {
			slog.Error("Internal server error", "error", err)
			os.Exit(1)
		}
	}()

	if err := srvs.public.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Relay stopped")
}
