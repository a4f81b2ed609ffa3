package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"armtracker/internal/platform/config"
	"armtracker/internal/platform/logger"
	"armtracker/internal/platform/metrics"
	"armtracker/internal/store"
	"armtracker/internal/tracker"
	"armtracker/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const (
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var robotID string

	cmd := &cobra.Command{
		Use:          "armtracker",
		Short:        "2D robotic arm motion tracker",
		Long:         "Tracks simulated robotic arms: ingests joint commands from the message bus, advances forward kinematics on a fixed interval, persists state, and republishes poses.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, robotID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().StringVarP(&robotID, "id", "i", "", "track only the robot with this id")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// filterRobots narrows the configured robots to the one named id. An id that
// is not in the configuration is an operator mistake, not an empty set.
func filterRobots(robots []config.RobotConfig, id string) ([]config.RobotConfig, error) {
	for _, r := range robots {
		if r.ID == id {
			return []config.RobotConfig{r}, nil
		}
	}
	return nil, fmt.Errorf("robot %q not in configuration", id)
}

func run(configPath, robotID string) error {
	_ = config.Load()

	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	log := logger.New(logLevel, logFormat)

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	if robotID != "" {
		cfg.Robots, err = filterRobots(cfg.Robots, robotID)
		if err != nil {
			return err
		}
	}

	port := cfg.Health.Port
	if port == 0 {
		port = 8080
	}
	port = config.GetEnvInt("PORT", port)

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	var st store.Store
	if cfg.Store.Address != "" {
		redisStore, err := store.NewRedisStore(startCtx, cfg.Store.Address, cfg.Store.Password)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		st = redisStore
	} else {
		log.Warn("no store configured, state will not survive restarts")
		st = store.NewInMemoryStore()
	}

	var tp transport.Transport
	if cfg.Transport.URL != "" {
		amqpTransport, err := transport.NewAMQPTransport(cfg.Transport.URL)
		if err != nil {
			return err
		}
		tp = amqpTransport
	} else {
		log.Warn("no transport configured, messages stay in-process")
		tp = transport.NewInMemoryTransport()
	}
	defer tp.Close()

	met := metrics.New()
	tk := tracker.New(tp, st, log, met)
	if err := tk.Start(startCtx, cfg.Robots); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if !tk.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK\n"))
	})
	metricsHandler := met.Handler(func() { met.SetActiveRobots(tk.ActiveRobots()) })
	r.Get("/metrics", metricsHandler.ServeHTTP)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("tracker running",
		"robots", len(cfg.Robots),
		"port", port,
		"config_version", cfg.Version,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping robots")

	// Ingest stops before ticking; collaborator connections close last via
	// the deferred Close calls above.
	tk.Stop()

	ctx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("health server shutdown: %w", err)
	}

	log.Info("tracker stopped")
	return nil
}
