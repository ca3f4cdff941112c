package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleet-monitor/locintel/internal/anomaly"
	"fleet-monitor/locintel/internal/auth"
	"fleet-monitor/locintel/internal/config"
	"fleet-monitor/locintel/internal/geofence"
	"fleet-monitor/locintel/internal/hub"
	"fleet-monitor/locintel/internal/judge"
	"fleet-monitor/locintel/internal/logger"
	"fleet-monitor/locintel/internal/notify"
	"fleet-monitor/locintel/internal/pipeline"
	"fleet-monitor/locintel/internal/store"
	transport "fleet-monitor/locintel/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorw("Server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		redisStore *store.RedisStore
		live       transport.LiveCache
		keyLookup  auth.KeyLookup
		stateSize  int
	)
	if cfg.RedisEnabled {
		redisStore, err = store.NewRedisStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		live, keyLookup, stateSize = redisStore, redisStore, cfg.StateQueueSize
		log.Infow("Redis connected", "addr", cfg.RedisAddr)
	}

	var push notify.Sender = notify.Noop{}
	if cfg.PushGatewayURL != "" {
		push = notify.NewHTTPSender(cfg.PushGatewayURL, cfg.PushTimeout, log)
	}

	h := hub.New(cfg.ChannelBuffer, log)
	dispatcher := pipeline.NewDispatcher(cfg.GeofenceQueueSize, stateSize)
	evaluator := geofence.NewEvaluator(st, h, push, cfg.GeofenceCooldown, log)
	detector := anomaly.NewDetector(st, judge.NewClient(cfg, log), h, push, rulesFromConfig(cfg), cfg.AnomalyWindow, log)

	api := transport.NewServer(transport.Deps{
		Auth:    auth.NewAuthenticator(cfg, keyLookup, log),
		Ingest:  pipeline.NewIngestor(st, h, dispatcher, log),
		Zones:   geofence.NewService(st, log),
		Anomaly: detector,
		Hub:     h,
		Store:   st,
		Live:    live,
		Logger:  log,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < cfg.GeofenceWorkers; i++ {
		w := pipeline.NewGeofenceWorker(dispatcher.GeofenceChan, evaluator, log)
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}
	if redisStore != nil {
		writer := pipeline.NewStateWriter(dispatcher.StateChan, redisStore, log)
		g.Go(func() error {
			writer.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		h.RunHeartbeat(ctx, cfg.HeartbeatInterval)
		return nil
	})

	if cfg.JudgeAPIKey != "" {
		sweeper := anomaly.NewSweeper(detector, st, cfg.AnomalyInterval, cfg.AnomalySweepConcurrent, log)
		g.Go(func() error {
			sweeper.Run(ctx)
			return nil
		})
	} else {
		log.Warn("JUDGE_API_KEY not set, periodic anomaly sweep disabled")
	}

	g.Go(func() error {
		log.Infow("HTTP server listening", "addr", srv.Addr, "store", cfg.StoreBackend, "redis", cfg.RedisEnabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.StoreBackend {
	case "memory":
		st = store.NewMemoryStore()
		log.Warn("Using in-memory store, data is lost on restart")
	default:
		st, err = store.NewTimescaleStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Infow("PostgreSQL connected", "host", cfg.DBHost, "db", cfg.DBName)
	}

	if len(cfg.SeedEntities) > 0 {
		n, err := store.Seed(ctx, st, cfg.SeedEntities)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("seed entities: %w", err)
		}
		log.Infow("Seeded entities", "count", n)
	}
	return st, nil
}

func rulesFromConfig(cfg *config.Config) anomaly.Rules {
	rules := anomaly.DefaultRules()
	rules.SpeedThresholdKmh = cfg.SpeedThresholdKmh
	rules.SpeedWindow = time.Duration(cfg.SpeedWindowSeconds) * time.Second
	rules.StationaryMeters = cfg.StationaryMeters
	rules.NightStartHour = cfg.NightStartHour
	rules.NightEndHour = cfg.NightEndHour
	// Validate has already checked the zone name.
	if loc, err := time.LoadLocation(cfg.NightTimezone); err == nil {
		rules.Location = loc
	}
	return rules
}
