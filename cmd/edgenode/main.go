package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/soilsense/edge/internal/aggregate"
	"github.com/soilsense/edge/internal/config"
	"github.com/soilsense/edge/internal/detector"
	"github.com/soilsense/edge/internal/escalate"
	"github.com/soilsense/edge/internal/health"
	"github.com/soilsense/edge/internal/httpapi"
	"github.com/soilsense/edge/internal/metrics"
	"github.com/soilsense/edge/internal/pipeline"
	"github.com/soilsense/edge/internal/store"
	"github.com/soilsense/edge/internal/transport"
)

const (
	heartbeatSchedule = "@every 30s"
	heartbeatTTL      = 90 * time.Second
	cleanupSchedule   = "@every 1h"
)

func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.Storage.Kind == "memory" {
		return store.NewMemory(), nil
	}
	return store.NewRedis(store.RedisConfig{
		Addr:        cfg.Storage.RedisAddr,
		DB:          cfg.Storage.RedisDB,
		DialTimeout: cfg.Storage.DialTimeout.Std(),
	})
}

func main() {
	cfgPath := flag.String("config", "configs/dev/edgenode.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	st, err := newStore(cfg)
	if err != nil {
		log.Fatalf("connect to store: %v", err)
	}
	defer st.Close()

	tr, err := transport.New(transport.Config{
		Kind:       cfg.Transport.Kind,
		URL:        cfg.Transport.URL,
		ClientID:   cfg.Transport.ClientID,
		InputTopic: cfg.Transport.InputTopic,
		AlertTopic: cfg.Transport.AlertTopic,
	})
	if err != nil {
		log.Fatalf("connect transport: %v", err)
	}
	defer tr.Close()

	pipe := pipeline.New(pipeline.Options{
		NodeID:         cfg.Node.ID,
		ManagedDevices: cfg.Node.ManagedDevices,
		Bounds:         cfg.Bounds,
		Detection: detector.Config{
			ZScoreThreshold:     cfg.Detection.ZScoreThreshold,
			IQRMultiplier:       cfg.Detection.IQRMultiplier,
			ChangeRateThreshold: cfg.Detection.ChangeRateThreshold,
			HighScoreFactor:     cfg.Detection.HighScoreFactor,
		},
		BaselineSize:   cfg.Detection.BaselineSize,
		BaselineWindow: cfg.Detection.BaselineWindow.Std(),
		Aggregation: aggregate.Config{
			MinReadings: cfg.Aggregation.MinReadings,
			Methods:     cfg.Aggregation.Methods,
		},
		AggWindow:      cfg.Aggregation.Window.Std(),
		SummaryTTL:     cfg.Aggregation.CacheTTL.Std(),
		Sensitivity:    escalate.Sensitivity(cfg.Sensitivity),
		Retention:      cfg.Storage.Retention.Std(),
		OpTimeout:      cfg.Storage.OpTimeout.Std(),
		PublishTimeout: cfg.Transport.PublishTimeout.Std(),
	}, st, tr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Subscribe(ctx, func(ctx context.Context, payload []byte) {
		out := pipe.HandleMessage(ctx, payload)
		if out.Err != nil {
			log.Printf("[%s] %s stage failed: %v", out.DeviceID, out.FailedStage, out.Err)
		}
	}); err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	metrics.NodeInfo.WithLabelValues(cfg.Node.ID, cfg.Node.Region).Set(1)

	sched := cron.New()

	if _, err := sched.AddFunc(cfg.Aggregation.Sweep, func() {
		for _, device := range pipe.ManagedDevices() {
			if _, err := pipe.AggregateDevice(ctx, device); err != nil {
				log.Printf("[%s] aggregation sweep: %v", device, err)
			}
		}
	}); err != nil {
		log.Fatalf("schedule aggregation sweep: %v", err)
	}

	if _, err := sched.AddFunc(heartbeatSchedule, func() {
		heartbeat(ctx, st, cfg, tr.Connected())
	}); err != nil {
		log.Fatalf("schedule heartbeat: %v", err)
	}

	if _, err := sched.AddFunc(cleanupSchedule, func() {
		removed, err := st.Cleanup(ctx, cfg.Node.ManagedDevices, cfg.Storage.Retention.Std())
		if err != nil {
			log.Printf("cleanup: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("cleanup: removed %d expired entries", removed)
		}
	}); err != nil {
		log.Fatalf("schedule cleanup: %v", err)
	}

	sched.Start()

	// First heartbeat immediately so the node reads online before the
	// schedule fires.
	heartbeat(ctx, st, cfg, tr.Connected())

	mux := http.NewServeMux()
	mux.Handle("/health", health.Handler("ok"))
	mux.Handle("/ready", health.Readiness(st.Ping))
	mux.Handle("/metrics", promhttp.Handler())
	httpapi.New(st).Register(mux)

	srv := &http.Server{
		Addr:         cfg.Node.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("edgenode %s: http listening on %s", cfg.Node.ID, cfg.Node.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("edgenode %s: shutting down", cfg.Node.ID)
	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	offline(st, cfg)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func heartbeat(ctx context.Context, st store.Store, cfg *config.Config, connected bool) {
	hbCtx, cancel := context.WithTimeout(ctx, cfg.Storage.OpTimeout.Std())
	defer cancel()

	if err := st.SetNodeStatus(hbCtx, cfg.Node.ID, "online", heartbeatTTL); err != nil {
		log.Printf("heartbeat status: %v", err)
	}

	m := store.NodeMetrics{
		TimestampMs:        time.Now().UnixMilli(),
		NodeID:             cfg.Node.ID,
		Region:             cfg.Node.Region,
		TransportConnected: connected,
		Status:             "online",
	}
	if err := st.UpdateNodeMetrics(hbCtx, m, heartbeatTTL); err != nil {
		log.Printf("heartbeat metrics: %v", err)
	}
}

func offline(st store.Store, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.OpTimeout.Std())
	defer cancel()
	if err := st.SetNodeStatus(ctx, cfg.Node.ID, "offline", heartbeatTTL); err != nil {
		log.Printf("offline status: %v", err)
	}
}
