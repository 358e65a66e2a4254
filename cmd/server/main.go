package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/lanternlabs/lantern/internal/api"
	"github.com/lanternlabs/lantern/internal/config"
	"github.com/lanternlabs/lantern/internal/data"
	"github.com/lanternlabs/lantern/internal/ingest"
	"github.com/lanternlabs/lantern/internal/report"
	"github.com/lanternlabs/lantern/internal/stats"
)

const serviceName = "lantern-analytics"

func main() {
	cfgPath := flag.String("config", "config/default.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Config load error: %v", err)
	}

	// DB (fatal: the durable detection log is the one hard dependency)
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}
	defer db.Close()

	detRepo := data.DetectionModel{DB: db}
	camRepo := data.CameraModel{DB: db}

	// Ingest pipeline
	pipeline := ingest.New(detRepo, ingest.Config{
		ChannelCapacity:  cfg.Ingest.ChannelCapacity,
		MaxBatchSize:     cfg.Ingest.MaxBatchSize,
		MaxBatchInterval: time.Duration(cfg.Ingest.MaxBatchIntervalMs) * time.Millisecond,
		FlushRetryMax:    cfg.Ingest.FlushRetryMax,
		FlushBackoff:     time.Duration(cfg.Ingest.FlushBackoffMs) * time.Millisecond,
		DedupMaxKeys:     cfg.Ingest.DedupMaxKeys,
		DedupTTL:         time.Duration(cfg.Ingest.DedupTTLSeconds) * time.Second,
	})
	pipeline.Start()

	// Report dispatcher: NATS when reachable, process log otherwise. The
	// nightly loop runs either way.
	var dispatcher report.Dispatcher = report.LogDispatcher{}
	var natsDisp *report.NATSDispatcher

	natsURL := cfg.NATS.URL
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	nc, err := nats.Connect(natsURL, nats.Name(serviceName))
	if err != nil {
		log.Printf("Warning: NATS connect failed: %v. Nightly reports go to the process log.", err)
	} else {
		defer nc.Close()
		natsDisp = report.NewNATSDispatcher(nc, cfg.NATS.Subject, cfg.Report.Recipient, cfg.NATS.PublishRetryMax)
		dispatcher = natsDisp
		log.Printf("Connected to NATS at %s", natsURL)
	}

	// Nightly scheduler
	var scheduler *report.Scheduler
	if cfg.Report.Enabled {
		scheduler, err = report.NewScheduler(reportConfig(cfg), detRepo, dispatcher)
		if err != nil {
			log.Fatalf("Scheduler init error: %v", err)
		}
		scheduler.Start()
	} else {
		log.Printf("Nightly reporting disabled by config")
	}

	// Stats cache
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		loc = time.UTC
	}
	statsService := stats.NewService(detRepo, rdb, loc, time.Duration(cfg.Stats.CacheTTLSeconds)*time.Second)

	// Config hot reload: recipient and cache TTL only; pipeline and scheduler
	// bounds need a restart.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	config.Watch(watchCtx, *cfgPath, func(next *config.Config) {
		if natsDisp != nil {
			natsDisp.SetRecipient(next.Report.Recipient)
		}
		statsService.SetCacheTTL(time.Duration(next.Stats.CacheTTLSeconds) * time.Second)
	})

	// HTTP
	detHandler := api.NewDetectionHandler(pipeline, camRepo)
	camHandler := api.NewCameraHandler(camRepo)
	statsHandler := api.NewStatsHandler(statsService)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(detHandler, camHandler, statsHandler, db),
	}

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("Shutdown requested")

	// Graceful shutdown order: stop accepting producers first, cancel the
	// scheduler's sleep, then drain and flush the pipeline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[ERROR] Graceful shutdown error: %v", err)
	}

	if scheduler != nil {
		scheduler.Stop()
	}
	pipeline.Stop()

	log.Printf("Server stopped gracefully (persisted=%d dropped=%d)", pipeline.Persisted(), pipeline.Dropped())
}

func reportConfig(cfg *config.Config) report.Config {
	wh, wm, err := config.ParseClock(cfg.Report.WakeTime)
	if err != nil {
		log.Fatalf("Invalid report.wake_time: %v", err)
	}
	sh, sm, err := config.ParseClock(cfg.Report.WindowStart)
	if err != nil {
		log.Fatalf("Invalid report.window_start: %v", err)
	}
	eh, em, err := config.ParseClock(cfg.Report.WindowEnd)
	if err != nil {
		log.Fatalf("Invalid report.window_end: %v", err)
	}

	return report.Config{
		WakeHour:    wh,
		WakeMinute:  wm,
		WindowStart: report.Clock{Hour: sh, Minute: sm},
		WindowEnd:   report.Clock{Hour: eh, Minute: em},
		ObjectClass: cfg.Report.ObjectClass,
		Timezone:    cfg.Report.Timezone,
	}
}
