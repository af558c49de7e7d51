package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/capitolworks/legis/internal/archive"
	"github.com/capitolworks/legis/internal/chamber"
	"github.com/capitolworks/legis/internal/config"
	"github.com/capitolworks/legis/internal/enactment"
	"github.com/capitolworks/legis/internal/httpserver"
	"github.com/capitolworks/legis/internal/limiter"
	"github.com/capitolworks/legis/internal/service"
	"github.com/capitolworks/legis/internal/store"
	"github.com/capitolworks/legis/internal/sweeper"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	st := store.NewPGStore(db)

	limits := limiter.Limits{
		MaxActivePerSponsor: cfg.MaxActivePerSponsor,
		DailyChamberMax:     cfg.DailyChamberMax,
		Cooldown:            cfg.SubmitCooldown,
	}
	var lim limiter.Limiter = limiter.NewMemory(limits)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		lim = limiter.NewRedis(redis.NewClient(opts), limits)
	}

	opts := service.Options{}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := enactment.NewKafkaProducer(enactment.KafkaProducerConfig{Brokers: cfg.KafkaBrokers})
		if err != nil {
			log.Fatalf("kafka producer init: %v", err)
		}
		defer producer.Close()
		opts.Dispatcher = enactment.NewDispatcher(producer)
	}
	if cfg.ArchiveBucket != "" {
		archiver, err := archive.NewS3Archiver(context.Background(), cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			log.Fatalf("archiver init: %v", err)
		}
		opts.Archiver = archiver
	}

	svc := service.New(st, chamber.Default(), lim, opts)
	server := httpserver.New(svc, st, time.Now)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := sweeper.New(st, func(ctx context.Context, billID uuid.UUID, now time.Time) error {
		_, err := svc.ResolveIfExpired(ctx, billID, now)
		return err
	}, sweeper.Config{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	})
	go sw.Run(ctx)

	go func() {
		log.Printf("legis service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(cancel, httpServer)
}

func waitForShutdown(cancel context.CancelFunc, srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
