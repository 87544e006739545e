package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/pkg/distlock"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/reconcile"
	"github.com/ignite/engagement-tracker/internal/repository/postgres"
	"github.com/ignite/engagement-tracker/internal/tracking"
	"github.com/ignite/engagement-tracker/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log.Println("Starting engagement worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	db, err := postgres.Open(context.Background(), cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	redisClient, err := distlock.ConnectRedis(context.Background(), cfg.Redis.URL)
	if err != nil {
		log.Printf("Warning: %v, falling back to PG advisory locks", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Println("Redis connected (distributed locking enabled)")
	}

	recipients := postgres.NewRecipientRepo(db)
	events := postgres.NewEventRepo(db)
	campaigns := postgres.NewCampaignRepo(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQS consumer: only when the tracking service publishes to a queue.
	var consumer *tracking.Consumer
	if cfg.Tracking.Dispatch == config.DispatchSQS {
		if cfg.SQS.QueueURL == "" {
			log.Fatal("SQS_TRACKING_QUEUE_URL is required when dispatch is sqs")
		}
		awsCfg, err := cfg.SQS.AWSConfig(ctx)
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		rec := tracking.NewRecorder(recipients, events, campaigns)
		consumer = tracking.NewConsumer(sqs.NewFromConfig(awsCfg), cfg.SQS.QueueURL, rec)
		consumer.Start(ctx)
	}

	if cfg.Reconcile.Enabled {
		reconciler := reconcile.NewReconciler(recipients, events, campaigns)
		rw := worker.NewReconcileWorker(events, reconciler, lockFactory(redisClient, db),
			cfg.Reconcile.Interval(), cfg.Reconcile.Lookback(), cfg.Reconcile.Concurrency, cfg.Reconcile.LockTTL())
		go rw.Start(ctx)
		log.Printf("Reconcile Worker started (every %s, lookback %s)", cfg.Reconcile.Interval(), cfg.Reconcile.Lookback())
	}

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	if consumer != nil {
		consumer.Stop()
	}
	cancel()

	// Give in-flight reconciles a moment to release their locks.
	time.Sleep(2 * time.Second)
	log.Println("Worker stopped")
}

func lockFactory(redisClient *redis.Client, db *sql.DB) worker.LockFactory {
	return func(key string, ttl time.Duration) distlock.DistLock {
		return distlock.NewLock(redisClient, db, key, ttl)
	}
}
