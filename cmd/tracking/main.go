package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/repository/postgres"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	var (
		dispatcher tracking.Dispatcher
		stop       = func() {}
	)
	switch cfg.Tracking.Dispatch {
	case config.DispatchSQS:
		if cfg.SQS.QueueURL == "" {
			log.Fatal("SQS_TRACKING_QUEUE_URL is required when dispatch is sqs")
		}
		awsCfg, err := cfg.SQS.AWSConfig(context.Background())
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		pub := tracking.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.SQS.QueueURL)
		dispatcher, stop = pub, pub.Close
		log.Printf("dispatching tracking events to SQS (%s)", cfg.SQS.QueueURL)

	case config.DispatchLocal:
		db, err := postgres.Open(context.Background(), cfg.Database)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()

		recipients := postgres.NewRecipientRepo(db)
		rec := tracking.NewRecorder(recipients, postgres.NewEventRepo(db), postgres.NewCampaignRepo(db))
		local := tracking.NewLocalDispatcher(rec, cfg.Tracking.Workers, cfg.Tracking.BufferSize, cfg.Tracking.RecordTimeout())
		local.Start()
		dispatcher, stop = local, local.Stop
		log.Printf("recording tracking events in-process (%d workers)", cfg.Tracking.Workers)

	default:
		log.Fatalf("unknown tracking dispatch %q", cfg.Tracking.Dispatch)
	}

	handler := tracking.NewHandler(dispatcher)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("tracking service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down tracking service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	// Drain buffered hits only after no handler can dispatch anymore.
	stop()
	log.Println("tracking service stopped")
}
