package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/engagement-tracker/internal/api"
	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/mailing"
	"github.com/ignite/engagement-tracker/internal/pkg/distlock"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/reconcile"
	"github.com/ignite/engagement-tracker/internal/repository/postgres"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	ln.Close()
	return nil
}

// extractHost returns host:port of a postgres DSN for logging without credentials.
func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Admin.Port)
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	db, err := postgres.Open(context.Background(), cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Printf("Connected to database at %s", extractHost(cfg.Database.URL))

	redisClient, err := distlock.ConnectRedis(context.Background(), cfg.Redis.URL)
	if err != nil {
		log.Printf("Warning: %v, falling back to PG advisory locks", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	events := postgres.NewEventRepo(db)
	campaigns := postgres.NewCampaignRepo(db)
	reconciler := reconcile.NewReconciler(postgres.NewRecipientRepo(db), events, campaigns)
	reclassifier := reconcile.NewReclassifier(events, reconciler, cfg.Reconcile.PageSize)

	handlers := api.NewHandlers(reconciler, reclassifier, campaigns,
		mailing.NewLinkRewriter(cfg.Tracking.BaseURL), lockFactory(redisClient, db, cfg.Reconcile.LockTTL()))
	server := api.NewServer(cfg.Admin, handlers, api.NewHealthChecker(db, redisClient))

	go func() {
		log.Printf("Admin API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down admin API...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func lockFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) api.LockFactory {
	return func(key string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, key, ttl)
	}
}
