// Command reconcile recomputes the stored engagement counters of one
// campaign from exact counts.
//
//	reconcile [-config path] reconcile <campaign-id>
//	reconcile [-config path] reclassify <campaign-id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/pkg/distlock"
	"github.com/ignite/engagement-tracker/internal/reconcile"
	"github.com/ignite/engagement-tracker/internal/repository/postgres"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config path] reconcile|reclassify <campaign-id>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	cmd, campaignID := flag.Arg(0), flag.Arg(1)
	if cmd != "reconcile" && cmd != "reclassify" {
		usage()
		os.Exit(2)
	}
	if _, err := uuid.Parse(campaignID); err != nil {
		log.Fatalf("invalid campaign id %q: %v", campaignID, err)
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	redisClient, err := distlock.ConnectRedis(ctx, cfg.Redis.URL)
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

	var result any
	lock := distlock.NewLock(redisClient, db, distlock.CampaignKey(campaignID), cfg.Reconcile.LockTTL())
	ran, err := distlock.WithLock(ctx, lock, func(ctx context.Context) error {
		switch cmd {
		case "reclassify":
			report, err := reconcile.NewReclassifier(events, reconciler, cfg.Reconcile.PageSize).Run(ctx, campaignID)
			result = report
			return err
		default:
			human, bots, err := reconciler.ReconcileAll(ctx, campaignID)
			if err != nil {
				return err
			}
			result = reconcile.Counters(human, bots)
			return nil
		}
	})
	if !ran && err == nil {
		log.Fatalf("campaign %s is locked by another reconcile, try again later", campaignID)
	}
	if errors.Is(err, reconcile.ErrCampaignNotFound) {
		log.Fatalf("campaign %s not found", campaignID)
	}
	if err != nil {
		// A failed reclassify still reports what it changed.
		if result != nil {
			printJSON(result)
		}
		log.Fatalf("%s %s: %v", cmd, campaignID, err)
	}
	printJSON(result)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("encode result: %v", err)
	}
}
