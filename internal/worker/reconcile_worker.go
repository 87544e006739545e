package worker

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/engagement-tracker/internal/pkg/distlock"
	"github.com/ignite/engagement-tracker/internal/reconcile"
)

// =============================================================================
// RECONCILE WORKER: Repairs Campaign Counters From Exact Counts
// =============================================================================
// The inline tracking path increments counters one hit at a time. Dropped
// hits, crashes between the event insert and the counter update, and
// reclassified events all leave the stored counters off. This worker
// periodically recomputes all six counters of every campaign that received
// events within the lookback window.
//
// Each campaign is reconciled under a distributed lock so several worker
// replicas (and the admin API) never recompute the same campaign at once.

const (
	// DefaultReconcileInterval is how often active campaigns are reconciled.
	DefaultReconcileInterval = 15 * time.Minute

	// DefaultReconcileLookback selects campaigns with events this recent.
	DefaultReconcileLookback = 72 * time.Hour

	// DefaultReconcileConcurrency bounds campaigns reconciled in parallel.
	DefaultReconcileConcurrency = 4

	// DefaultReconcileLockTTL must exceed the slowest campaign reconcile.
	DefaultReconcileLockTTL = 5 * time.Minute
)

// ActiveCampaignLister lists campaigns with events since a point in time.
type ActiveCampaignLister interface {
	ListActiveCampaigns(ctx context.Context, since time.Time) ([]string, error)
}

// CampaignReconciler recomputes the counters of one campaign.
type CampaignReconciler interface {
	ReconcileAll(ctx context.Context, campaignID string) (reconcile.HumanCounts, reconcile.BotCounts, error)
}

// LockFactory returns a lock for the given key and TTL.
type LockFactory func(key string, ttl time.Duration) distlock.DistLock

// RunStats summarises one reconcile cycle.
type RunStats struct {
	Campaigns  int
	Reconciled int
	Locked     int
	Failed     int
}

// ReconcileWorker periodically reconciles the counters of active campaigns.
type ReconcileWorker struct {
	campaigns   ActiveCampaignLister
	reconciler  CampaignReconciler
	locks       LockFactory
	interval    time.Duration
	lookback    time.Duration
	concurrency int
	lockTTL     time.Duration
	now         func() time.Time
}

// NewReconcileWorker creates a worker. Zero durations and concurrency use
// the defaults.
func NewReconcileWorker(campaigns ActiveCampaignLister, reconciler CampaignReconciler, locks LockFactory,
	interval, lookback time.Duration, concurrency int, lockTTL time.Duration) *ReconcileWorker {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if lookback <= 0 {
		lookback = DefaultReconcileLookback
	}
	if concurrency <= 0 {
		concurrency = DefaultReconcileConcurrency
	}
	if lockTTL <= 0 {
		lockTTL = DefaultReconcileLockTTL
	}
	return &ReconcileWorker{
		campaigns:   campaigns,
		reconciler:  reconciler,
		locks:       locks,
		interval:    interval,
		lookback:    lookback,
		concurrency: concurrency,
		lockTTL:     lockTTL,
		now:         time.Now,
	}
}

// Start begins the reconcile loop. It blocks until ctx is cancelled.
func (rw *ReconcileWorker) Start(ctx context.Context) {
	log.Printf("[Reconcile] Starting (interval=%s, lookback=%s, concurrency=%d)",
		rw.interval, rw.lookback, rw.concurrency)

	rw.runCycle(ctx)

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Reconcile] Stopping")
			return
		case <-ticker.C:
			rw.runCycle(ctx)
		}
	}
}

func (rw *ReconcileWorker) runCycle(ctx context.Context) {
	start := time.Now()
	stats, err := rw.RunOnce(ctx)
	if err != nil {
		log.Printf("[Reconcile] Cycle failed: %v", err)
		return
	}
	log.Printf("[Reconcile] Cycle completed in %s: %d campaigns, %d reconciled, %d locked elsewhere, %d failed",
		time.Since(start).Round(time.Millisecond), stats.Campaigns, stats.Reconciled, stats.Locked, stats.Failed)
}

// RunOnce reconciles every active campaign once. A failing campaign is
// logged and counted; it does not stop the others.
func (rw *ReconcileWorker) RunOnce(ctx context.Context) (RunStats, error) {
	ids, err := rw.campaigns.ListActiveCampaigns(ctx, rw.now().Add(-rw.lookback))
	if err != nil {
		return RunStats{}, fmt.Errorf("list active campaigns: %w", err)
	}

	var reconciled, locked, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rw.concurrency)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ran, err := distlock.WithLock(gctx, rw.locks(distlock.CampaignKey(id), rw.lockTTL), func(ctx context.Context) error {
				_, _, err := rw.reconciler.ReconcileAll(ctx, id)
				return err
			})
			switch {
			case err != nil:
				failed.Add(1)
				log.Printf("[Reconcile] Campaign %s: %v", id, err)
			case !ran:
				locked.Add(1)
			default:
				reconciled.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return RunStats{
		Campaigns:  len(ids),
		Reconciled: int(reconciled.Load()),
		Locked:     int(locked.Load()),
		Failed:     int(failed.Load()),
	}, ctx.Err()
}
