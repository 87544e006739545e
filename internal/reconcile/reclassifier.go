package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ignite/engagement-tracker/internal/classifier"
)

// DefaultReclassifyPageSize is the number of events read per page.
const DefaultReclassifyPageSize = 500

// ReclassifyReport summarises one reclassification pass.
type ReclassifyReport struct {
	CampaignID  string        `json:"campaign_id"`
	Scanned     int           `json:"scanned"`
	Changed     int           `json:"changed"`
	BecameBot   int           `json:"became_bot"`
	BecameHuman int           `json:"became_human"`
	BotCounts   *BotCounts    `json:"bot_counts,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Reclassifier rescores a campaign's logged events with the current rules.
type Reclassifier struct {
	scanner    EventScanner
	reconciler *Reconciler
	pageSize   int
}

// NewReclassifier creates a reclassifier. pageSize <= 0 uses the default.
func NewReclassifier(scanner EventScanner, reconciler *Reconciler, pageSize int) *Reclassifier {
	if pageSize <= 0 {
		pageSize = DefaultReclassifyPageSize
	}
	return &Reclassifier{scanner: scanner, reconciler: reconciler, pageSize: pageSize}
}

// Run rescores every event of the campaign, amends the ones whose result
// changed, and then recomputes the campaign's bot counters from scratch.
// Human counters are not touched: a verdict change never rewrites recipient
// state. If the scan stops early, bot counters are still recomputed when any
// event was amended, and both errors are returned.
func (rc *Reclassifier) Run(ctx context.Context, campaignID string) (ReclassifyReport, error) {
	report := ReclassifyReport{CampaignID: campaignID}
	if strings.TrimSpace(campaignID) == "" {
		return report, ErrEmptyCampaignID
	}
	start := time.Now()

	scanErr := rc.scan(ctx, campaignID, &report)

	if scanErr != nil && report.Changed == 0 {
		report.Duration = time.Since(start)
		return report, scanErr
	}

	// Reconcile on a fresh context if the scan was cancelled after writes,
	// so the counters reflect the amended events.
	rctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
	}
	counts, err := rc.reconciler.ReconcileBotCounts(rctx, campaignID)
	report.Duration = time.Since(start)
	if err != nil {
		return report, errors.Join(scanErr, err)
	}
	report.BotCounts = &counts

	log.Printf("[Reclassifier] campaign=%s scanned=%d changed=%d became_bot=%d became_human=%d in %s",
		campaignID, report.Scanned, report.Changed, report.BecameBot, report.BecameHuman,
		report.Duration.Round(time.Millisecond))
	return report, scanErr
}

func (rc *Reclassifier) scan(ctx context.Context, campaignID string, report *ReclassifyReport) error {
	var cursor Cursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := rc.scanner.ScanEvents(ctx, campaignID, cursor, rc.pageSize)
		if err != nil {
			return fmt.Errorf("scan events after %s: %w", cursor.ID, err)
		}
		for i := range page {
			row := &page[i]
			report.Scanned++

			res, changed := classifier.Reclassify(&row.Event, row.LastEmailSentAt)
			if !changed {
				continue
			}
			if err := rc.scanner.UpdateClassification(ctx, row.Event.ID, res); err != nil {
				return fmt.Errorf("update event %s: %w", row.Event.ID, err)
			}
			report.Changed++
			switch {
			case res.IsBot && !row.Event.IsBot:
				report.BecameBot++
			case !res.IsBot && row.Event.IsBot:
				report.BecameHuman++
			}
		}
		if len(page) < rc.pageSize {
			return nil
		}
		last := page[len(page)-1].Event
		cursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}
