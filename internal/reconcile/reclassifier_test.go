package reconcile_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/classifier"
	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/reconcile"
)

const safariUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148"

func seedReclassifyStore(t *testing.T) *memStore {
	t.Helper()
	s := newMemStore("c1")
	sent := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	s.recipients["r1"] = &domain.Recipient{ID: "r1", CampaignID: "c1", LastEmailSentAt: &sent}

	// Scored under an older rule set: nothing flagged.
	for i := 0; i < 7; i++ {
		s.events = append(s.events, &domain.TrackingEvent{
			ID:          fmt.Sprintf("e%02d", i),
			CampaignID:  "c1",
			RecipientID: "r1",
			Type:        domain.EventOpen,
			CreatedAt:   sent.Add(time.Duration(i+1) * time.Hour),
			UserAgent:   safariUA,
			BotReasons:  []string{},
		})
	}
	// A scanner hit one second after send, stored as human.
	s.events = append(s.events, &domain.TrackingEvent{
		ID: "fast", CampaignID: "c1", RecipientID: "r1", Type: domain.EventOpen,
		CreatedAt: sent.Add(time.Second), UserAgent: safariUA, BotReasons: []string{},
	})
	// A human click previously mis-flagged as bot.
	s.events = append(s.events, &domain.TrackingEvent{
		ID: "flagged", CampaignID: "c1", RecipientID: "r1", Type: domain.EventClick,
		CreatedAt: sent.Add(2 * time.Hour), UserAgent: safariUA,
		Click: &domain.ClickDetails{TargetURL: "https://example.com"},
		IsBot: true, BotScore: 100, BotReasons: []string{classifier.ReasonKnownBotUA},
	})
	s.counters["c1"].BotClicks = 1
	return s
}

func TestReclassifier_AmendsChangedEventsAndRecountsBots(t *testing.T) {
	s := seedReclassifyStore(t)
	rc := reconcile.NewReclassifier(s, newReconciler(s), 3)

	report, err := rc.Run(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, 9, report.Scanned)
	assert.Equal(t, 2, report.Changed)
	assert.Equal(t, 1, report.BecameBot)
	assert.Equal(t, 1, report.BecameHuman)
	require.NotNil(t, report.BotCounts)
	assert.Equal(t, reconcile.BotCounts{BotOpen: 1, BotClick: 0}, *report.BotCounts)

	assert.Equal(t, 1, s.counters["c1"].BotOpens)
	assert.Equal(t, 0, s.counters["c1"].BotClicks)

	for _, e := range s.events {
		switch e.ID {
		case "fast":
			assert.True(t, e.IsBot)
			assert.Equal(t, []string{classifier.ReasonSpeedTrapCritical}, e.BotReasons)
			assert.Equal(t, domain.EventOpen, e.Type, "event type must never change")
		case "flagged":
			assert.False(t, e.IsBot)
			assert.Empty(t, e.BotReasons)
		}
	}
}

func TestReclassifier_SecondPassChangesNothing(t *testing.T) {
	s := seedReclassifyStore(t)
	rc := reconcile.NewReclassifier(s, newReconciler(s), 4)

	_, err := rc.Run(context.Background(), "c1")
	require.NoError(t, err)
	after := *s.counters["c1"]

	report, err := rc.Run(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Changed)
	assert.Equal(t, after, *s.counters["c1"], "rerun must not double count")
}

func TestReclassifier_ScanFailureBeforeAnyChange(t *testing.T) {
	s := seedReclassifyStore(t)
	s.failScanAfter = 1
	rc := reconcile.NewReclassifier(s, newReconciler(s), 3)

	_, err := rc.Run(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, 0, s.writes, "nothing amended, so no counters are written")
	assert.Equal(t, 1, s.counters["c1"].BotClicks)
}

func TestReclassifier_ScanFailureAfterChangesStillRecounts(t *testing.T) {
	s := seedReclassifyStore(t)
	// Page size 1: "fast" is the oldest event and is amended on page 1; page 3 fails.
	s.failScanAfter = 3
	rc := reconcile.NewReclassifier(s, newReconciler(s), 1)

	report, err := rc.Run(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, 1, report.Changed)
	require.NotNil(t, report.BotCounts)
	assert.Equal(t, 1, s.counters["c1"].BotOpens)
}
