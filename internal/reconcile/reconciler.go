package reconcile

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Reconciler recomputes campaign counters from ground truth.
// It holds no state of its own and is safe for concurrent use.
type Reconciler struct {
	recipients RecipientCounter
	events     BotEventCounter
	writer     CounterWriter
}

// NewReconciler creates a reconciler over the given stores.
func NewReconciler(recipients RecipientCounter, events BotEventCounter, writer CounterWriter) *Reconciler {
	return &Reconciler{recipients: recipients, events: events, writer: writer}
}

// Reconcile recounts opened/clicked/replied/bounced from recipient rows and
// overwrites the human counters.
func (r *Reconciler) Reconcile(ctx context.Context, campaignID string) (HumanCounts, error) {
	if strings.TrimSpace(campaignID) == "" {
		return HumanCounts{}, ErrEmptyCampaignID
	}
	counts, err := r.recipients.CountRecipientFlags(ctx, campaignID)
	if err != nil {
		return HumanCounts{}, fmt.Errorf("count recipients: %w", err)
	}
	if err := r.writer.WriteHumanCounters(ctx, campaignID, counts); err != nil {
		return HumanCounts{}, fmt.Errorf("write human counters: %w", err)
	}
	log.Printf("[Reconciler] campaign=%s opened=%d clicked=%d replied=%d bounced=%d",
		campaignID, counts.Opened, counts.Clicked, counts.Replied, counts.Bounced)
	return counts, nil
}

// ReconcileBotCounts recounts bot-flagged events and overwrites the bot
// counters. It is the only way bot counters are corrected after a
// reclassification pass.
func (r *Reconciler) ReconcileBotCounts(ctx context.Context, campaignID string) (BotCounts, error) {
	if strings.TrimSpace(campaignID) == "" {
		return BotCounts{}, ErrEmptyCampaignID
	}
	counts, err := r.events.CountBotEvents(ctx, campaignID)
	if err != nil {
		return BotCounts{}, fmt.Errorf("count bot events: %w", err)
	}
	if err := r.writer.WriteBotCounters(ctx, campaignID, counts); err != nil {
		return BotCounts{}, fmt.Errorf("write bot counters: %w", err)
	}
	log.Printf("[Reconciler] campaign=%s bot_open=%d bot_click=%d", campaignID, counts.BotOpen, counts.BotClick)
	return counts, nil
}

// ReconcileAll reads both halves first and only then overwrites all six
// counters in a single write. A failure on either read leaves every stored
// counter untouched.
func (r *Reconciler) ReconcileAll(ctx context.Context, campaignID string) (HumanCounts, BotCounts, error) {
	if strings.TrimSpace(campaignID) == "" {
		return HumanCounts{}, BotCounts{}, ErrEmptyCampaignID
	}
	human, err := r.recipients.CountRecipientFlags(ctx, campaignID)
	if err != nil {
		return HumanCounts{}, BotCounts{}, fmt.Errorf("count recipients: %w", err)
	}
	bots, err := r.events.CountBotEvents(ctx, campaignID)
	if err != nil {
		return HumanCounts{}, BotCounts{}, fmt.Errorf("count bot events: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return HumanCounts{}, BotCounts{}, err
	}
	if err := r.writer.WriteCounters(ctx, campaignID, Counters(human, bots)); err != nil {
		return HumanCounts{}, BotCounts{}, fmt.Errorf("write counters: %w", err)
	}
	log.Printf("[Reconciler] campaign=%s full reconcile opened=%d clicked=%d replied=%d bounced=%d bot_open=%d bot_click=%d",
		campaignID, human.Opened, human.Clicked, human.Replied, human.Bounced, bots.BotOpen, bots.BotClick)
	return human, bots, nil
}
