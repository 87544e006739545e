package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/engagement-tracker/internal/classifier"
	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// ErrRecipientNotFound is returned when the event references no known
// recipient of the campaign.
var ErrRecipientNotFound = errors.New("recipient not found")

// RecipientStore reads and conditionally updates recipient engagement state.
type RecipientStore interface {
	GetRecipient(ctx context.Context, campaignID, recipientID string) (*domain.Recipient, error)

	// MarkEngaged sets opened_at or clicked_at to at only if it is still
	// null. It reports whether this call performed the transition.
	MarkEngaged(ctx context.Context, campaignID, recipientID string, t domain.EventType, at time.Time) (bool, error)
}

// EventWriter appends to the tracking event log.
type EventWriter interface {
	// InsertEvent stores evt. It reports false without error when an event
	// with the same id is already logged (a redelivered message).
	InsertEvent(ctx context.Context, evt *domain.TrackingEvent) (bool, error)
}

// CounterIncrementer bumps a campaign counter by exactly one.
type CounterIncrementer interface {
	IncrementCounter(ctx context.Context, campaignID string, t domain.EventType, isBot bool) error
}

// Outcome describes what Record did with one event.
type Outcome struct {
	Result           classifier.Result
	// Duplicate is set when the event id was already logged.
	Duplicate        bool
	FirstEngagement  bool
	CounterIncreased bool
}

// Recorder applies the verdict policy to one observed hit:
//
//   - every hit is classified and inserted into the event log;
//   - a bot verdict increments the campaign bot counter and leaves the
//     recipient untouched;
//   - a human verdict sets opened_at/clicked_at only if still null, and the
//     human counter is incremented only on that first transition.
//
// Recorder holds no mutable state and is safe for concurrent use.
type Recorder struct {
	recipients RecipientStore
	events     EventWriter
	counters   CounterIncrementer
}

// NewRecorder creates a recorder over the given stores.
func NewRecorder(recipients RecipientStore, events EventWriter, counters CounterIncrementer) *Recorder {
	return &Recorder{recipients: recipients, events: events, counters: counters}
}

// Record classifies and persists evt. evt.CreatedAt must already hold the
// time of the hit, not the time of processing.
func (rec *Recorder) Record(ctx context.Context, evt *domain.TrackingEvent) (Outcome, error) {
	var out Outcome
	if err := evt.Validate(); err != nil {
		return out, err
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}

	r, err := rec.recipients.GetRecipient(ctx, evt.CampaignID, evt.RecipientID)
	if err != nil {
		return out, fmt.Errorf("load recipient: %w", err)
	}

	out.Result = classifier.Score(classifier.FromEvent(evt, r.LastEmailSentAt))
	classifier.Apply(evt, out.Result)

	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	evt.Metadata = evt.BuildMetadata()
	inserted, err := rec.events.InsertEvent(ctx, evt)
	if err != nil {
		return out, fmt.Errorf("insert event: %w", err)
	}
	out.Duplicate = !inserted

	if out.Result.IsBot {
		// The bot counter is per event and was handled by the first delivery.
		if out.Duplicate {
			return out, nil
		}
		if err := rec.counters.IncrementCounter(ctx, evt.CampaignID, evt.Type, true); err != nil {
			return out, fmt.Errorf("increment bot counter: %w", err)
		}
		out.CounterIncreased = true
		logger.Info("bot engagement",
			"event_type", string(evt.Type),
			"campaign_id", evt.CampaignID,
			"recipient_id", evt.RecipientID,
			"bot_score", out.Result.Score,
			"bot_reasons", out.Result.Reasons,
		)
		return out, nil
	}

	// Already engaged: the event is logged but nothing else moves. A
	// redelivered human event still gets here so a failed MarkEngaged from
	// the first delivery is retried.
	if r.HasEngaged(evt.Type) {
		return out, nil
	}

	first, err := rec.recipients.MarkEngaged(ctx, evt.CampaignID, evt.RecipientID, evt.Type, evt.CreatedAt)
	if err != nil {
		return out, fmt.Errorf("mark recipient %s: %w", evt.Type, err)
	}
	out.FirstEngagement = first
	if !first {
		return out, nil
	}
	if err := rec.counters.IncrementCounter(ctx, evt.CampaignID, evt.Type, false); err != nil {
		return out, fmt.Errorf("increment counter: %w", err)
	}
	out.CounterIncreased = true
	logger.Debug("human engagement",
		"event_type", string(evt.Type),
		"campaign_id", evt.CampaignID,
		"recipient_id", evt.RecipientID,
	)
	return out, nil
}
