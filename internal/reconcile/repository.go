package reconcile

import (
	"context"
	"time"

	"github.com/ignite/engagement-tracker/internal/classifier"
	"github.com/ignite/engagement-tracker/internal/domain"
)

// HumanCounts are the recipient-derived counters.
type HumanCounts struct {
	Opened  int `json:"opened"`
	Clicked int `json:"clicked"`
	Replied int `json:"replied"`
	Bounced int `json:"bounced"`
}

// BotCounts are the event-derived bot counters (one per bot-flagged hit).
type BotCounts struct {
	BotOpen  int `json:"bot_open"`
	BotClick int `json:"bot_click"`
}

// Counters merges both halves into the stored campaign aggregate.
func Counters(h HumanCounts, b BotCounts) domain.CampaignCounters {
	return domain.CampaignCounters{
		Opened:    h.Opened,
		Clicked:   h.Clicked,
		Replied:   h.Replied,
		Bounced:   h.Bounced,
		BotOpens:  b.BotOpen,
		BotClicks: b.BotClick,
	}
}

// RecipientCounter reads exact recipient flag counts for one campaign.
type RecipientCounter interface {
	// CountRecipientFlags counts recipients with opened_at/clicked_at set and
	// replied/bounced true. It must return an error rather than a partial count.
	CountRecipientFlags(ctx context.Context, campaignID string) (HumanCounts, error)
}

// BotEventCounter reads exact bot event counts for one campaign.
type BotEventCounter interface {
	// CountBotEvents counts events with is_bot = true grouped by event type.
	CountBotEvents(ctx context.Context, campaignID string) (BotCounts, error)
}

// CounterWriter overwrites campaign counters. Implementations must never
// apply the values as deltas. ErrCampaignNotFound is returned when no
// campaign row matched.
type CounterWriter interface {
	WriteHumanCounters(ctx context.Context, campaignID string, c HumanCounts) error
	WriteBotCounters(ctx context.Context, campaignID string, c BotCounts) error
	WriteCounters(ctx context.Context, campaignID string, c domain.CampaignCounters) error
}

// Cursor is a keyset position in a campaign's event log.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// IsZero reports whether the cursor is the start of the log.
func (c Cursor) IsZero() bool { return c.ID == "" && c.CreatedAt.IsZero() }

// StoredEvent is a logged event joined with its recipient's send anchor.
type StoredEvent struct {
	Event           domain.TrackingEvent
	LastEmailSentAt *time.Time
}

// EventScanner pages through a campaign's events and amends verdicts.
type EventScanner interface {
	// ScanEvents returns up to limit events ordered by (created_at, id)
	// strictly after the cursor.
	ScanEvents(ctx context.Context, campaignID string, after Cursor, limit int) ([]StoredEvent, error)

	// UpdateClassification overwrites is_bot, bot_score and bot_reasons of one
	// event. Event type, timestamps and recipient are never touched.
	UpdateClassification(ctx context.Context, eventID string, res classifier.Result) error
}
