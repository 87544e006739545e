package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/reconcile"
)

// CampaignRepo maintains the stored counters on mailing_campaigns.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

// Get returns a campaign with its stored counters.
func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(name,''), opened_count, clicked_count, replied_count,
		       bounced_count, bot_open_count, bot_click_count, updated_at
		FROM mailing_campaigns
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &c.Counters.Opened, &c.Counters.Clicked, &c.Counters.Replied,
		&c.Counters.Bounced, &c.Counters.BotOpens, &c.Counters.BotClicks, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reconcile.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// IncrementCounter adds exactly one to the counter matching the event type
// and verdict. The column name comes from a fixed mapping, never from input.
func (r *CampaignRepo) IncrementCounter(ctx context.Context, campaignID string, t domain.EventType, isBot bool) error {
	col := domain.CounterColumn(t, isBot)
	if col == "" {
		return fmt.Errorf("increment counter: %w: event type %q", domain.ErrInvalidEvent, t)
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE mailing_campaigns SET %[1]s = %[1]s + 1, updated_at = NOW() WHERE id = $1`, col),
		campaignID)
	if err != nil {
		return fmt.Errorf("increment %s: %w", col, err)
	}
	return expectOne(res, "increment "+col)
}

// WriteHumanCounters overwrites the recipient-derived counters.
func (r *CampaignRepo) WriteHumanCounters(ctx context.Context, campaignID string, c reconcile.HumanCounts) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mailing_campaigns
		SET opened_count = $2, clicked_count = $3, replied_count = $4, bounced_count = $5,
		    updated_at = NOW()
		WHERE id = $1
	`, campaignID, c.Opened, c.Clicked, c.Replied, c.Bounced)
	if err != nil {
		return fmt.Errorf("write human counters: %w", err)
	}
	return expectOne(res, "write human counters")
}

// WriteBotCounters overwrites the event-derived bot counters.
func (r *CampaignRepo) WriteBotCounters(ctx context.Context, campaignID string, c reconcile.BotCounts) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mailing_campaigns
		SET bot_open_count = $2, bot_click_count = $3, updated_at = NOW()
		WHERE id = $1
	`, campaignID, c.BotOpen, c.BotClick)
	if err != nil {
		return fmt.Errorf("write bot counters: %w", err)
	}
	return expectOne(res, "write bot counters")
}

// WriteCounters overwrites all six counters in one statement.
func (r *CampaignRepo) WriteCounters(ctx context.Context, campaignID string, c domain.CampaignCounters) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mailing_campaigns
		SET opened_count = $2, clicked_count = $3, replied_count = $4, bounced_count = $5,
		    bot_open_count = $6, bot_click_count = $7, updated_at = NOW()
		WHERE id = $1
	`, campaignID, c.Opened, c.Clicked, c.Replied, c.Bounced, c.BotOpens, c.BotClicks)
	if err != nil {
		return fmt.Errorf("write counters: %w", err)
	}
	return expectOne(res, "write counters")
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return reconcile.ErrCampaignNotFound
	}
	return nil
}
