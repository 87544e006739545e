package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/reconcile"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

// RecipientRepo reads and updates mailing_campaign_recipients.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

func (r *RecipientRepo) GetRecipient(ctx context.Context, campaignID, recipientID string) (*domain.Recipient, error) {
	var (
		rec                     domain.Recipient
		sentAt, openAt, clickAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, email, last_email_sent_at, opened_at, clicked_at,
		       status, bounced, replied
		FROM mailing_campaign_recipients
		WHERE id = $1 AND campaign_id = $2
	`, recipientID, campaignID).Scan(
		&rec.ID, &rec.CampaignID, &rec.Email, &sentAt, &openAt, &clickAt,
		&rec.Status, &rec.Bounced, &rec.Replied,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracking.ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	rec.LastEmailSentAt = nullTime(sentAt)
	rec.OpenedAt = nullTime(openAt)
	rec.ClickedAt = nullTime(clickAt)
	return &rec, nil
}

// MarkEngaged sets opened_at or clicked_at only while it is still null, so
// of several concurrent first hits exactly one observes the transition.
func (r *RecipientRepo) MarkEngaged(ctx context.Context, campaignID, recipientID string, t domain.EventType, at time.Time) (bool, error) {
	var col string
	switch t {
	case domain.EventOpen:
		col = "opened_at"
	case domain.EventClick:
		col = "clicked_at"
	default:
		return false, fmt.Errorf("mark engaged: %w: event type %q", domain.ErrInvalidEvent, t)
	}

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE mailing_campaign_recipients
		SET %[1]s = $3, updated_at = NOW()
		WHERE id = $1 AND campaign_id = $2 AND %[1]s IS NULL
	`, col), recipientID, campaignID, at)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", col, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", col, err)
	}
	return n == 1, nil
}

// CountRecipientFlags counts the human engagement flags in one statement so
// the four numbers come from the same snapshot.
func (r *RecipientRepo) CountRecipientFlags(ctx context.Context, campaignID string) (reconcile.HumanCounts, error) {
	var c reconcile.HumanCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE opened_at IS NOT NULL),
		       COUNT(*) FILTER (WHERE clicked_at IS NOT NULL),
		       COUNT(*) FILTER (WHERE replied),
		       COUNT(*) FILTER (WHERE bounced)
		FROM mailing_campaign_recipients
		WHERE campaign_id = $1
	`, campaignID).Scan(&c.Opened, &c.Clicked, &c.Replied, &c.Bounced)
	if err != nil {
		return reconcile.HumanCounts{}, fmt.Errorf("count recipient flags: %w", err)
	}
	return c, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
