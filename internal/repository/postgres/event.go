package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/engagement-tracker/internal/classifier"
	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/reconcile"
)

// EventRepo reads and writes the mailing_tracking_events log.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// InsertEvent appends evt. A redelivered event id is ignored and reported
// as not inserted.
func (r *EventRepo) InsertEvent(ctx context.Context, evt *domain.TrackingEvent) (bool, error) {
	md, err := json.Marshal(evt.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal event metadata: %w", err)
	}
	reasons := evt.BotReasons
	if reasons == nil {
		reasons = []string{}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO mailing_tracking_events
			(id, campaign_id, recipient_id, event_type, user_agent, ip_address,
			 is_bot, bot_score, bot_reasons, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, evt.CampaignID, evt.RecipientID, string(evt.Type), evt.UserAgent, evt.IPAddress,
		evt.IsBot, evt.BotScore, pq.Array(reasons), md, evt.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert tracking event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert tracking event: %w", err)
	}
	return n == 1, nil
}

// ScanEvents pages through a campaign's events in (created_at, id) order,
// joined with the recipient's last send time.
func (r *EventRepo) ScanEvents(ctx context.Context, campaignID string, after reconcile.Cursor, limit int) ([]reconcile.StoredEvent, error) {
	q := `
		SELECT e.id, e.campaign_id, e.recipient_id, e.event_type, e.created_at,
		       COALESCE(e.user_agent,''), COALESCE(e.ip_address,''),
		       e.is_bot, e.bot_score, e.bot_reasons, e.metadata, r.last_email_sent_at
		FROM mailing_tracking_events e
		LEFT JOIN mailing_campaign_recipients r ON r.id = e.recipient_id
		WHERE e.campaign_id = $1`
	args := []interface{}{campaignID}
	if !after.IsZero() {
		q += ` AND (e.created_at, e.id) > ($2, $3)`
		args = append(args, after.CreatedAt, after.ID)
	}
	q += fmt.Sprintf(` ORDER BY e.created_at, e.id LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	defer rows.Close()

	var out []reconcile.StoredEvent
	for rows.Next() {
		var (
			se      reconcile.StoredEvent
			evtType string
			md      []byte
			sentAt  sql.NullTime
		)
		e := &se.Event
		if err := rows.Scan(
			&e.ID, &e.CampaignID, &e.RecipientID, &evtType, &e.CreatedAt,
			&e.UserAgent, &e.IPAddress,
			&e.IsBot, &e.BotScore, pq.Array(&e.BotReasons), &md, &sentAt,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.Type = domain.EventType(evtType)
		if len(md) > 0 {
			if err := json.Unmarshal(md, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %s: %w", e.ID, err)
			}
		}
		if e.Type == domain.EventClick {
			e.Click = domain.ClickFromMetadata(e.Metadata)
		}
		se.LastEmailSentAt = nullTime(sentAt)
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

// UpdateClassification amends the verdict columns of one event.
func (r *EventRepo) UpdateClassification(ctx context.Context, eventID string, res classifier.Result) error {
	reasons := res.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE mailing_tracking_events
		SET is_bot = $2, bot_score = $3, bot_reasons = $4
		WHERE id = $1
	`, eventID, res.IsBot, res.Score, pq.Array(reasons))
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update classification: event %s not found", eventID)
	}
	return nil
}

// CountBotEvents counts bot-flagged events per type.
func (r *EventRepo) CountBotEvents(ctx context.Context, campaignID string) (reconcile.BotCounts, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*)
		FROM mailing_tracking_events
		WHERE campaign_id = $1 AND is_bot
		GROUP BY event_type
	`, campaignID)
	if err != nil {
		return reconcile.BotCounts{}, fmt.Errorf("count bot events: %w", err)
	}
	defer rows.Close()

	var c reconcile.BotCounts
	for rows.Next() {
		var (
			evtType string
			n       int
		)
		if err := rows.Scan(&evtType, &n); err != nil {
			return reconcile.BotCounts{}, fmt.Errorf("scan bot count: %w", err)
		}
		switch domain.EventType(evtType) {
		case domain.EventOpen:
			c.BotOpen = n
		case domain.EventClick:
			c.BotClick = n
		}
	}
	if err := rows.Err(); err != nil {
		return reconcile.BotCounts{}, fmt.Errorf("count bot events: %w", err)
	}
	return c, nil
}

// ListActiveCampaigns returns campaigns with at least one event since the
// given time.
func (r *EventRepo) ListActiveCampaigns(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT campaign_id
		FROM mailing_tracking_events
		WHERE created_at >= $1
		ORDER BY campaign_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan campaign id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
