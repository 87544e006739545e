package domain

import "time"

// RecipientStatus enumerates the delivery states of a campaign recipient.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// Recipient is the per-campaign, per-address state the classifier reads and
// the human verdict path updates. OpenedAt and ClickedAt are set at most once.
type Recipient struct {
	ID              string          `json:"id" db:"id"`
	CampaignID      string          `json:"campaign_id" db:"campaign_id"`
	Email           string          `json:"email" db:"email"`
	LastEmailSentAt *time.Time      `json:"last_email_sent_at" db:"last_email_sent_at"`
	OpenedAt        *time.Time      `json:"opened_at" db:"opened_at"`
	ClickedAt       *time.Time      `json:"clicked_at" db:"clicked_at"`
	Status          RecipientStatus `json:"status" db:"status"`
	Bounced         bool            `json:"bounced" db:"bounced"`
	Replied         bool            `json:"replied" db:"replied"`
}

// HasEngaged reports whether the given event type has already been recorded
// as a human engagement for this recipient.
func (r *Recipient) HasEngaged(t EventType) bool {
	switch t {
	case EventOpen:
		return r.OpenedAt != nil
	case EventClick:
		return r.ClickedAt != nil
	}
	return false
}
