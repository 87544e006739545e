package domain

import "time"

// CampaignCounters are the six aggregate engagement counters stored on a
// campaign. They are derived state: the reconciler can always rebuild them
// from recipient rows and the tracking event log.
type CampaignCounters struct {
	Opened    int `json:"opened_count" db:"opened_count"`
	Clicked   int `json:"clicked_count" db:"clicked_count"`
	Replied   int `json:"replied_count" db:"replied_count"`
	Bounced   int `json:"bounced_count" db:"bounced_count"`
	BotOpens  int `json:"bot_open_count" db:"bot_open_count"`
	BotClicks int `json:"bot_click_count" db:"bot_click_count"`
}

// Campaign is the subset of a campaign row the engagement subsystem reads.
type Campaign struct {
	ID        string           `json:"id" db:"id"`
	Name      string           `json:"name" db:"name"`
	Counters  CampaignCounters `json:"counters"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// CounterColumn maps an event type and verdict to the campaign column the
// inline path increments.
func CounterColumn(t EventType, isBot bool) string {
	switch {
	case t == EventOpen && isBot:
		return "bot_open_count"
	case t == EventOpen:
		return "opened_count"
	case t == EventClick && isBot:
		return "bot_click_count"
	case t == EventClick:
		return "clicked_count"
	}
	return ""
}
