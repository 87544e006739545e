package domain

import (
	"errors"
	"time"
)

// EventType enumerates the engagement events the tracking endpoints observe.
type EventType string

const (
	EventOpen  EventType = "open"
	EventClick EventType = "click"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	return t == EventOpen || t == EventClick
}

// Metadata keys stored alongside every event.
const (
	MetaTargetURL   = "target_url"
	MetaIsGhostLink = "is_ghost_link"
)

// ErrInvalidEvent is returned by Validate for events missing required fields.
var ErrInvalidEvent = errors.New("invalid tracking event")

// ClickDetails carries the fields that only exist for click events.
type ClickDetails struct {
	TargetURL   string `json:"target_url,omitempty"`
	IsGhostLink bool   `json:"is_ghost_link"`
}

// TrackingEvent is one observed pixel or redirect hit. It is written once at
// classification time and never deleted; only the bot verdict fields may be
// amended later by a reclassification pass.
type TrackingEvent struct {
	ID          string        `json:"id" db:"id"`
	CampaignID  string        `json:"campaign_id" db:"campaign_id"`
	RecipientID string        `json:"recipient_id" db:"recipient_id"`
	Type        EventType     `json:"event_type" db:"event_type"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UserAgent   string        `json:"user_agent" db:"user_agent"`
	IPAddress   string        `json:"ip_address,omitempty" db:"ip_address"`
	Click       *ClickDetails `json:"click,omitempty"`

	IsBot      bool     `json:"is_bot" db:"is_bot"`
	BotScore   int      `json:"bot_score" db:"bot_score"`
	BotReasons []string `json:"bot_reasons" db:"bot_reasons"`

	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`
}

// IsGhostLinkHit reports whether the event is a click on a honeypot link.
func (e *TrackingEvent) IsGhostLinkHit() bool {
	return e.Type == EventClick && e.Click != nil && e.Click.IsGhostLink
}

// TargetURL returns the click destination, or "" for opens.
func (e *TrackingEvent) TargetURL() string {
	if e.Type != EventClick || e.Click == nil {
		return ""
	}
	return e.Click.TargetURL
}

// Validate checks the identifiers and variant fields of the event.
func (e *TrackingEvent) Validate() error {
	if e.CampaignID == "" || e.RecipientID == "" {
		return ErrInvalidEvent
	}
	if !e.Type.Valid() {
		return ErrInvalidEvent
	}
	if e.Type == EventOpen && e.Click != nil {
		return ErrInvalidEvent
	}
	return nil
}

// BuildMetadata derives the free-form metadata column from the variant fields.
func (e *TrackingEvent) BuildMetadata() map[string]any {
	md := make(map[string]any, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		md[k] = v
	}
	if e.Type == EventClick && e.Click != nil {
		if e.Click.TargetURL != "" {
			md[MetaTargetURL] = e.Click.TargetURL
		}
		md[MetaIsGhostLink] = e.Click.IsGhostLink
	}
	return md
}

// ClickFromMetadata rebuilds ClickDetails from a stored metadata column.
func ClickFromMetadata(md map[string]any) *ClickDetails {
	c := &ClickDetails{}
	if v, ok := md[MetaTargetURL].(string); ok {
		c.TargetURL = v
	}
	if v, ok := md[MetaIsGhostLink].(bool); ok {
		c.IsGhostLink = v
	}
	return c
}
