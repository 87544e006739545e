package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackingEventValidate(t *testing.T) {
	tests := []struct {
		name string
		evt  TrackingEvent
		ok   bool
	}{
		{"open", TrackingEvent{CampaignID: "c", RecipientID: "r", Type: EventOpen}, true},
		{"click", TrackingEvent{CampaignID: "c", RecipientID: "r", Type: EventClick, Click: &ClickDetails{}}, true},
		{"missing campaign", TrackingEvent{RecipientID: "r", Type: EventOpen}, false},
		{"missing recipient", TrackingEvent{CampaignID: "c", Type: EventOpen}, false},
		{"unknown type", TrackingEvent{CampaignID: "c", RecipientID: "r", Type: "bounce"}, false},
		{"open with click details", TrackingEvent{CampaignID: "c", RecipientID: "r", Type: EventOpen, Click: &ClickDetails{}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.evt.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidEvent)
			}
		})
	}
}

func TestBuildMetadataRoundTrip(t *testing.T) {
	evt := &TrackingEvent{
		Type:     EventClick,
		Click:    &ClickDetails{TargetURL: "https://example.com/a", IsGhostLink: true},
		Metadata: map[string]any{"source": "sqs"},
	}
	md := evt.BuildMetadata()
	assert.Equal(t, "https://example.com/a", md[MetaTargetURL])
	assert.Equal(t, true, md[MetaIsGhostLink])
	assert.Equal(t, "sqs", md["source"])
	assert.Len(t, evt.Metadata, 1, "original map must not be modified")

	assert.Equal(t, evt.Click, ClickFromMetadata(md))
}

func TestBuildMetadataOpen(t *testing.T) {
	evt := &TrackingEvent{Type: EventOpen}
	md := evt.BuildMetadata()
	assert.Empty(t, md)
	assert.False(t, evt.IsGhostLinkHit())
	assert.Equal(t, "", evt.TargetURL())
}

func TestClickFromMetadataIgnoresWrongTypes(t *testing.T) {
	c := ClickFromMetadata(map[string]any{MetaTargetURL: 42, MetaIsGhostLink: "true"})
	assert.Equal(t, &ClickDetails{}, c)
}

func TestCounterColumn(t *testing.T) {
	assert.Equal(t, "opened_count", CounterColumn(EventOpen, false))
	assert.Equal(t, "bot_open_count", CounterColumn(EventOpen, true))
	assert.Equal(t, "clicked_count", CounterColumn(EventClick, false))
	assert.Equal(t, "bot_click_count", CounterColumn(EventClick, true))
	assert.Equal(t, "", CounterColumn("reply", false))
}

func TestRecipientHasEngaged(t *testing.T) {
	now := time.Now()
	r := &Recipient{OpenedAt: &now}
	assert.True(t, r.HasEngaged(EventOpen))
	assert.False(t, r.HasEngaged(EventClick))
	assert.False(t, r.HasEngaged("reply"))
}
