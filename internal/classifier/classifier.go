// Package classifier scores a single tracking event and decides whether it
// was produced by a human reader or by mail-scanning infrastructure.
//
// Scoring is additive: every rule that fires adds its weight and appends its
// reason code. The verdict is IsBot := Score >= BotThreshold. Score has no
// shared state and is safe to call from any number of goroutines.
package classifier

import (
	"slices"
	"strings"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// BotThreshold is the score at or above which an event is treated as a bot.
const BotThreshold = 50

// Speed-trap windows, measured from the recipient's last send time.
const (
	OpenCriticalWindow   = 2 * time.Second
	OpenSuspiciousWindow = 5 * time.Second
	ClickCriticalWindow  = 2 * time.Second
)

// Rule weights.
const (
	WeightSpeedTrapCritical   = 90
	WeightSpeedTrapSuspicious = 50
	WeightHoneypot            = 100
	WeightEmptyUserAgent      = 100
	WeightKnownBotUA          = 100
)

// Reason codes, in the order the rules are evaluated.
const (
	ReasonSpeedTrapCritical   = "speed_trap_critical"
	ReasonSpeedTrapSuspicious = "speed_trap_suspicious"
	ReasonHoneypotClicked     = "honeypot_clicked"
	ReasonEmptyUserAgent      = "empty_user_agent"
	ReasonKnownBotUA          = "known_bot_ua"
)

// botUASubstrings are matched against the lowercased User-Agent.
var botUASubstrings = []string{"bot", "spider", "crawler", "barracuda", "mimecast"}

// Input is everything the rules look at for one event.
type Input struct {
	Type            domain.EventType
	CreatedAt       time.Time
	UserAgent       string
	LastEmailSentAt *time.Time

	// Click-only fields; ignored for opens.
	IsGhostLinkHit bool
	TargetURL      string
}

// Result is the outcome of scoring one event.
type Result struct {
	Score   int      `json:"bot_score"`
	Reasons []string `json:"bot_reasons"`
	IsBot   bool     `json:"is_bot"`
}

// Equal reports whether two results carry the same score, reasons and verdict.
func (r Result) Equal(o Result) bool {
	return r.Score == o.Score && r.IsBot == o.IsBot && slices.Equal(r.Reasons, o.Reasons)
}

// Score evaluates every rule against in.
func Score(in Input) Result {
	res := Result{Reasons: []string{}}
	add := func(weight int, reason string) {
		res.Score += weight
		res.Reasons = append(res.Reasons, reason)
	}

	if in.LastEmailSentAt != nil {
		elapsed := in.CreatedAt.Sub(*in.LastEmailSentAt)
		switch in.Type {
		case domain.EventOpen:
			if elapsed < OpenCriticalWindow {
				add(WeightSpeedTrapCritical, ReasonSpeedTrapCritical)
			} else if elapsed < OpenSuspiciousWindow {
				add(WeightSpeedTrapSuspicious, ReasonSpeedTrapSuspicious)
			}
		case domain.EventClick:
			if elapsed < ClickCriticalWindow {
				add(WeightSpeedTrapCritical, ReasonSpeedTrapCritical)
			}
		}
	}

	if in.Type == domain.EventClick && in.IsGhostLinkHit {
		add(WeightHoneypot, ReasonHoneypotClicked)
	}

	ua := strings.TrimSpace(in.UserAgent)
	if ua == "" {
		add(WeightEmptyUserAgent, ReasonEmptyUserAgent)
	} else if isKnownBotUA(ua) {
		add(WeightKnownBotUA, ReasonKnownBotUA)
	}

	res.IsBot = res.Score >= BotThreshold
	return res
}

func isKnownBotUA(ua string) bool {
	ua = strings.ToLower(ua)
	for _, s := range botUASubstrings {
		if strings.Contains(ua, s) {
			return true
		}
	}
	return false
}

// FromEvent builds the classifier input for a stored or freshly observed event.
func FromEvent(evt *domain.TrackingEvent, lastEmailSentAt *time.Time) Input {
	return Input{
		Type:            evt.Type,
		CreatedAt:       evt.CreatedAt,
		UserAgent:       evt.UserAgent,
		LastEmailSentAt: lastEmailSentAt,
		IsGhostLinkHit:  evt.IsGhostLinkHit(),
		TargetURL:       evt.TargetURL(),
	}
}

// Apply copies a result onto the event's verdict fields.
func Apply(evt *domain.TrackingEvent, res Result) {
	evt.IsBot = res.IsBot
	evt.BotScore = res.Score
	evt.BotReasons = slices.Clone(res.Reasons)
}

// Reclassify rescores a stored event with the current rules. changed is true
// when the new result differs from what is stored on the event.
func Reclassify(evt *domain.TrackingEvent, lastEmailSentAt *time.Time) (Result, bool) {
	res := Score(FromEvent(evt, lastEmailSentAt))
	stored := Result{Score: evt.BotScore, Reasons: evt.BotReasons, IsBot: evt.IsBot}
	if stored.Reasons == nil {
		stored.Reasons = []string{}
	}
	return res, !res.Equal(stored)
}
