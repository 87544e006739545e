package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/mailing"
	"github.com/ignite/engagement-tracker/internal/pkg/distlock"
	"github.com/ignite/engagement-tracker/internal/pkg/httputil"
	"github.com/ignite/engagement-tracker/internal/reconcile"
)

// CounterReconciler recomputes all six counters of a campaign.
type CounterReconciler interface {
	ReconcileAll(ctx context.Context, campaignID string) (reconcile.HumanCounts, reconcile.BotCounts, error)
}

// EventReclassifier rescores a campaign's stored events.
type EventReclassifier interface {
	Run(ctx context.Context, campaignID string) (reconcile.ReclassifyReport, error)
}

// CampaignReader reads stored campaign counters.
type CampaignReader interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
}

// requestTimeout bounds recomputation started from the admin API.
const requestTimeout = 5 * time.Minute

// LockFactory returns the distributed lock guarding one key.
type LockFactory func(key string) distlock.DistLock

// Handlers serves the counter maintenance endpoints.
type Handlers struct {
	reconciler   CounterReconciler
	reclassifier EventReclassifier
	campaigns    CampaignReader
	rewriter     *mailing.LinkRewriter
	locks        LockFactory
}

// NewHandlers wires the admin handlers. locks may be nil, in which case
// requests are not serialised against the background worker.
func NewHandlers(rec CounterReconciler, rc EventReclassifier, campaigns CampaignReader, rewriter *mailing.LinkRewriter, locks LockFactory) *Handlers {
	return &Handlers{
		reconciler:   rec,
		reclassifier: rc,
		campaigns:    campaigns,
		rewriter:     rewriter,
		locks:        locks,
	}
}

// ReconcileResponse is returned by POST /api/campaigns/{campaignID}/reconcile.
type ReconcileResponse struct {
	CampaignID string                  `json:"campaign_id"`
	Counters   domain.CampaignCounters `json:"counters"`
}

// GetCounters returns the stored counters.
//
//	GET /api/campaigns/{campaignID}/counters
func (h *Handlers) GetCounters(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		writeReconcileError(w, err)
		return
	}
	httputil.OK(w, c)
}

// Reconcile overwrites the six counters from exact counts.
//
//	POST /api/campaigns/{campaignID}/reconcile
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDParam(w, r)
	if !ok {
		return
	}

	var human reconcile.HumanCounts
	var bots reconcile.BotCounts
	ran, err := h.withCampaignLock(r.Context(), id, func(ctx context.Context) error {
		var err error
		human, bots, err = h.reconciler.ReconcileAll(ctx, id)
		return err
	})
	if err != nil {
		writeReconcileError(w, err)
		return
	}
	if !ran {
		httputil.Conflict(w, "campaign counters are being recomputed, retry shortly")
		return
	}
	httputil.OK(w, ReconcileResponse{CampaignID: id, Counters: reconcile.Counters(human, bots)})
}

// Reclassify rescores the campaign's events and recounts bot counters.
//
//	POST /api/campaigns/{campaignID}/reclassify
func (h *Handlers) Reclassify(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDParam(w, r)
	if !ok {
		return
	}

	var report reconcile.ReclassifyReport
	ran, err := h.withCampaignLock(r.Context(), id, func(ctx context.Context) error {
		var err error
		report, err = h.reclassifier.Run(ctx, id)
		return err
	})
	if err != nil {
		writeReconcileError(w, err)
		return
	}
	if !ran {
		httputil.Conflict(w, "campaign counters are being recomputed, retry shortly")
		return
	}
	httputil.OK(w, report)
}

// PreviewRequest is the body of POST /api/tracking/preview.
type PreviewRequest struct {
	HTML        string `json:"html"`
	CampaignID  string `json:"campaign_id"`
	RecipientID string `json:"recipient_id"`
}

// PreviewResponse shows the instrumented message and what was tracked.
type PreviewResponse struct {
	HTML  string              `json:"html"`
	Links *mailing.LinkReport `json:"links"`
}

// PreviewTracking runs the link rewriter over a message without sending it.
// Missing ids are replaced with placeholders.
//
//	POST /api/tracking/preview
func (h *Handlers) PreviewTracking(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.HTML) == "" {
		httputil.BadRequest(w, "html is required")
		return
	}
	if req.CampaignID == "" {
		req.CampaignID = uuid.Nil.String()
	}
	if req.RecipientID == "" {
		req.RecipientID = uuid.Nil.String()
	}

	out := h.rewriter.Prepare(req.HTML, req.CampaignID, req.RecipientID)
	links, err := mailing.InspectLinks(out)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, PreviewResponse{HTML: out, Links: links})
}

func (h *Handlers) withCampaignLock(ctx context.Context, id string, fn func(context.Context) error) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if h.locks == nil {
		return true, fn(ctx)
	}
	return distlock.WithLock(ctx, h.locks(distlock.CampaignKey(id)), fn)
}

func campaignIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "campaignID")
	if _, err := uuid.Parse(id); err != nil {
		httputil.BadRequest(w, "campaign id must be a UUID")
		return "", false
	}
	return id, true
}

func writeReconcileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconcile.ErrCampaignNotFound):
		httputil.NotFound(w, "campaign not found")
	case errors.Is(err, reconcile.ErrEmptyCampaignID):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httputil.Error(w, http.StatusGatewayTimeout, "timeout", "recomputation timed out")
	default:
		httputil.InternalError(w, err)
	}
}
