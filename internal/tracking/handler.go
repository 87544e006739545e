package tracking

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Routes and query parameters shared with the link rewriter.
const (
	OpenPath  = "/track/open"
	ClickPath = "/track/click"

	ParamCampaignID  = "campaign_id"
	ParamRecipientID = "recipient_id"
	ParamURL         = "url"
	ParamType        = "type"

	LinkTypeGhost = "ghost"
)

// clickConfirmation is served for clicks that carry no target URL.
const clickConfirmation = "Thanks, your click has been recorded."

// Handler serves the open pixel and the click redirect. Responses never
// depend on the classification outcome; the hit is handed to the dispatcher
// and the canonical response is written straight away.
type Handler struct {
	dispatcher Dispatcher
	now        func() time.Time
}

// NewHandler creates a tracking handler.
func NewHandler(d Dispatcher) *Handler {
	return &Handler{dispatcher: d, now: func() time.Time { return time.Now().UTC() }}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get(OpenPath, h.HandleOpen)
	r.Get(ClickPath, h.HandleClick)
	r.Get("/health", h.HandleHealth)
	return r
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	evt, ok := h.newEvent(r, domain.EventOpen)
	if ok {
		h.dispatcher.Dispatch(r.Context(), evt)
	}
	h.servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := redirectTarget(q.Get(ParamURL))

	evt, ok := h.newEvent(r, domain.EventClick)
	if ok {
		evt.Click = &domain.ClickDetails{
			TargetURL:   target,
			IsGhostLink: strings.EqualFold(q.Get(ParamType), LinkTypeGhost),
		}
		h.dispatcher.Dispatch(r.Context(), evt)
	}

	if target == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(clickConfirmation))
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// newEvent builds the event for a hit. It returns false when the identifiers
// are missing or malformed; the caller still serves the canonical response.
func (h *Handler) newEvent(r *http.Request, t domain.EventType) (domain.TrackingEvent, bool) {
	q := r.URL.Query()
	campaignID := strings.TrimSpace(q.Get(ParamCampaignID))
	recipientID := strings.TrimSpace(q.Get(ParamRecipientID))

	if _, err := uuid.Parse(campaignID); err != nil {
		logger.Warn("tracking hit with invalid campaign id", "event_type", string(t), "campaign_id", campaignID)
		return domain.TrackingEvent{}, false
	}
	if _, err := uuid.Parse(recipientID); err != nil {
		logger.Warn("tracking hit with invalid recipient id", "event_type", string(t), "recipient_id", recipientID)
		return domain.TrackingEvent{}, false
	}

	return domain.TrackingEvent{
		ID:          uuid.New().String(),
		CampaignID:  campaignID,
		RecipientID: recipientID,
		Type:        t,
		CreatedAt:   h.now(),
		UserAgent:   r.UserAgent(),
		IPAddress:   realIP(r),
	}, true
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// redirectTarget returns raw if it is an absolute http(s) URL, else "".
func redirectTarget(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return raw
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
