package tracking

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/domain"
)

type captureDispatcher struct {
	mu     sync.Mutex
	events []domain.TrackingEvent
}

func (c *captureDispatcher) Dispatch(_ context.Context, evt domain.TrackingEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func serve(t *testing.T, h *Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)
	return w
}

func trackQuery(extra url.Values) string {
	q := url.Values{}
	q.Set(ParamCampaignID, testCampaignID)
	q.Set(ParamRecipientID, testRecipientID)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return q.Encode()
}

func TestHandleOpen_ServesPixelAndDispatches(t *testing.T) {
	d := &captureDispatcher{}
	h := NewHandler(d)

	w := serve(t, h, OpenPath+"?"+trackQuery(nil), map[string]string{
		"User-Agent":      chromeUA,
		"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.True(t, bytes.Equal(pixelGIF, w.Body.Bytes()))

	require.Len(t, d.events, 1)
	evt := d.events[0]
	assert.Equal(t, domain.EventOpen, evt.Type)
	assert.Equal(t, testCampaignID, evt.CampaignID)
	assert.Equal(t, testRecipientID, evt.RecipientID)
	assert.Equal(t, chromeUA, evt.UserAgent)
	assert.Equal(t, "203.0.113.7", evt.IPAddress)
	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.CreatedAt.IsZero())
	assert.Nil(t, evt.Click)
}

func TestHandleOpen_BadIdentifiersStillServePixel(t *testing.T) {
	for _, target := range []string{
		OpenPath,
		OpenPath + "?campaign_id=not-a-uuid&recipient_id=" + testRecipientID,
		OpenPath + "?campaign_id=" + testCampaignID,
	} {
		d := &captureDispatcher{}
		w := serve(t, NewHandler(d), target, nil)

		assert.Equal(t, http.StatusOK, w.Code, target)
		assert.True(t, bytes.Equal(pixelGIF, w.Body.Bytes()), target)
		assert.Empty(t, d.events, target)
	}
}

func TestHandleClick_RedirectsToDecodedTarget(t *testing.T) {
	d := &captureDispatcher{}
	target := "https://example.com/offer?a=1&b=two words"

	w := serve(t, NewHandler(d), ClickPath+"?"+trackQuery(url.Values{ParamURL: {target}}), map[string]string{"User-Agent": chromeUA})

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, target, w.Header().Get("Location"))
	require.Len(t, d.events, 1)
	require.NotNil(t, d.events[0].Click)
	assert.Equal(t, target, d.events[0].Click.TargetURL)
	assert.False(t, d.events[0].Click.IsGhostLink)
}

func TestHandleClick_BotStillRedirects(t *testing.T) {
	d := &captureDispatcher{}
	w := serve(t, NewHandler(d), ClickPath+"?"+trackQuery(url.Values{ParamURL: {"https://example.com"}}), nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Location"))
	require.Len(t, d.events, 1)
	assert.Empty(t, d.events[0].UserAgent)
}

func TestHandleClick_GhostWithoutTarget(t *testing.T) {
	d := &captureDispatcher{}
	w := serve(t, NewHandler(d), ClickPath+"?"+trackQuery(url.Values{ParamType: {LinkTypeGhost}}), map[string]string{"User-Agent": chromeUA})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, clickConfirmation, w.Body.String())
	require.Len(t, d.events, 1)
	require.NotNil(t, d.events[0].Click)
	assert.True(t, d.events[0].Click.IsGhostLink)
	assert.Empty(t, d.events[0].Click.TargetURL)
}

func TestHandleClick_BadIdentifiersStillRedirect(t *testing.T) {
	d := &captureDispatcher{}
	w := serve(t, NewHandler(d), ClickPath+"?url="+url.QueryEscape("https://example.com/x"), nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/x", w.Header().Get("Location"))
	assert.Empty(t, d.events)
}

func TestHandleClick_NonHTTPTargetIsNotFollowed(t *testing.T) {
	d := &captureDispatcher{}
	w := serve(t, NewHandler(d), ClickPath+"?"+trackQuery(url.Values{ParamURL: {"javascript:alert(1)"}}), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "198.51.100.4:53211"
	assert.Equal(t, "198.51.100.4", realIP(req))

	req.Header.Set("X-Real-Ip", "192.0.2.9")
	assert.Equal(t, "192.0.2.9", realIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	assert.Equal(t, "203.0.113.1", realIP(req))
}
