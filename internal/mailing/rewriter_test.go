package mailing

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/tracking"
)

const (
	baseURL     = "https://t.example.com"
	campaignID  = "6f1c2d3e-4a5b-4c6d-8e7f-901234567890"
	recipientID = "0a1b2c3d-4e5f-4a6b-9c7d-8e9f0a1b2c3d"
)

func parse(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func targetOf(t *testing.T, href string) url.Values {
	t.Helper()
	u, err := url.Parse(href)
	require.NoError(t, err)
	assert.Equal(t, "t.example.com", u.Host)
	assert.Equal(t, tracking.ClickPath, u.Path)
	return u.Query()
}

func TestClickURL(t *testing.T) {
	lr := NewLinkRewriter(baseURL + "/")
	got := lr.ClickURL(campaignID, recipientID, "https://example.com/a?b=1&c=2")

	q := targetOf(t, got)
	assert.Equal(t, campaignID, q.Get(tracking.ParamCampaignID))
	assert.Equal(t, recipientID, q.Get(tracking.ParamRecipientID))
	assert.Equal(t, "https://example.com/a?b=1&c=2", q.Get(tracking.ParamURL))
	assert.NotContains(t, got, "//track", "trailing slash of the base must be trimmed")
}

func TestRewrite_Hrefs(t *testing.T) {
	lr := NewLinkRewriter(baseURL)
	body := `<p><a href="https://example.com/a?x=1&amp;y=2">Offer</a> <a href='http://example.org'>Org</a></p>`

	doc := parse(t, lr.Rewrite(body, campaignID, recipientID))
	var targets []string
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		targets = append(targets, targetOf(t, href).Get(tracking.ParamURL))
	})
	assert.Equal(t, []string{"https://example.com/a?x=1&y=2", "http://example.org"}, targets)
	assert.Equal(t, "Offer", doc.Find("a").First().Text())
}

func TestRewrite_HrefForms(t *testing.T) {
	lr := NewLinkRewriter(baseURL)
	tests := []struct {
		name   string
		body   string
		target string
	}{
		{"unquoted", `<a href=https://example.com/u>U</a>`, "https://example.com/u"},
		{"apostrophe in double quotes", `<a HREF="https://example.com/it's">It</a>`, "https://example.com/it's"},
		{"quote in single quotes", `<a href='https://example.com/say"hi"'>Hi</a>`, `https://example.com/say"hi"`},
		{"spaces around equals", `<a class="btn" href = "https://example.com/s" >S</a>`, "https://example.com/s"},
		{"data-href before href", `<a data-href="https://example.com/data" href="https://example.com/real">R</a>`, "https://example.com/real"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := lr.Rewrite(tt.body, campaignID, recipientID)
			a := parse(t, out).Find("a")
			require.Equal(t, 1, a.Length())

			href, _ := a.Attr("href")
			assert.Equal(t, tt.target, targetOf(t, href).Get(tracking.ParamURL))
			if data, ok := a.Attr("data-href"); ok {
				assert.Equal(t, "https://example.com/data", data)
			}
		})
	}
}

func TestRewrite_LeavesDataHrefAlone(t *testing.T) {
	lr := NewLinkRewriter(baseURL)
	body := `<a data-href="https://example.com/x">X</a>`

	assert.Equal(t, body, lr.Rewrite(body, campaignID, recipientID))
}

func TestRewrite_TracksOtherSitesWithTrackingLikePaths(t *testing.T) {
	lr := NewLinkRewriter(baseURL)
	body := `<a href="https://example.com/track/clicker">A</a> <a href="https://example.com/track/click?url=x">B</a>`

	doc := parse(t, lr.Rewrite(body, campaignID, recipientID))
	var targets []string
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		targets = append(targets, targetOf(t, href).Get(tracking.ParamURL))
	})
	assert.Equal(t, []string{"https://example.com/track/clicker", "https://example.com/track/click?url=x"}, targets)
}

func TestRewrite_LeavesNonHTTPLinks(t *testing.T) {
	lr := NewLinkRewriter(baseURL)
	body := `<a href="mailto:hi@example.com">Mail</a><a href="tel:+15551234">Call</a><a href="#top">Top</a><a href="/relative">Rel</a>`

	assert.Equal(t, body, lr.Rewrite(body, campaignID, recipientID))
}

func TestRewrite_WrapsBareURLs(t *testing.T) {
	lr := NewLinkRewriter(baseURL)
	body := `<p>Read more at https://example.com/page?a=1&amp;b=2. Thanks!</p>`

	out := lr.Rewrite(body, campaignID, recipientID)
	doc := parse(t, out)

	links := doc.Find("a")
	require.Equal(t, 1, links.Length())
	href, _ := links.Attr("href")
	assert.Equal(t, "https://example.com/page?a=1&b=2", targetOf(t, href).Get(tracking.ParamURL))
	assert.Equal(t, "https://example.com/page?a=1&b=2", links.Text())
	assert.Contains(t, out, "</a>. Thanks!")
}

func TestRewrite_SkipsAnchorTextScriptAndStyle(t *testing.T) {
	lr := NewLinkRewriter(baseURL)
	script := `<script>var u = "https://cdn.example.com/x.js";</script>`
	style := `<style>body { background: url(https://cdn.example.com/bg.png); }</style>`
	body := `<html><head>` + style + `</head><body><a href="https://example.com">https://example.com</a>` + script + `</body></html>`

	out := lr.Rewrite(body, campaignID, recipientID)

	assert.Contains(t, out, script)
	assert.Contains(t, out, style)
	assert.Equal(t, 1, parse(t, out).Find("a").Length())
}

func TestRewrite_IsIdempotent(t *testing.T) {
	lr := NewLinkRewriter(baseURL)
	body := `<p>See https://example.com and <a href="https://example.org">this</a>.</p>`

	once := lr.Rewrite(body, campaignID, recipientID)
	assert.Equal(t, once, lr.Rewrite(once, campaignID, recipientID))
}

func TestInjectGhostLink(t *testing.T) {
	lr := NewLinkRewriter(baseURL)
	body := `<html><body class="main"><p>Hello</p></body></html>`

	out := lr.InjectGhostLink(body, campaignID, recipientID)
	out = lr.InjectGhostLink(out, campaignID, recipientID)

	doc := parse(t, out)
	ghost := doc.Find("body").Children().First()
	require.Equal(t, "a", goquery.NodeName(ghost))
	href, _ := ghost.Attr("href")
	q := targetOf(t, href)
	assert.Equal(t, tracking.LinkTypeGhost, q.Get(tracking.ParamType))
	assert.Empty(t, q.Get(tracking.ParamURL))
	style, _ := ghost.Attr("style")
	assert.Contains(t, style, "display:none")
	assert.Equal(t, 1, doc.Find("a").Length(), "only one ghost link per message")
}

func TestInjectOpenPixel(t *testing.T) {
	lr := NewLinkRewriter(baseURL)

	out := lr.InjectOpenPixel(`<body><p>Hi</p></BODY>`, campaignID, recipientID)
	assert.True(t, strings.HasSuffix(out, `/></BODY>`))

	fragment := lr.InjectOpenPixel(`<p>Hi</p>`, campaignID, recipientID)
	assert.True(t, strings.HasPrefix(fragment, `<p>Hi</p><img `))
	assert.Equal(t, fragment, lr.InjectOpenPixel(fragment, campaignID, recipientID))
}

func TestPrepareAndInspect(t *testing.T) {
	lr := NewLinkRewriter(baseURL)
	body := `<html><body><p>Shop https://shop.example.com now or <a href="mailto:help@example.com">write us</a>.</p></body></html>`

	report, err := InspectLinks(lr.Prepare(body, campaignID, recipientID))
	require.NoError(t, err)

	assert.True(t, report.HasPixel)
	assert.Equal(t, []string{"mailto:help@example.com"}, report.Untracked)
	require.Len(t, report.Tracked, 2)
	assert.True(t, report.Tracked[0].Ghost)
	assert.Empty(t, report.Tracked[0].Text)
	assert.False(t, report.Tracked[1].Ghost)
	assert.Equal(t, "https://shop.example.com", report.Tracked[1].Target)
}
