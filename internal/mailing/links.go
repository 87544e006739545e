package mailing

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ignite/engagement-tracker/internal/tracking"
)

// TrackedLink describes one click-tracking anchor found in a message.
type TrackedLink struct {
	Href   string `json:"href"`
	Target string `json:"target,omitempty"`
	Ghost  bool   `json:"ghost"`
	Text   string `json:"text,omitempty"`
}

// LinkReport summarises the tracking instrumentation of a message.
type LinkReport struct {
	Tracked   []TrackedLink `json:"tracked"`
	Untracked []string      `json:"untracked"`
	HasPixel  bool          `json:"has_pixel"`
}

// InspectLinks parses body and lists its tracked and untracked anchors.
func InspectLinks(body string) (*LinkReport, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	report := &LinkReport{Tracked: []TrackedLink{}, Untracked: []string{}}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(href)
		if err != nil || u.Path != tracking.ClickPath {
			report.Untracked = append(report.Untracked, href)
			return
		}
		q := u.Query()
		report.Tracked = append(report.Tracked, TrackedLink{
			Href:   href,
			Target: q.Get(tracking.ParamURL),
			Ghost:  q.Get(tracking.ParamType) == tracking.LinkTypeGhost,
			Text:   strings.TrimSpace(strings.ReplaceAll(s.Text(), "\u200b", "")),
		})
	})
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if u, err := url.Parse(src); err == nil && u.Path == tracking.OpenPath {
			report.HasPixel = true
			return false
		}
		return true
	})
	return report, nil
}
