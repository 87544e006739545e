package mailing

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/ignite/engagement-tracker/internal/tracking"
)

var (
	bareURLRe = regexp.MustCompile(`https?://[^\s<>"']+`)
	bodyRe    = regexp.MustCompile(`(?i)<body[^>]*>`)
)

// trailing punctuation that belongs to the sentence, not the URL
const urlTrailers = ".,;:!?)"

// LinkRewriter rewrites message bodies for one tracking host.
type LinkRewriter struct {
	baseURL string
	host    string
}

// NewLinkRewriter creates a rewriter for the tracking base URL, e.g.
// "https://t.example.com".
func NewLinkRewriter(baseURL string) *LinkRewriter {
	lr := &LinkRewriter{baseURL: strings.TrimRight(baseURL, "/")}
	if u, err := url.Parse(lr.baseURL); err == nil {
		lr.host = strings.ToLower(u.Host)
	}
	return lr
}

// ClickURL returns the tracked click URL for target.
func (lr *LinkRewriter) ClickURL(campaignID, recipientID, target string) string {
	q := url.Values{}
	q.Set(tracking.ParamCampaignID, campaignID)
	q.Set(tracking.ParamRecipientID, recipientID)
	q.Set(tracking.ParamURL, target)
	return lr.baseURL + tracking.ClickPath + "?" + q.Encode()
}

// GhostURL returns the honeypot click URL. It carries no target.
func (lr *LinkRewriter) GhostURL(campaignID, recipientID string) string {
	q := url.Values{}
	q.Set(tracking.ParamCampaignID, campaignID)
	q.Set(tracking.ParamRecipientID, recipientID)
	q.Set(tracking.ParamType, tracking.LinkTypeGhost)
	return lr.baseURL + tracking.ClickPath + "?" + q.Encode()
}

// OpenPixelURL returns the open pixel URL.
func (lr *LinkRewriter) OpenPixelURL(campaignID, recipientID string) string {
	q := url.Values{}
	q.Set(tracking.ParamCampaignID, campaignID)
	q.Set(tracking.ParamRecipientID, recipientID)
	return lr.baseURL + tracking.OpenPath + "?" + q.Encode()
}

// Rewrite routes every http(s) href and every bare URL in text through the
// click endpoint. Bare URLs are wrapped in an anchor. Links that are already
// tracked, non-http links (mailto:, tel:, fragments) and text inside
// existing anchors, <script> and <style> are left as they are.
func (lr *LinkRewriter) Rewrite(body, campaignID, recipientID string) string {
	z := nethtml.NewTokenizer(strings.NewReader(body))
	var out bytes.Buffer
	out.Grow(len(body) + len(body)/4)

	anchorDepth, rawDepth := 0, 0
	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			// io.EOF or a malformed tail; either way emit what is left.
			out.Write(z.Raw())
			break
		}
		raw := string(z.Raw())

		switch tt {
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "a":
				if hasAttr {
					if target, ok := hrefAttr(z); ok {
						raw = lr.rewriteHref(raw, target, campaignID, recipientID)
					}
				}
				if tt == nethtml.StartTagToken {
					anchorDepth++
				}
			case "script", "style", "title", "textarea":
				if tt == nethtml.StartTagToken {
					rawDepth++
				}
			}
		case nethtml.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "a":
				if anchorDepth > 0 {
					anchorDepth--
				}
			case "script", "style", "title", "textarea":
				if rawDepth > 0 {
					rawDepth--
				}
			}
		case nethtml.TextToken:
			if anchorDepth == 0 && rawDepth == 0 {
				raw = lr.wrapBareURLs(raw, campaignID, recipientID)
			}
		}
		out.WriteString(raw)
	}
	return out.String()
}

// hrefAttr returns the decoded value of the tag's first href attribute.
func hrefAttr(z *nethtml.Tokenizer) (string, bool) {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			return string(val), true
		}
		if !more {
			return "", false
		}
	}
}

// rewriteHref replaces the href value in the raw tag and leaves every other
// byte of the tag untouched. Unquoted values come out double-quoted.
func (lr *LinkRewriter) rewriteHref(tag, target, campaignID, recipientID string) string {
	target = strings.TrimSpace(target)
	if !lr.trackable(target) {
		return tag
	}
	start, end, quoted, ok := hrefValueSpan(tag)
	if !ok {
		return tag
	}
	val := html.EscapeString(lr.ClickURL(campaignID, recipientID, target))
	if !quoted {
		val = `"` + val + `"`
	}
	return tag[:start] + val + tag[end:]
}

// hrefValueSpan finds the value of the first href attribute in a raw start
// tag. The span excludes the quotes of a quoted value.
func hrefValueSpan(tag string) (start, end int, quoted, ok bool) {
	i := 1
	for i < len(tag) && !isTagSpace(tag[i]) && tag[i] != '/' && tag[i] != '>' {
		i++
	}
	for i < len(tag) {
		for i < len(tag) && (isTagSpace(tag[i]) || tag[i] == '/') {
			i++
		}
		if i >= len(tag) || tag[i] == '>' {
			return 0, 0, false, false
		}

		nameStart := i
		for i < len(tag) && !isTagSpace(tag[i]) && tag[i] != '/' && tag[i] != '>' && tag[i] != '=' {
			i++
		}
		if i == nameStart {
			// stray '='
			i++
			continue
		}
		isHref := strings.EqualFold(tag[nameStart:i], "href")

		for i < len(tag) && isTagSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || tag[i] != '=' {
			if isHref {
				return 0, 0, false, false
			}
			continue
		}
		i++
		for i < len(tag) && isTagSpace(tag[i]) {
			i++
		}

		var vs, ve int
		var q bool
		if i < len(tag) && (tag[i] == '"' || tag[i] == '\'') {
			quote := tag[i]
			i++
			vs = i
			for i < len(tag) && tag[i] != quote {
				i++
			}
			ve, q = i, true
			if i < len(tag) {
				i++
			}
		} else {
			vs = i
			for i < len(tag) && !isTagSpace(tag[i]) && tag[i] != '>' {
				i++
			}
			ve = i
		}
		if isHref {
			return vs, ve, q, true
		}
	}
	return 0, 0, false, false
}

func isTagSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func (lr *LinkRewriter) wrapBareURLs(text, campaignID, recipientID string) string {
	return bareURLRe.ReplaceAllStringFunc(text, func(match string) string {
		link := strings.TrimRight(match, urlTrailers)
		tail := match[len(link):]
		target := html.UnescapeString(link)
		if !lr.trackable(target) {
			return match
		}
		return fmt.Sprintf(`<a href="%s">%s</a>%s`,
			html.EscapeString(lr.ClickURL(campaignID, recipientID, target)), link, tail)
	})
}

// trackable reports whether target is an absolute http(s) URL that is not
// already one of this rewriter's own tracking URLs.
func (lr *LinkRewriter) trackable(target string) bool {
	lower := strings.ToLower(target)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return false
	}
	if lr.host != "" && strings.EqualFold(u.Host, lr.host) &&
		(u.Path == tracking.ClickPath || u.Path == tracking.OpenPath) {
		return false
	}
	return true
}

// InjectGhostLink adds one hidden honeypot link right after the opening
// <body> tag, or at the start when there is none. A human cannot see or
// follow it; any click on it comes from a link scanner.
func (lr *LinkRewriter) InjectGhostLink(body, campaignID, recipientID string) string {
	ghost := lr.GhostURL(campaignID, recipientID)
	if strings.Contains(body, html.EscapeString(ghost)) {
		return body
	}
	link := fmt.Sprintf(`<a href="%s" style="display:none;font-size:0;line-height:0;max-height:0;overflow:hidden" aria-hidden="true" tabindex="-1">&#8203;</a>`,
		html.EscapeString(ghost))
	if loc := bodyRe.FindStringIndex(body); loc != nil {
		return body[:loc[1]] + link + body[loc[1]:]
	}
	return link + body
}

// InjectOpenPixel appends the 1x1 open pixel before </body>, or at the end
// when there is none.
func (lr *LinkRewriter) InjectOpenPixel(body, campaignID, recipientID string) string {
	src := html.EscapeString(lr.OpenPixelURL(campaignID, recipientID))
	if strings.Contains(body, src) {
		return body
	}
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none;width:1px;height:1px" />`, src)
	if idx := strings.LastIndex(strings.ToLower(body), "</body>"); idx >= 0 {
		return body[:idx] + pixel + body[idx:]
	}
	return body + pixel
}

// Prepare rewrites links and adds the ghost link and open pixel.
func (lr *LinkRewriter) Prepare(body, campaignID, recipientID string) string {
	body = lr.Rewrite(body, campaignID, recipientID)
	body = lr.InjectGhostLink(body, campaignID, recipientID)
	return lr.InjectOpenPixel(body, campaignID, recipientID)
}
