// Package enrich scrapes a representative image from an entry's page.
//
// Extraction is best effort: every failure (fetch, status, parse, no match)
// yields an empty list and a log line, never an error.
package enrich

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"feedpush/internal/fetch"
	logx "feedpush/pkg/logx"
)

const (
	// DefaultSelector matches a Discuz-style forum post body.
	DefaultSelector = `td[id^="postmessage_"]`

	DefaultTimeout = 15 * time.Second

	// maxImages is the anti-spam cap: one image per notification.
	maxImages = 1
)

// DefaultLazyAttrs are checked, in order, before the plain src attribute.
var DefaultLazyAttrs = []string{"zoomfile", "file", "data-original", "data-src"}

type Config struct {
	Enabled   bool
	Selector  string
	LazyAttrs []string
	UserAgent string
	// Referer overrides the default (the page's own origin).
	Referer   string
	Timeout   time.Duration
	MaxBytes  int64
	MaxImages int
}

type Getter interface {
	Get(ctx context.Context, rawURL string, r fetch.Request) (*fetch.Result, error)
}

type Enricher struct {
	cfg Config
	get Getter
	log logx.Logger
}

func New(cfg Config, get Getter, log logx.Logger) *Enricher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Selector) == "" {
		cfg.Selector = DefaultSelector
	}
	if len(cfg.LazyAttrs) == 0 {
		cfg.LazyAttrs = DefaultLazyAttrs
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = fetch.BrowserUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxImages <= 0 || cfg.MaxImages > maxImages {
		cfg.MaxImages = maxImages
	}
	return &Enricher{cfg: cfg, get: get, log: log.With(logx.String("comp", "enrich"))}
}

// Extract returns at most MaxImages absolute image URLs found in the page's
// content body, in document order.
func (e *Enricher) Extract(ctx context.Context, pageURL string) []string {
	if e == nil || !e.cfg.Enabled {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		e.log.Debug("page url unusable", logx.String("url", pageURL), logx.Err(err))
		return nil
	}

	referer := e.cfg.Referer
	if referer == "" {
		referer = base.Scheme + "://" + base.Host + "/"
	}
	res, err := e.get.Get(ctx, pageURL, fetch.Request{
		UserAgent: e.cfg.UserAgent,
		Referer:   referer,
		Accept:    "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8",
		MaxBytes:  e.cfg.MaxBytes,
		Timeout:   e.cfg.Timeout,
	})
	if err != nil {
		e.log.Info("page fetch failed; no image", logx.String("url", pageURL), logx.Err(err))
		return nil
	}

	body, err := charset.NewReader(bytes.NewReader(res.Body), res.ContentType)
	if err != nil {
		e.log.Debug("charset detection failed; assuming utf-8", logx.String("url", pageURL), logx.Err(err))
		body = bytes.NewReader(res.Body)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		e.log.Info("page parse failed; no image", logx.String("url", pageURL), logx.Err(err))
		return nil
	}

	images := e.collect(doc, base)
	e.log.Debug("page scanned", logx.String("url", pageURL), logx.Int("images", len(images)))
	return images
}

func (e *Enricher) collect(doc *goquery.Document, base *url.URL) []string {
	content := doc.Find(e.cfg.Selector).First()
	if content.Length() == 0 {
		return nil
	}

	var out []string
	content.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if u, ok := resolve(base, e.source(img)); ok {
			out = append(out, u)
		}
		return len(out) < e.cfg.MaxImages
	})
	return out
}

// source prefers lazy-load attributes over src; forums often put a
// placeholder gif in src.
func (e *Enricher) source(img *goquery.Selection) string {
	for _, attr := range e.cfg.LazyAttrs {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	v, _ := img.Attr("src")
	return strings.TrimSpace(v)
}

// resolve turns a raw src into an absolute http(s) URL against the page.
// Inline data and script sources are rejected.
func resolve(base *url.URL, src string) (string, bool) {
	if src == "" {
		return "", false
	}
	low := strings.ToLower(src)
	if strings.HasPrefix(low, "data:") || strings.HasPrefix(low, "javascript:") {
		return "", false
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	return abs.String(), true
}
