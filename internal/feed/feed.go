// Package feed fetches the polled feed and turns it into the list of entries
// that still need delivering.
package feed

import (
	"bytes"
	"cmp"
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedpush/internal/fetch"
	"feedpush/internal/identity"
	logx "feedpush/pkg/logx"
)

type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
}

// Getter is the subset of fetch.Client the normalizer needs.
type Getter interface {
	Get(ctx context.Context, rawURL string, r fetch.Request) (*fetch.Result, error)
}

type Normalizer struct {
	cfg    Config
	get    Getter
	ids    *identity.Extractor
	parser *gofeed.Parser
	log    logx.Logger
}

func NewNormalizer(cfg Config, get Getter, ids *identity.Extractor, log logx.Logger) *Normalizer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "feedpush/1.0 (RSS notifier)"
	}
	return &Normalizer{
		cfg:    cfg,
		get:    get,
		ids:    ids,
		parser: gofeed.NewParser(),
		log:    log.With(logx.String("comp", "feed")),
	}
}

// Fetch downloads and parses the feed, then keeps entries that have a link,
// a valid identity, and are not yet delivered. Feed order is preserved.
func (n *Normalizer) Fetch(ctx context.Context, seen Seen) (Result, error) {
	res, err := n.get.Get(ctx, n.cfg.URL, fetch.Request{
		UserAgent: n.cfg.UserAgent,
		Accept:    "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8",
		MaxBytes:  n.cfg.MaxBytes,
		Timeout:   n.cfg.Timeout,
	})
	if err != nil {
		return Result{}, &FetchError{URL: n.cfg.URL, Err: err}
	}
	parsed, err := n.parser.Parse(bytes.NewReader(res.Body))
	if err != nil {
		return Result{}, &FetchError{URL: n.cfg.URL, Err: err}
	}
	return n.normalize(parsed.Items, seen), nil
}

func (n *Normalizer) normalize(items []*gofeed.Item, seen Seen) Result {
	out := Result{Fetched: len(items)}
	links := make(map[string]struct{}, len(items))
	ids := make(map[identity.ID]struct{}, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			out.MissingLink++
			n.log.Warn("entry without link skipped", logx.String("title", item.Title), logx.String("guid", item.GUID))
			continue
		}
		if _, dup := links[link]; dup {
			out.DuplicateLinks++
			continue
		}
		links[link] = struct{}{}

		id, err := n.ids.Extract(link, item.GUID)
		if err != nil {
			out.BadIdentity++
			n.log.Warn("entry identity unreadable; skipped", logx.String("link", link), logx.String("guid", item.GUID), logx.Err(err))
			continue
		}
		if _, dup := ids[id]; dup {
			out.DuplicateIDs++
			n.log.Debug("entry identity repeated under another link", logx.String("link", link), logx.Int64("id", int64(id)))
			continue
		}
		ids[id] = struct{}{}

		if seen != nil && seen.Delivered(id) {
			out.AlreadyDelivered++
			continue
		}

		out.Entries = append(out.Entries, Entry{
			Title:  cmp.Or(strings.TrimSpace(item.Title), link),
			Link:   link,
			Author: authorOf(item),
			GUID:   strings.TrimSpace(item.GUID),
			ID:     id,
		})
	}
	return out
}

func authorOf(item *gofeed.Item) string {
	if item.Author != nil {
		if name := strings.TrimSpace(item.Author.Name); name != "" {
			return name
		}
	}
	for _, a := range item.Authors {
		if a == nil {
			continue
		}
		if name := strings.TrimSpace(a.Name); name != "" {
			return name
		}
	}
	return UnknownAuthor
}
