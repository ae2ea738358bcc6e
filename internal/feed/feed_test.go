package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedpush/internal/fetch"
	"feedpush/internal/identity"
	"feedpush/internal/storage"
	logx "feedpush/pkg/logx"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>Example forum</title>
  <link>https://bbs.example.com/</link>
  <item>
    <title>Post 101</title>
    <link>https://bbs.example.com/thread-101.html</link>
    <guid>https://bbs.example.com/thread-101.html</guid>
    <dc:creator>alice</dc:creator>
  </item>
  <item>
    <title>Post 99</title>
    <link>https://bbs.example.com/thread-99.html</link>
    <guid>https://bbs.example.com/thread-99.html</guid>
  </item>
  <item>
    <title>Post 105</title>
    <link>https://bbs.example.com/thread-105.html</link>
    <guid>https://bbs.example.com/thread-105.html</guid>
  </item>
  <item>
    <title>Post 101 again</title>
    <link>https://bbs.example.com/thread-101.html</link>
    <guid>https://bbs.example.com/thread-101.html</guid>
  </item>
  <item>
    <title>No identity</title>
    <link>https://bbs.example.com/about.html</link>
    <guid>https://bbs.example.com/about.html</guid>
  </item>
  <item>
    <title>No link</title>
    <guid isPermaLink="false">thread-200</guid>
  </item>
</channel>
</rss>`

func newTestNormalizer(t *testing.T, body string, status int) *Normalizer {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	ids, err := identity.NewExtractor(identity.Config{})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return NewNormalizer(Config{URL: server.URL, Timeout: 5 * time.Second}, fetch.New(fetch.Config{}), ids, logx.Nop())
}

func TestFetchFiltersAndDedups(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t, sampleRSS, http.StatusOK)

	res, err := n.Fetch(context.Background(), storage.Record{Watermark: 100})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if res.Fetched != 6 {
		t.Fatalf("Fetched = %d, want 6", res.Fetched)
	}
	if res.DuplicateLinks != 1 || res.MissingLink != 1 || res.BadIdentity != 1 || res.AlreadyDelivered != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("admitted %d entries, want 2: %+v", len(res.Entries), res.Entries)
	}
	if res.Entries[0].ID != 101 || res.Entries[1].ID != 105 {
		t.Fatalf("admitted ids = %d,%d; want 101,105", res.Entries[0].ID, res.Entries[1].ID)
	}
	// First occurrence of a duplicated link wins.
	if res.Entries[0].Title != "Post 101" {
		t.Fatalf("title = %q, want first occurrence", res.Entries[0].Title)
	}
	if res.Entries[0].Author != "alice" {
		t.Fatalf("author = %q, want alice", res.Entries[0].Author)
	}
	if res.Entries[1].Author != UnknownAuthor {
		t.Fatalf("author = %q, want %q", res.Entries[1].Author, UnknownAuthor)
	}
}

func TestFetchEmptyStoreAdmitsEverythingValid(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t, sampleRSS, http.StatusOK)
	res, err := n.Fetch(context.Background(), storage.Record{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	seen := map[string]bool{}
	for _, e := range res.Entries {
		if seen[e.Link] {
			t.Fatalf("link %s admitted twice", e.Link)
		}
		seen[e.Link] = true
	}
	if len(res.Entries) != 3 {
		t.Fatalf("admitted %d entries, want 3", len(res.Entries))
	}
}

func TestFetchFailures(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{name: "parse error", body: "<html>not a feed</html>", status: http.StatusOK},
		{name: "http error", body: "oops", status: http.StatusBadGateway},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n := newTestNormalizer(t, tc.body, tc.status)
			_, err := n.Fetch(context.Background(), storage.Record{})
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %v", err)
			}
		})
	}
}
