package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"feedpush/internal/fetch"
	logx "feedpush/pkg/logx"
)

func newTestEnricher(t *testing.T, status int, page string) (*Enricher, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") == "" {
			t.Errorf("missing Referer")
		}
		if r.Header.Get("User-Agent") != fetch.BrowserUserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)
	return New(Config{Enabled: true}, fetch.New(fetch.Config{}), logx.Nop()), server.URL + "/thread-1.html"
}

func TestExtractPrefersLazyAttribute(t *testing.T) {
	t.Parallel()
	page := `<html><body>
<img src="/static/logo.png">
<table><tr><td class="t_f" id="postmessage_1">
  <img src="data:image/gif;base64,R0lGOD" >
  <img src="/static/none.gif" file="//img.example.com/a.jpg">
  <img src="/attachments/b.jpg">
</td></tr></table>
</body></html>`
	e, pageURL := newTestEnricher(t, http.StatusOK, page)

	got := e.Extract(context.Background(), pageURL)
	u, _ := url.Parse(pageURL)
	want := u.Scheme + "://img.example.com/a.jpg"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("Extract = %v, want [%s]", got, want)
	}
}

func TestExtractNoContentElement(t *testing.T) {
	t.Parallel()
	e, pageURL := newTestEnricher(t, http.StatusOK, `<html><body><img src="/x.jpg"></body></html>`)
	if got := e.Extract(context.Background(), pageURL); len(got) != 0 {
		t.Fatalf("Extract = %v, want empty", got)
	}
}

func TestExtractNonSuccessStatus(t *testing.T) {
	t.Parallel()
	e, pageURL := newTestEnricher(t, http.StatusForbidden, `<td id="postmessage_1"><img src="/x.jpg"></td>`)
	if got := e.Extract(context.Background(), pageURL); len(got) != 0 {
		t.Fatalf("Extract = %v, want empty", got)
	}
}

func TestExtractDisabled(t *testing.T) {
	t.Parallel()
	e := New(Config{Enabled: false}, fetch.New(fetch.Config{}), logx.Nop())
	if got := e.Extract(context.Background(), "http://127.0.0.1:1/never"); got != nil {
		t.Fatalf("Extract = %v, want nil", got)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	base, _ := url.Parse("https://bbs.example.com/forum/thread-9.html")
	tests := []struct {
		src  string
		want string
		ok   bool
	}{
		{src: "//cdn.example.com/p.png", want: "https://cdn.example.com/p.png", ok: true},
		{src: "/data/attachment/p.png", want: "https://bbs.example.com/data/attachment/p.png", ok: true},
		{src: "p.png", want: "https://bbs.example.com/forum/p.png", ok: true},
		{src: "http://other.example.com/p.png", want: "http://other.example.com/p.png", ok: true},
		{src: "data:image/png;base64,AAAA"},
		{src: "JavaScript:alert(1)"},
		{src: "ftp://files.example.com/p.png"},
		{src: ""},
	}
	for _, tt := range tests {
		got, ok := resolve(base, tt.src)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("resolve(%q) = %q, %v; want %q, %v", tt.src, got, ok, tt.want, tt.ok)
		}
	}
}
