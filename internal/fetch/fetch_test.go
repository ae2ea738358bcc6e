package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetSendsHeaders(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", ua)
		}
		if ref := r.Header.Get("Referer"); ref != "https://bbs.example.com/" {
			t.Errorf("Referer = %q", ref)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	c := New(Config{Timeout: 5 * time.Second, Cookies: true})
	res, err := c.Get(context.Background(), server.URL, Request{UserAgent: "test-agent", Referer: "https://bbs.example.com/"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(res.Body) != "<html></html>" {
		t.Fatalf("body = %q", res.Body)
	}
	if !strings.HasPrefix(res.ContentType, "text/html") {
		t.Fatalf("content type = %q", res.ContentType)
	}
}

func TestGetStatusError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := New(Config{}).Get(context.Background(), server.URL, Request{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusForbidden {
		t.Fatalf("code = %d, want 403", se.Code)
	}
}

func TestGetTooLarge(t *testing.T) {
	t.Parallel()
	payload := strings.Repeat("x", 2048)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	_, err := New(Config{}).Get(context.Background(), server.URL, Request{MaxBytes: 1024})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	res, err := New(Config{}).Get(context.Background(), server.URL, Request{MaxBytes: 4096})
	if err != nil {
		t.Fatalf("Get under limit: %v", err)
	}
	if len(res.Body) != len(payload) {
		t.Fatalf("body len = %d, want %d", len(res.Body), len(payload))
	}
}

func TestGetTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := New(Config{}).Get(context.Background(), server.URL, Request{Timeout: 100 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout not honored: %v", time.Since(start))
	}
}
