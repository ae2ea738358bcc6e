package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	kit "feedpush/internal/transport"
	logx "feedpush/pkg/logx"
)

const testToken = "123:secret"

type apiCall struct {
	method string
	params map[string]string
	file   []byte
}

type fakeAPI struct {
	mu     sync.Mutex
	calls  []apiCall
	status int
	reply  string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := "/bot" + testToken + "/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		call := apiCall{method: strings.TrimPrefix(r.URL.Path, prefix), params: map[string]string{}}

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			for k, v := range r.MultipartForm.Value {
				call.params[k] = v[0]
			}
			for _, fhs := range r.MultipartForm.File {
				fh, _ := fhs[0].Open()
				call.file, _ = io.ReadAll(fh)
				_ = fh.Close()
			}
		} else {
			var raw map[string]any
			_ = json.NewDecoder(r.Body).Decode(&raw)
			for k, v := range raw {
				switch x := v.(type) {
				case string:
					call.params[k] = x
				default:
					b, _ := json.Marshal(x)
					call.params[k] = string(b)
				}
			}
		}

		f.mu.Lock()
		f.calls = append(f.calls, call)
		status, reply := f.status, f.reply
		f.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		if reply == "" {
			reply = `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":-100,"type":"channel"},` +
				`"photo":[{"file_id":"f","file_unique_id":"u","width":1,"height":1}]}}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	})
}

func newTestAdapter(t *testing.T, api *fakeAPI, log logx.Logger) *Adapter {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	a, err := New(Config{APIURL: srv.URL + "/", Token: testToken, Timeout: 5 * time.Second}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSendText(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(t, api, logx.Nop())

	ref, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: "-100"}, "*hi*",
		&kit.SendOptions{ParseMode: "Markdown", DisablePreview: true})
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if ref.MessageID != 42 || ref.ChatID != "-100" {
		t.Fatalf("ref=%+v", ref)
	}
	if len(api.calls) != 1 {
		t.Fatalf("calls=%d, want 1", len(api.calls))
	}
	c := api.calls[0]
	if c.method != "sendMessage" {
		t.Fatalf("method=%q", c.method)
	}
	if c.params["chat_id"] != "-100" || c.params["text"] != "*hi*" || c.params["parse_mode"] != "Markdown" {
		t.Fatalf("params=%v", c.params)
	}
	if c.params["disable_web_page_preview"] != "true" {
		t.Fatalf("preview not disabled: %v", c.params)
	}
}

func TestSendPhoto(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(t, api, logx.Nop())

	img := []byte("\x89PNG fake image")
	ref, err := a.SendPhoto(context.Background(), kit.ChatTarget{ChatID: "@chan"},
		kit.Photo{Data: img, FileName: "a.png", Caption: "cap"}, &kit.SendOptions{ParseMode: "Markdown"})
	if err != nil {
		t.Fatalf("SendPhoto: %v", err)
	}
	if ref.MessageID != 42 {
		t.Fatalf("ref=%+v", ref)
	}
	if len(api.calls) != 1 {
		t.Fatalf("calls=%d, want 1", len(api.calls))
	}
	c := api.calls[0]
	if c.method != "sendPhoto" {
		t.Fatalf("method=%q", c.method)
	}
	if c.params["chat_id"] != "@chan" || c.params["caption"] != "cap" {
		t.Fatalf("params=%v", c.params)
	}
	if !bytes.Equal(c.file, img) {
		t.Fatalf("uploaded %q, want %q", c.file, img)
	}
}

func TestSendPhotoEmpty(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(t, api, logx.Nop())
	if _, err := a.SendPhoto(context.Background(), kit.ChatTarget{ChatID: "1"}, kit.Photo{}, nil); err == nil {
		t.Fatal("expected error for empty photo")
	}
	if len(api.calls) != 0 {
		t.Fatalf("calls=%d, want 0", len(api.calls))
	}
}

func TestNonSuccessIsLoggedWithBody(t *testing.T) {
	api := &fakeAPI{status: http.StatusBadRequest, reply: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`}
	var buf bytes.Buffer
	a := newTestAdapter(t, api, logx.NewWriter(&buf, "debug"))

	_, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: "1"}, "x", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	out := buf.String()
	if !strings.Contains(out, "chat not found") || !strings.Contains(out, "sendMessage") {
		t.Fatalf("log missing body/method: %s", out)
	}
	if strings.Contains(out, testToken) {
		t.Fatalf("token leaked into log: %s", out)
	}
}

func TestErrorsDoNotLeakToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a, err := New(Config{APIURL: url, Token: testToken, Timeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = a.SendText(context.Background(), kit.ChatTarget{ChatID: "1"}, "x", nil)
	if err == nil {
		t.Fatal("expected connection error")
	}
	if strings.Contains(err.Error(), testToken) {
		t.Fatalf("token leaked: %v", err)
	}
}

func TestCanceledContextSkipsRequest(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(t, api, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.SendText(ctx, kit.ChatTarget{ChatID: "1"}, "x", nil); err == nil {
		t.Fatal("expected context error")
	}
	if len(api.calls) != 0 {
		t.Fatalf("calls=%d, want 0", len(api.calls))
	}
}
