// Package delivery turns one feed entry into one chat post: a photo with
// caption when an image can be fetched and uploaded, plain text otherwise.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"feedpush/internal/feed"
	"feedpush/internal/fetch"
	"feedpush/internal/identity"
	"feedpush/internal/transport"
	logx "feedpush/pkg/logx"
	"feedpush/pkg/tgui"
)

const (
	DefaultDelay         = 3 * time.Second
	DefaultFooter        = "🔔 RSS update"
	DefaultImageMaxBytes = 10 << 20
	DefaultImageTimeout  = 20 * time.Second
)

type Mode string

const (
	ModePhoto Mode = "photo"
	ModeText  Mode = "text"
	ModeNone  Mode = "none"
)

// Payload is what gets posted for one entry.
type Payload struct {
	Caption  string
	ImageURL string
}

// Outcome is the result of one delivery. Mode is how the entry went out,
// or ModeNone when nothing was posted.
type Outcome struct {
	ID      identity.ID
	Success bool
	Mode    Mode
	Err     error
}

type Config struct {
	ChatID   string
	ThreadID int

	// Delay is the pause before every entry but the first. Zero means
	// DefaultDelay; negative disables pacing.
	Delay time.Duration

	ParseMode   string
	EscapeChars string
	Footer      string
	// CaptionLimit bounds the caption in runes (bot API: 1024).
	CaptionLimit int

	ImageMaxBytes int64
	ImageTimeout  time.Duration

	// FollowUpCaption sends the photo bare and the caption as a separate
	// text message right after it.
	FollowUpCaption bool
}

// ImageGetter downloads images. *fetch.Client implements it.
type ImageGetter interface {
	Get(ctx context.Context, rawURL string, req fetch.Request) (*fetch.Result, error)
}

type Engine struct {
	cfg  Config
	send transport.Sender
	get  ImageGetter
	esc  tgui.Escaper
	log  logx.Logger
}

func New(cfg Config, send transport.Sender, get ImageGetter, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Footer == "" {
		cfg.Footer = DefaultFooter
	}
	if cfg.CaptionLimit <= 0 || cfg.CaptionLimit > tgui.MaxCaptionLen {
		cfg.CaptionLimit = tgui.MaxCaptionLen
	}
	if cfg.ImageMaxBytes <= 0 {
		cfg.ImageMaxBytes = DefaultImageMaxBytes
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = DefaultImageTimeout
	}
	return &Engine{
		cfg:  cfg,
		send: send,
		get:  get,
		esc:  tgui.NewEscaper(cfg.ParseMode, cfg.EscapeChars),
		log:  log.With(logx.String("comp", "delivery")),
	}
}

// Deliver posts one entry. Unless first is set it waits the configured
// delay before doing anything. It never returns an error directly; failures
// are reported in the Outcome.
func (e *Engine) Deliver(ctx context.Context, entry feed.Entry, images []string, first bool) Outcome {
	out := Outcome{ID: entry.ID, Mode: ModeNone}
	if !first && e.cfg.Delay > 0 {
		if err := sleepCtx(ctx, e.cfg.Delay); err != nil {
			out.Err = err
			return out
		}
	}

	p := e.BuildPayload(entry, images)
	log := e.log.With(logx.Int64("id", int64(entry.ID)), logx.String("link", entry.Link))

	if p.ImageURL != "" {
		err := e.sendPhoto(ctx, entry, p)
		if err == nil {
			out.Success, out.Mode = true, ModePhoto
			log.Info("delivered", logx.String("mode", string(ModePhoto)))
			return out
		}
		if ctx.Err() != nil {
			out.Err = err
			return out
		}
		log.Warn("photo delivery failed; falling back to text", logx.String("image", p.ImageURL), logx.Err(err))
	}

	if err := e.sendText(ctx, p.Caption); err != nil {
		out.Err = err
		log.Warn("delivery failed", logx.Err(err))
		return out
	}
	out.Success, out.Mode = true, ModeText
	log.Info("delivered", logx.String("mode", string(ModeText)))
	return out
}

// BuildPayload renders the caption and picks the image, if any.
func (e *Engine) BuildPayload(entry feed.Entry, images []string) Payload {
	p := Payload{Caption: e.caption(entry)}
	for _, img := range images {
		if img = strings.TrimSpace(img); img != "" {
			p.ImageURL = img
			break
		}
	}
	return p
}

func (e *Engine) caption(entry feed.Entry) string {
	author := entry.Author
	if strings.TrimSpace(author) == "" {
		author = feed.UnknownAuthor
	}
	limit := e.cfg.CaptionLimit
	render := func(title, author string) string {
		return e.esc.Bold(e.esc.Escape(title)) + "\n👤 " + e.esc.Escape(author) + "\n" + entry.Link + "\n\n" + e.cfg.Footer
	}

	if s := render(entry.Title, author); tgui.Len(s) <= limit {
		return s
	}
	// Escaping can lengthen text, so raw fields are cut before escaping and
	// markup is never split. The author gets at most a quarter of the caption.
	author = tgui.TruncRunes(author, limit/4)
	if s, ok := shrinkToFit(entry.Title, limit, func(t string) string { return render(t, author) }); ok {
		return s
	}
	title := tgui.TruncRunes(entry.Title, 1)
	if s, ok := shrinkToFit(author, limit, func(a string) string { return render(title, a) }); ok {
		return s
	}
	// Only the link and footer remain; neither carries markup.
	return tgui.TruncRunes(entry.Link+"\n\n"+e.cfg.Footer, limit)
}

// shrinkToFit cuts raw one rune at a time until render(raw) fits in limit.
func shrinkToFit(raw string, limit int, render func(string) string) (string, bool) {
	for n := min(tgui.Len(raw), limit); n > 0; n-- {
		if s := render(tgui.TruncRunes(raw, n)); tgui.Len(s) <= limit {
			return s, true
		}
	}
	return "", false
}

func (e *Engine) target() transport.ChatTarget {
	return transport.ChatTarget{ChatID: e.cfg.ChatID, ThreadID: e.cfg.ThreadID}
}

func (e *Engine) sendOptions() *transport.SendOptions {
	return &transport.SendOptions{ParseMode: e.esc.Mode(), DisablePreview: true}
}

func (e *Engine) sendText(ctx context.Context, text string) error {
	_, err := e.send.SendText(ctx, e.target(), text, e.sendOptions())
	return err
}

func (e *Engine) sendPhoto(ctx context.Context, entry feed.Entry, p Payload) error {
	if e.get == nil {
		return errors.New("no image client")
	}
	res, err := e.get.Get(ctx, p.ImageURL, fetch.Request{
		UserAgent: fetch.BrowserUserAgent,
		Referer:   entry.Link,
		Accept:    "image/*,*/*;q=0.8",
		MaxBytes:  e.cfg.ImageMaxBytes,
		Timeout:   e.cfg.ImageTimeout,
	})
	if err != nil {
		return fmt.Errorf("download image: %w", err)
	}
	if len(res.Body) == 0 {
		return errors.New("download image: empty body")
	}
	// Hotlink protection commonly answers with an HTML page and a 200.
	if ct := strings.ToLower(res.ContentType); strings.HasPrefix(ct, "text/") {
		return fmt.Errorf("download image: not an image (%s)", res.ContentType)
	}

	photo := transport.Photo{Data: res.Body, FileName: imageFileName(p.ImageURL), Caption: p.Caption}
	if e.cfg.FollowUpCaption {
		photo.Caption = ""
	}
	if _, err := e.send.SendPhoto(ctx, e.target(), photo, e.sendOptions()); err != nil {
		return err
	}
	if e.cfg.FollowUpCaption {
		if err := e.sendText(ctx, p.Caption); err != nil {
			e.log.Warn("caption follow-up failed", logx.Int64("id", int64(entry.ID)), logx.Err(err))
		}
	}
	return nil
}

func imageFileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
			return base
		}
	}
	return "image.jpg"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
