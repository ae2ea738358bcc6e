package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "feedpush/internal/transport"
	logx "feedpush/pkg/logx"
)

// DefaultAPIURL is the SafeW bot API, which speaks the Telegram Bot API dialect.
const DefaultAPIURL = "https://api.safew.org"

type Config struct {
	APIURL  string
	Token   string
	Timeout time.Duration
}

// Adapter sends messages through a Telegram-compatible bot API.
// It never polls for updates and never retries: one call, one HTTP request.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	log = log.With(logx.String("comp", "bot.adapter"))

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &diagTransport{next: http.DefaultTransport, log: log},
	}
	b, err := tele.NewBot(tele.Settings{
		URL:    cfg.APIURL,
		Token:  cfg.Token,
		Client: client,
		// Skip getMe; a bad token shows up as a failed delivery.
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// chatRecipient passes the configured chat id through untouched,
// so both numeric ids and @usernames work.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

func (a *Adapter) sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(chatRecipient(to.ChatID), text, a.sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, a.scrub(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, p kit.Photo, opt *kit.SendOptions) (ref kit.MessageRef, err error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	if len(p.Data) == 0 {
		return kit.MessageRef{}, errors.New("photo is empty")
	}

	// telebot dereferences the returned photo; a non-conforming API reply
	// must not take the run down with it.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sendPhoto: unexpected response: %v", r)
		}
	}()

	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(p.Data)), Caption: p.Caption}
	msg, err := a.bot.Send(chatRecipient(to.ChatID), photo, a.sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, a.scrub(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

// scrub removes the bot token from errors; net/http errors embed the request URL.
func (a *Adapter) scrub(err error) error {
	if err == nil || a.cfg.Token == "" || !strings.Contains(err.Error(), a.cfg.Token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), a.cfg.Token, "<token>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
