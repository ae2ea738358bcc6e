// Package pipeline runs one poll: fetch the feed, deliver what is new in
// identity order, and remember what went out.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"feedpush/internal/delivery"
	"feedpush/internal/feed"
	"feedpush/internal/identity"
	"feedpush/internal/storage"
	logx "feedpush/pkg/logx"
)

const DefaultMaxPerRun = 5

// ErrConfig marks a run aborted before any network or storage call.
var ErrConfig = errors.New("invalid run configuration")

type Config struct {
	Token     string
	ChatID    string
	FeedURL   string
	MaxPerRun int
}

var chatIDRe = regexp.MustCompile(`^(-?\d+|@\w{2,})$`)

// Validate checks that the required settings are present and plausible.
func (c Config) Validate() error {
	var problems []string
	if tok := strings.TrimSpace(c.Token); tok == "" {
		problems = append(problems, "bot token is empty")
	} else if strings.ContainsAny(tok, " \t\r\n/") {
		problems = append(problems, "bot token contains whitespace or '/'")
	}
	if id := strings.TrimSpace(c.ChatID); id == "" {
		problems = append(problems, "chat id is empty")
	} else if !chatIDRe.MatchString(id) {
		problems = append(problems, fmt.Sprintf("chat id %q is neither numeric nor @username", id))
	}
	if u := strings.TrimSpace(c.FeedURL); u == "" {
		problems = append(problems, "feed url is empty")
	} else if pu, err := url.Parse(u); err != nil || (pu.Scheme != "http" && pu.Scheme != "https") || pu.Host == "" {
		problems = append(problems, fmt.Sprintf("feed url %q is not an http(s) url", u))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfig, strings.Join(problems, "; "))
}

type Normalizer interface {
	Fetch(ctx context.Context, seen feed.Seen) (feed.Result, error)
}

type Enricher interface {
	Extract(ctx context.Context, pageURL string) []string
}

type Deliverer interface {
	Deliver(ctx context.Context, entry feed.Entry, images []string, first bool) delivery.Outcome
}

// Deps are the collaborators of one coordinator. Enricher may be nil.
type Deps struct {
	Store      storage.Store
	Normalizer Normalizer
	Enricher   Enricher
	Deliverer  Deliverer
	Log        logx.Logger
}

// Report summarizes one run.
type Report struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Fetched    int         `json:"fetched"`
	Admitted   int         `json:"admitted"`
	Deferred   int         `json:"deferred"`
	Delivered  int         `json:"delivered"`
	Failed     int         `json:"failed"`
	Watermark  identity.ID `json:"watermark"`
	Err        error       `json:"-"`
}

func (r Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

type Coordinator struct {
	cfg  Config
	deps Deps
	log  logx.Logger
}

func New(cfg Config, deps Deps) *Coordinator {
	if cfg.MaxPerRun <= 0 {
		cfg.MaxPerRun = DefaultMaxPerRun
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "pipeline"))}
}

// RunOnce performs one poll. It always returns; problems are logged and
// reported in Report.Err. Per-entry delivery failures are not run errors.
func (c *Coordinator) RunOnce(ctx context.Context) (rep Report) {
	rep = Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := c.log.With(logx.String("run_id", rep.RunID))

	defer func() {
		if r := recover(); r != nil {
			rep.Err = fmt.Errorf("run panicked: %v", r)
			log.Error("run panicked", logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 32)))
		}
		rep.FinishedAt = time.Now()
		fields := []logx.Field{
			logx.Int("fetched", rep.Fetched),
			logx.Int("admitted", rep.Admitted),
			logx.Int("delivered", rep.Delivered),
			logx.Int("failed", rep.Failed),
			logx.Int64("watermark", int64(rep.Watermark)),
			logx.Duration("took", rep.Duration()),
		}
		if rep.Err != nil {
			log.Error("run ended", append(fields, logx.Err(rep.Err))...)
			return
		}
		log.Info("run ended", fields...)
	}()

	if err := c.cfg.Validate(); err != nil {
		rep.Err = err
		return rep
	}

	rec, err := c.deps.Store.Load(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("load state: %w", err)
		return rep
	}
	rep.Watermark = rec.Watermark

	res, err := c.deps.Normalizer.Fetch(ctx, rec)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Fetched = res.Fetched
	rep.Admitted = len(res.Entries)
	if len(res.Entries) == 0 {
		log.Debug("no new entries")
		return rep
	}

	entries := slices.Clone(res.Entries)
	slices.SortStableFunc(entries, func(a, b feed.Entry) int { return cmp.Compare(a.ID, b.ID) })
	if len(entries) > c.cfg.MaxPerRun {
		rep.Deferred = len(entries) - c.cfg.MaxPerRun
		entries = entries[:c.cfg.MaxPerRun]
		log.Info("per-run cap reached; rest deferred", logx.Int("cap", c.cfg.MaxPerRun), logx.Int("deferred", rep.Deferred))
	}

	// Only the unbroken run of successes from the start is committed; a
	// later success stays pending so the watermark never passes a failure.
	var committed []identity.ID
	broken := false
	for i, entry := range entries {
		if ctx.Err() != nil {
			log.Warn("run canceled; remaining entries left for next run", logx.Int("left", len(entries)-i))
			break
		}
		var images []string
		if c.deps.Enricher != nil {
			images = c.deps.Enricher.Extract(ctx, entry.Link)
		}
		out := c.deps.Deliverer.Deliver(ctx, entry, images, i == 0)
		c.journal(ctx, log, rep.RunID, entry, out)

		if out.Success {
			rep.Delivered++
			if !broken {
				committed = append(committed, entry.ID)
			}
			continue
		}
		rep.Failed++
		broken = true
	}

	if len(committed) == 0 {
		return rep
	}
	// Persist what already went out even when shutdown canceled ctx.
	if err := c.deps.Store.Commit(context.WithoutCancel(ctx), committed); err != nil {
		rep.Err = fmt.Errorf("commit state: %w", err)
		return rep
	}
	rep.Watermark = max(rep.Watermark, slices.Max(committed))
	return rep
}

func (c *Coordinator) journal(ctx context.Context, log logx.Logger, runID string, entry feed.Entry, out delivery.Outcome) {
	je := storage.DeliveryEntry{
		At:    time.Now().UTC(),
		RunID: runID,
		ID:    entry.ID,
		Link:  entry.Link,
		Title: entry.Title,
		Mode:  string(out.Mode),
		OK:    out.Success,
	}
	if out.Err != nil {
		je.Error = out.Err.Error()
	}
	if err := c.deps.Store.AppendDelivery(context.WithoutCancel(ctx), je); err != nil {
		log.Warn("journal append failed", logx.Int64("id", int64(entry.ID)), logx.Err(err))
	}
}
