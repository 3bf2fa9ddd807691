// Package monitor runs one page check: fetch, normalize, fingerprint,
// compare against the stored state and, on change, alert and persist.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/page"
)

const (
	// TimestampLayout formats times in alerts and heartbeats.
	TimestampLayout = "2006-01-02 15:04:05"
	// TestMessage is sent by SendTestMessage.
	TestMessage = "✅ Test message from Page Watcher!"

	defaultCheckTimeout = 2 * time.Minute
	tracerName          = "github.com/JakeFAU/pagewatch/internal/monitor"
)

// Config controls what is watched.
type Config struct {
	URL     string
	Headers http.Header
	// Topic receives a page.ChangeEvent per detected change. Empty disables publishing.
	Topic string
	// CheckTimeout bounds one check, independent of the triggering request.
	CheckTimeout time.Duration
}

// Deps are the collaborators of a Checker. Publisher is optional.
type Deps struct {
	Fetcher    page.Fetcher
	Normalizer page.Normalizer
	Hasher     page.Hasher
	Differ     page.Differ
	Store      page.StateStore
	Notifier   page.Notifier
	Publisher  page.Publisher
	Clock      page.Clock
	IDs        page.IDGenerator
	Logger     *zap.Logger
}

// Checker executes checks. Concurrent calls share one in-flight check.
type Checker struct {
	cfg   Config
	deps  Deps
	log   *zap.Logger
	group singleflight.Group
}

// New validates deps and returns a Checker.
func New(cfg Config, deps Deps) (*Checker, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("target url is required")
	}
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Normalizer == nil:
		return nil, errors.New("normalizer is required")
	case deps.Hasher == nil:
		return nil, errors.New("hasher is required")
	case deps.Differ == nil:
		return nil, errors.New("differ is required")
	case deps.Store == nil:
		return nil, errors.New("state store is required")
	case deps.Notifier == nil:
		return nil, errors.New("notifier is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = defaultCheckTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{cfg: cfg, deps: deps, log: logger.Named("monitor")}, nil
}

// URL returns the watched URL.
func (c *Checker) URL() string {
	return c.cfg.URL
}

// Check runs a check, or joins the one already running. The returned error
// is non-nil exactly when the outcome is OutcomeError.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	// The shared check must survive any single caller going away.
	shared := context.WithoutCancel(ctx)
	v, err, joined := c.group.Do("check", func() (any, error) {
		runCtx, cancel := context.WithTimeout(shared, c.cfg.CheckTimeout)
		defer cancel()
		return c.run(runCtx)
	})
	res, _ := v.(Result)
	if joined {
		c.log.Debug("joined in-flight check", zap.String("check_id", res.CheckID))
	}
	return res, err
}

func (c *Checker) run(ctx context.Context) (Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "monitor.Check")
	defer span.End()

	res := Result{URL: c.cfg.URL, CheckedAt: c.deps.Clock.Now()}
	id, err := c.deps.IDs.NewID()
	if err != nil {
		return c.fail(ctx, res, fmt.Errorf("generate check id: %w", err))
	}
	res.CheckID = id
	span.SetAttributes(attribute.String("check.id", id), attribute.String("check.url", c.cfg.URL))
	log := c.log.With(zap.String("check_id", id), zap.String("url", c.cfg.URL))

	resp, err := c.deps.Fetcher.Fetch(ctx, page.FetchRequest{URL: c.cfg.URL, Headers: c.cfg.Headers})
	if err != nil {
		return c.fail(ctx, res, &FetchError{URL: c.cfg.URL, Err: err})
	}
	res.Engine = resp.Engine
	log.Debug("page fetched",
		zap.String("engine", resp.Engine),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)

	snap, err := c.snapshot(resp.Body)
	if err != nil {
		return c.fail(ctx, res, err)
	}
	res.Digest = snap.Digest

	prev, err := c.deps.Store.Read(ctx)
	if err != nil {
		return c.fail(ctx, res, &PersistError{Op: "read", Err: err})
	}
	if prev.HasDigest {
		res.PreviousDigest = prev.Digest
	}

	if prev.HasDigest && prev.Digest == snap.Digest {
		res.Status = OutcomeNoChange
		metrics.ObserveCheck(string(res.Status))
		span.SetAttributes(attribute.String("check.outcome", string(res.Status)))
		log.Info("page unchanged", zap.String("digest", snap.Digest))
		return res, nil
	}

	if prev.HasContent {
		preview, err := c.deps.Differ.Diff(prev.Content, snap.Content)
		if err != nil {
			log.Warn("diff failed", zap.Error(err))
		}
		res.DiffPreview = preview
	}

	log.Info("page changed",
		zap.String("digest", snap.Digest),
		zap.String("previous_digest", res.PreviousDigest),
	)
	res.Delivery.NotifyError = c.deps.Notifier.Notify(ctx, c.changeMessage(res))
	res.Delivery.Notified = res.Delivery.NotifyError == nil
	res.Notified = res.Delivery.Notified
	if res.Delivery.NotifyError != nil {
		log.Warn("change alert not delivered", zap.Error(res.Delivery.NotifyError))
	}

	if err := c.deps.Store.Write(ctx, snap.Digest, snap.Content); err != nil {
		return c.fail(ctx, res, &PersistError{Op: "write", Err: err})
	}

	c.publish(ctx, log, &res)

	res.Status = OutcomeChanged
	metrics.ObserveCheck(string(res.Status))
	span.SetAttributes(attribute.String("check.outcome", string(res.Status)))
	return res, nil
}

func (c *Checker) snapshot(body []byte) (page.Snapshot, error) {
	content, err := c.deps.Normalizer.Normalize(string(body))
	if err != nil {
		return page.Snapshot{}, &ParseError{Err: err}
	}
	digest, err := c.deps.Hasher.Hash([]byte(content))
	if err != nil {
		return page.Snapshot{}, &ParseError{Err: fmt.Errorf("hash content: %w", err)}
	}
	return page.Snapshot{Content: content, Digest: digest}, nil
}

func (c *Checker) publish(ctx context.Context, log *zap.Logger, res *Result) {
	if c.deps.Publisher == nil || c.cfg.Topic == "" {
		return
	}
	event := page.ChangeEvent{
		CheckID:        res.CheckID,
		URL:            res.URL,
		Outcome:        string(OutcomeChanged),
		Digest:         res.Digest,
		PreviousDigest: res.PreviousDigest,
		DetectedAt:     res.CheckedAt,
		Message:        c.changeMessage(*res),
	}
	id, err := c.deps.Publisher.Publish(ctx, c.cfg.Topic, event)
	metrics.ObserveNotification("pubsub", err)
	if err != nil {
		res.Delivery.PublishErr = err
		log.Warn("change event not published", zap.String("topic", c.cfg.Topic), zap.Error(err))
		return
	}
	res.Delivery.EventID = id
}

// fail finishes a check with OutcomeError and sends a best-effort error alert.
func (c *Checker) fail(ctx context.Context, res Result, err error) (Result, error) {
	res.Status = OutcomeError
	res.Error = err.Error()
	metrics.ObserveCheck(string(res.Status))

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	c.log.Error("check failed", zap.String("check_id", res.CheckID), zap.String("url", res.URL), zap.Error(err))
	if notifyErr := c.deps.Notifier.Notify(ctx, "Watcher Error: "+err.Error()); notifyErr != nil {
		c.log.Warn("error alert not delivered", zap.String("check_id", res.CheckID), zap.Error(notifyErr))
		res.Delivery.NotifyError = notifyErr
	} else {
		res.Delivery.Notified = true
	}
	res.Notified = res.Delivery.Notified
	return res, err
}

func (c *Checker) changeMessage(res Result) string {
	var b strings.Builder
	b.WriteString("⚠️ Page changed at ")
	b.WriteString(res.CheckedAt.Format(TimestampLayout))
	b.WriteString("\n")
	b.WriteString(res.URL)
	if res.DiffPreview != "" {
		b.WriteString("\n\nDiff preview:\n")
		b.WriteString(res.DiffPreview)
	}
	return b.String()
}

// SendTestMessage pushes a fixed message through the notifier.
func (c *Checker) SendTestMessage(ctx context.Context) error {
	if err := c.deps.Notifier.Notify(ctx, TestMessage); err != nil {
		return fmt.Errorf("send test message: %w", err)
	}
	return nil
}
