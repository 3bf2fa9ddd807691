// Package fetcher chains a cheap HTTP probe with a browser engine that is
// used only when the probe is answered by an anti-bot interstitial.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/challenge"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/page"
)

// Browser is a page.Fetcher that drives a real browser.
type Browser interface {
	page.Fetcher
	Name() string
}

// Promoting implements page.Fetcher.
type Promoting struct {
	probe    page.Fetcher
	browser  Browser
	detector page.ChallengeDetector
	logger   *zap.Logger
}

// NewPromoting wires the probe, optional browser and detector together.
// A nil browser disables promotion.
func NewPromoting(probe page.Fetcher, browser Browser, detector page.ChallengeDetector, logger *zap.Logger) (*Promoting, error) {
	if probe == nil {
		return nil, errors.New("probe fetcher is required")
	}
	if detector == nil {
		detector = challenge.NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{
		probe:    probe,
		browser:  browser,
		detector: detector,
		logger:   logger.Named("fetcher"),
	}, nil
}

// Fetch probes the URL and promotes to the browser when the probe hits a
// challenge. The browser result must itself not be a challenge.
func (p *Promoting) Fetch(ctx context.Context, request page.FetchRequest) (page.FetchResponse, error) {
	resp, err := p.probe.Fetch(ctx, request)
	if resp.Engine != "" {
		metrics.ObserveFetch(resp.Engine, resp.Duration)
	}

	reason := ""
	switch {
	case err != nil:
		var statusErr *page.StatusError
		if !errors.As(err, &statusErr) || !challenge.IsChallengeStatus(statusErr.StatusCode) {
			return page.FetchResponse{}, fmt.Errorf("probe fetch: %w", err)
		}
		reason = fmt.Sprintf("status %d", statusErr.StatusCode)
	case p.detector.IsChallenge(resp):
		reason = "challenge body"
	default:
		return resp, nil
	}

	if p.browser == nil {
		if err != nil {
			return page.FetchResponse{}, fmt.Errorf("probe fetch: %w", err)
		}
		return page.FetchResponse{}, fmt.Errorf("probe fetch of %s: %w", request.URL, page.ErrBotChallenge)
	}
	return p.promote(ctx, request, reason)
}

func (p *Promoting) promote(ctx context.Context, request page.FetchRequest, reason string) (page.FetchResponse, error) {
	engine := p.browser.Name()
	metrics.ObservePromotion(engine)
	p.logger.Info("promoting fetch to browser",
		zap.String("url", request.URL),
		zap.String("engine", engine),
		zap.String("reason", reason),
	)

	resp, err := p.browser.Fetch(ctx, request)
	if err != nil {
		return page.FetchResponse{}, fmt.Errorf("%s fetch: %w", engine, err)
	}
	metrics.ObserveFetch(engine, resp.Duration)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if challenge.IsChallengeStatus(resp.StatusCode) {
			return page.FetchResponse{}, fmt.Errorf("%s fetch of %s returned %d: %w", engine, request.URL, resp.StatusCode, page.ErrBotChallenge)
		}
		return page.FetchResponse{}, fmt.Errorf("%s fetch: %w", engine, &page.StatusError{
			URL:        resp.URL,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		})
	}
	if p.detector.IsChallenge(resp) {
		return page.FetchResponse{}, fmt.Errorf("%s fetch of %s: %w", engine, request.URL, page.ErrBotChallenge)
	}
	return resp, nil
}
