// Package rodfetcher renders the watched page with go-rod and the
// go-rod/stealth evasions, for sites that fingerprint plain headless Chrome.
package rodfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/JakeFAU/pagewatch/internal/page"
)

const (
	// Engine names this fetcher in responses and metrics.
	Engine = "rod"

	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 2 * time.Second
)

// Config controls the rod fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	// RemoteURL connects to an existing Chrome DevTools endpoint instead of
	// launching a local browser.
	RemoteURL string
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
}

// Fetcher implements page.Fetcher with a lazily launched rod browser.
type Fetcher struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// New returns a rod fetcher. The browser starts on first use.
func New(cfg Config) (*Fetcher, error) {
	if cfg.NavigationTimeout < 0 || cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("rod timings must be >= 0")
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	return &Fetcher{cfg: cfg}, nil
}

// Name returns the engine name.
func (f *Fetcher) Name() string {
	return Engine
}

// Fetch opens a stealth tab, navigates and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request page.FetchRequest) (page.FetchResponse, error) {
	b, err := f.ensureBrowser()
	if err != nil {
		return page.FetchResponse{}, err
	}

	navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavigationTimeout)
	defer cancel()

	tab, err := stealth.Page(b)
	if err != nil {
		return page.FetchResponse{}, fmt.Errorf("rod: create tab: %w", err)
	}
	defer tab.Close() //nolint:errcheck // tab teardown

	p := tab.Context(navCtx)
	if err := f.prepare(p, request.Headers); err != nil {
		return page.FetchResponse{}, err
	}

	meta := &documentMeta{}
	go p.EachEvent(meta.capture)()

	start := time.Now()
	if err := p.Navigate(request.URL); err != nil {
		return page.FetchResponse{}, fmt.Errorf("rod: navigate %s: %w", request.URL, err)
	}
	if err := p.WaitLoad(); err != nil {
		return page.FetchResponse{}, fmt.Errorf("rod: wait load: %w", err)
	}
	select {
	case <-navCtx.Done():
		return page.FetchResponse{}, fmt.Errorf("rod: settle: %w", navCtx.Err())
	case <-time.After(f.cfg.SettleDelay):
	}

	html, err := p.HTML()
	if err != nil {
		return page.FetchResponse{}, fmt.Errorf("rod: read html: %w", err)
	}

	status, headers, finalURL := meta.snapshot()
	if finalURL == "" {
		if info, infoErr := p.Info(); infoErr == nil {
			finalURL = info.URL
		} else {
			finalURL = request.URL
		}
	}
	if status == 0 {
		status = http.StatusOK
	}

	return page.FetchResponse{
		URL:        finalURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Engine:     Engine,
	}, nil
}

func (f *Fetcher) prepare(p *rod.Page, headers http.Header) error {
	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		return fmt.Errorf("rod: enable network: %w", err)
	}
	if f.cfg.UserAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.cfg.UserAgent}); err != nil {
			return fmt.Errorf("rod: set user-agent: %w", err)
		}
	}
	if pairs := headerPairs(headers); len(pairs) > 0 {
		if _, err := p.SetExtraHeaders(pairs); err != nil {
			return fmt.Errorf("rod: set extra headers: %w", err)
		}
	}
	return nil
}

func (f *Fetcher) ensureBrowser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, errors.New("rod: fetcher is closed")
	}
	if f.browser != nil {
		return f.browser, nil
	}

	wsURL := f.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		if f.cfg.ExecPath != "" {
			l = l.Bin(f.cfg.ExecPath)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("rod: launch: %w", err)
		}
		wsURL = u
		f.lnch = l
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("rod: connect: %w", err)
	}
	f.browser = b
	return b, nil
}

// Close shuts down the browser if it was started.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Kill()
		f.lnch.Cleanup()
		f.lnch = nil
	}
	if err != nil {
		return fmt.Errorf("rod: close browser: %w", err)
	}
	return nil
}

type documentMeta struct {
	mu      sync.Mutex
	status  int
	headers http.Header
	url     string
}

func (m *documentMeta) capture(e *proto.NetworkResponseReceived) {
	if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range e.Response.Headers {
		headers.Add(key, value.Str())
	}
	m.mu.Lock()
	m.status = e.Response.Status
	m.headers = headers
	m.url = e.Response.URL
	m.mu.Unlock()
}

func (m *documentMeta) snapshot() (int, http.Header, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	headers := m.headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	return m.status, headers, m.url
}

func headerPairs(h http.Header) []string {
	pairs := make([]string, 0, len(h)*2)
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		pairs = append(pairs, key, values[len(values)-1])
	}
	return pairs
}
