// Package page defines the core types shared across the watcher subsystems.
package page

import (
	"net/http"
	"time"
)

// FetchRequest captures everything needed to fetch the watched URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	// Engine names the fetcher that produced the body ("colly", "chromedp", "rod").
	Engine string
}

// Snapshot is the normalized rendition of one fetch and its digest.
type Snapshot struct {
	Content string
	Digest  string
}

// State is the last persisted snapshot. Either half may be absent.
type State struct {
	Digest     string
	Content    string
	HasDigest  bool
	HasContent bool
}

// ChangeEvent is published to downstream subscribers when a change is detected.
type ChangeEvent struct {
	CheckID        string    `json:"check_id"`
	URL            string    `json:"url"`
	Outcome        string    `json:"outcome"`
	Digest         string    `json:"digest,omitempty"`
	PreviousDigest string    `json:"previous_digest,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
	Message        string    `json:"message"`
}
