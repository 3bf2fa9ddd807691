package page

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// ChallengeDetector decides whether a response is an anti-bot interstitial
// rather than the page itself.
type ChallengeDetector interface {
	IsChallenge(resp FetchResponse) bool
}

// Normalizer turns raw HTML into stable text for comparison.
type Normalizer interface {
	Normalize(raw string) (string, error)
}

// Hasher computes digests of normalized content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Differ renders a bounded, human-readable diff between two texts.
type Differ interface {
	Diff(previous, current string) (string, error)
}

// StateStore persists the last known digest and normalized content.
type StateStore interface {
	Read(ctx context.Context) (State, error)
	Write(ctx context.Context, digest, content string) error
}

// BlobStore reads and writes flat objects and returns a URI on write.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Notifier delivers a text alert to an external channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Publisher pushes change events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces check IDs.
type IDGenerator interface {
	NewID() (string, error)
}
