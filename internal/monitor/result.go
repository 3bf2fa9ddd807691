package monitor

import "time"

// Outcome is the terminal state of one check.
type Outcome string

// Check outcomes.
const (
	OutcomeChanged      Outcome = "changed"
	OutcomeNoChange     Outcome = "no_change"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeError        Outcome = "error"
)

// Delivery records the side effects of a check, kept apart from its outcome.
type Delivery struct {
	Notified    bool
	NotifyError error
	EventID     string
	PublishErr  error
}

// Result is what one check observed.
type Result struct {
	CheckID        string    `json:"check_id,omitempty"`
	Status         Outcome   `json:"status"`
	URL            string    `json:"url,omitempty"`
	Digest         string    `json:"digest,omitempty"`
	PreviousDigest string    `json:"previous_digest,omitempty"`
	CheckedAt      time.Time `json:"checked_at,omitzero"`
	Notified       bool      `json:"notified"`
	Engine         string    `json:"engine,omitempty"`
	Error          string    `json:"error,omitempty"`

	DiffPreview string   `json:"-"`
	Delivery    Delivery `json:"-"`
}
