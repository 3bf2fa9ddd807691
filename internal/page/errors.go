package page

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned by blob stores when an object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrBotChallenge means the fetched body is an anti-bot interstitial that could not be solved.
	ErrBotChallenge = errors.New("bot challenge not solved")
	// ErrEmptyDocument is returned when there is no HTML to normalize.
	ErrEmptyDocument = errors.New("empty document")
)

// StatusError reports a non-2xx response from the target.
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) from %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}
