package notify

import (
	"context"
	"sync"
)

// Recorder keeps every alert in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []string

	// Err, when set, is returned from Notify after recording.
	Err error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify records text.
func (r *Recorder) Notify(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return r.Err
}

// Messages returns a copy of the recorded alerts.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
