// Package notify delivers alert text to one or more sinks.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/page"
)

// MaxMessageLength is the largest alert, in characters, handed to a sink.
const MaxMessageLength = 4000

// Truncate cuts text to at most limit runes.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}

// Sink is a named notifier inside a Multi.
type Sink struct {
	Name     string
	Notifier page.Notifier
}

// Multi fans a message out to every sink in order.
type Multi struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMulti builds a fan-out notifier.
func NewMulti(logger *zap.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{sinks: sinks, logger: logger.Named("notify")}
}

// Notify truncates text and sends it to every sink. Every sink is attempted;
// failures are joined into the returned error.
func (m *Multi) Notify(ctx context.Context, text string) error {
	text = Truncate(text, MaxMessageLength)
	var errs []error
	for _, sink := range m.sinks {
		err := sink.Notifier.Notify(ctx, text)
		metrics.ObserveNotification(sink.Name, err)
		if err != nil {
			m.logger.Warn("notification failed", zap.String("sink", sink.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Names lists the configured sinks.
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name)
	}
	return names
}

// Log writes alerts to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a notifier that logs every alert at info level.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("alert")}
}

// Notify logs the alert.
func (l *Log) Notify(_ context.Context, text string) error {
	l.logger.Info("alert", zap.String("text", text))
	return nil
}
