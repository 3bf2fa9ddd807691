package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", Truncate("abc", 10))
	require.Equal(t, "ab", Truncate("abc", 2))
	require.Equal(t, "", Truncate("abc", 0))
	require.Equal(t, "⚠️", Truncate("⚠️ Page changed", 2))
	require.True(t, utf8.ValidString(Truncate(strings.Repeat("日本", 10), 3)))
}

func TestMultiFanOut(t *testing.T) {
	t.Parallel()

	first := NewRecorder()
	second := NewRecorder()
	m := NewMulti(nil, Sink{Name: "first", Notifier: first}, Sink{Name: "second", Notifier: second})

	require.NoError(t, m.Notify(context.Background(), "changed"))
	require.Equal(t, []string{"changed"}, first.Messages())
	require.Equal(t, []string{"changed"}, second.Messages())
	require.Equal(t, []string{"first", "second"}, m.Names())
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("telegram down")
	failing := NewRecorder()
	failing.Err = boom
	healthy := NewRecorder()
	m := NewMulti(nil, Sink{Name: "telegram", Notifier: failing}, Sink{Name: "log", Notifier: healthy})

	err := m.Notify(context.Background(), "changed")
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "telegram:")
	require.Equal(t, []string{"changed"}, healthy.Messages())
}

func TestMultiTruncates(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	m := NewMulti(nil, Sink{Name: "rec", Notifier: rec})
	require.NoError(t, m.Notify(context.Background(), strings.Repeat("x", MaxMessageLength*2)))
	require.Len(t, rec.Messages()[0], MaxMessageLength)
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, NewLog(zap.New(core)).Notify(context.Background(), "hello"))

	entries := logs.FilterMessage("alert").All()
	require.Len(t, entries, 1)
	require.Equal(t, "hello", entries[0].ContextMap()["text"])
}
