package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/page"
)

func TestPublisherRecordsEncodedEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	event := page.ChangeEvent{
		CheckID:    "check-1",
		URL:        "https://example.com",
		Outcome:    "changed",
		Digest:     "abc",
		DetectedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		Message:    "changed",
	}
	id, err := pub.Publish(context.Background(), "page-changes", event)
	require.NoError(t, err)
	require.Equal(t, "event-1", id)

	id, err = pub.Publish(context.Background(), "other", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "event-2", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.JSONEq(t, `{"k":"v"}`, string(msgs[1].Data))

	events, err := pub.ChangeEvents("page-changes")
	require.NoError(t, err)
	require.Equal(t, []page.ChangeEvent{event}, events)

	msgs[0].Topic = "modified"
	require.Equal(t, "page-changes", pub.Messages()[0].Topic)
}

func TestPublisherFailure(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.Fail(context.DeadlineExceeded)
	_, err := pub.Publish(context.Background(), "page-changes", "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, pub.Messages())

	pub.Fail(nil)
	_, err = pub.Publish(context.Background(), "page-changes", "x")
	require.NoError(t, err)
}

func TestPublisherRejectsBadInput(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")

	_, err = pub.Publish(context.Background(), "t", make(chan int))
	var unsupported *json.UnsupportedTypeError
	require.True(t, errors.As(err, &unsupported))
}
