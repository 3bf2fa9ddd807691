package page

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusErrorMessage(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("probe: %w", &StatusError{URL: "https://example.com", StatusCode: 503})
	require.EqualError(t, err, "probe: unexpected status 503 (Service Unavailable) from https://example.com")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, 503, statusErr.StatusCode)
}
