package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const testSecret = "s3cret"

type fakeChecker struct {
	result   monitor.Result
	err      error
	testErr  error
	checks   atomic.Int32
	tests    atomic.Int32
	panicMsg string
}

func (f *fakeChecker) Check(context.Context) (monitor.Result, error) {
	f.checks.Add(1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result, f.err
}

func (f *fakeChecker) SendTestMessage(context.Context) error {
	f.tests.Add(1)
	return f.testErr
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

func newTestServer(checker *fakeChecker, secret string) *Server {
	clock := fakeClock{now: time.Date(2024, 5, 1, 9, 30, 15, 0, time.UTC)}
	return NewServer(checker, clock, Config{Secret: secret}, zap.NewNop())
}

func do(t *testing.T, s *Server, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestCheckRequiresSecret(t *testing.T) {
	t.Parallel()

	for _, target := range []string{"/", "/?secret=", "/?secret=wrong", "/?secret=s3cre", "/?secret=s3cret2"} {
		checker := &fakeChecker{}
		rec, body := do(t, newTestServer(checker, testSecret), target)
		require.Equal(t, http.StatusForbidden, rec.Code, target)
		require.Equal(t, "unauthorized", body["status"])
		require.Zero(t, checker.checks.Load(), "check ran for %s", target)
	}
}

func TestEmptySecretRejectsEverything(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{}
	rec, _ := do(t, newTestServer(checker, ""), "/?secret=")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, checker.checks.Load())
}

func TestCheckOutcomes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		result monitor.Result
		err    error
		code   int
		status string
	}{
		{"changed", monitor.Result{Status: monitor.OutcomeChanged, CheckID: "c1", Digest: "abc", Notified: true}, nil, http.StatusOK, "changed"},
		{"no change", monitor.Result{Status: monitor.OutcomeNoChange, CheckID: "c2"}, nil, http.StatusOK, "no_change"},
		{"error", monitor.Result{Status: monitor.OutcomeError, Error: "fetch failed"}, errors.New("fetch failed"), http.StatusInternalServerError, "error"},
		{"error without result", monitor.Result{}, errors.New("boom"), http.StatusInternalServerError, "error"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			checker := &fakeChecker{result: tc.result, err: tc.err}
			rec, body := do(t, newTestServer(checker, testSecret), "/?secret="+testSecret)
			require.Equal(t, tc.code, rec.Code)
			require.Equal(t, tc.status, body["status"])
			require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			if tc.err != nil {
				require.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{}
	rec, body := do(t, newTestServer(checker, testSecret), "/heartbeat")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "2024-05-01 09:30:15", body["time"])
	require.Zero(t, checker.checks.Load())
}

func TestHealthzAndMetrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeChecker{}, testSecret)
	rec, body := do(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])

	rec, _ = do(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestSendTestMessage(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{}
	s := newTestServer(checker, testSecret)

	rec, _ := do(t, s, "/send-test-message")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, checker.tests.Load())

	rec, body := do(t, s, "/send-test-message?secret="+testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
	require.EqualValues(t, 1, checker.tests.Load())

	checker.testErr = errors.New("telegram down")
	rec, body = do(t, s, "/send-test-message?secret="+testSecret)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "telegram down", body["error"])
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{panicMsg: "kaboom"}
	rec, body := do(t, newTestServer(checker, testSecret), "/?secret="+testSecret)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal server error", body["error"])
}
