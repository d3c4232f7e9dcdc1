package real

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KazimAndrei/HollyProject/internal/appstore"
	"github.com/KazimAndrei/HollyProject/internal/metrics"
	"github.com/KazimAndrei/HollyProject/internal/models"
)

type staticIssuer struct {
	err   error
	calls int
}

func (s *staticIssuer) Issue() (models.SignedToken, error) {
	s.calls++
	if s.err != nil {
		return models.SignedToken{}, s.err
	}
	return models.SignedToken{Value: "test-token"}, nil
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

// scriptedServer answers with the given status codes in order, then 200 with body.
type scriptedServer struct {
	mu       sync.Mutex
	statuses []int
	body     string
	paths    []string
	auth     []string
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.paths = append(s.paths, r.URL.EscapedPath())
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	var status int
	if len(s.statuses) > 0 {
		status, s.statuses = s.statuses[0], s.statuses[1:]
	}
	s.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(s.body))
}

func (s *scriptedServer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

func newTestClient(t *testing.T, handler http.Handler, sleeper *sleepRecorder, maxRetries int, m *metrics.Metrics) (*AppStoreClient, *staticIssuer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	issuer := &staticIssuer{}
	client := NewAppStoreClient(AppStoreClientConfig{
		BaseURL:    srv.URL,
		Timeout:    time.Second,
		MaxRetries: maxRetries,
		Sleep:      sleeper.Sleep,
	}, issuer, zerolog.Nop(), m)
	return client, issuer
}

func TestAppStoreClient_Success(t *testing.T) {
	srv := &scriptedServer{body: `{"data":[{"signedTransactionInfo":"a.b.c","status":1}]}`}
	sleeper := &sleepRecorder{}
	client, issuer := newTestClient(t, srv, sleeper, 3, nil)

	resp, err := client.GetSubscriptionStatuses(context.Background(), "1000000123456789")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b.c"}, resp.SignedTransactions())
	assert.Equal(t, []string{"/inApps/v1/subscriptions/1000000123456789"}, srv.paths)
	assert.Equal(t, []string{"Bearer test-token"}, srv.auth)
	assert.Equal(t, 1, issuer.calls)
	assert.Empty(t, sleeper.waits)
}

func TestAppStoreClient_EscapesPath(t *testing.T) {
	srv := &scriptedServer{body: `{"signedTransactionInfo":"x"}`}
	client, _ := newTestClient(t, srv, &sleepRecorder{}, 3, nil)

	_, err := client.GetTransactionInfo(context.Background(), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, []string{"/inApps/v1/transactions/a%2Fb%20c"}, srv.paths)
}

func TestAppStoreClient_RetriesThenSucceeds(t *testing.T) {
	srv := &scriptedServer{
		statuses: []int{503, 503, 503},
		body:     `{"data":[]}`,
	}
	sleeper := &sleepRecorder{}
	m := metrics.New(prometheus.NewRegistry())
	client, issuer := newTestClient(t, srv, sleeper, 4, m)

	_, err := client.GetSubscriptionStatuses(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 4, srv.calls())
	assert.Equal(t, 4, issuer.calls, "fresh token per attempt")
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, sleeper.waits)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AppStoreRetries.WithLabelValues("subscriptions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AppStoreAttempts.WithLabelValues("subscriptions", "ok")))
}

func TestAppStoreClient_ExhaustsBudget(t *testing.T) {
	srv := &scriptedServer{statuses: []int{503, 503, 503, 503}}
	sleeper := &sleepRecorder{}
	client, _ := newTestClient(t, srv, sleeper, 4, nil)

	_, err := client.GetSubscriptionStatuses(context.Background(), "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appstore.ErrInconclusive)
	assert.Equal(t, 4, srv.calls())

	var total time.Duration
	for _, w := range sleeper.waits {
		total += w
	}
	assert.Equal(t, 3500*time.Millisecond, total)
	assert.Len(t, sleeper.waits, 3, "no backoff after the final attempt")
}

func TestAppStoreClient_DefaultBudgetIsThreeAttempts(t *testing.T) {
	srv := &scriptedServer{statuses: []int{429, 500, 502, 503}}
	sleeper := &sleepRecorder{}
	client, _ := newTestClient(t, srv, sleeper, 0, nil)

	_, err := client.GetTransactionInfo(context.Background(), "1")
	assert.ErrorIs(t, err, appstore.ErrInconclusive)
	assert.Equal(t, 3, srv.calls())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeper.waits)
}

func TestAppStoreClient_TerminalStatuses(t *testing.T) {
	for _, status := range []int{400, 401, 404, 501, 504} {
		srv := &scriptedServer{statuses: []int{status}}
		sleeper := &sleepRecorder{}
		client, _ := newTestClient(t, srv, sleeper, 3, nil)

		_, err := client.GetSubscriptionStatuses(context.Background(), "1")
		assert.ErrorIs(t, err, appstore.ErrInconclusive, "status %d", status)
		assert.Equal(t, 1, srv.calls(), "status %d", status)
		assert.Empty(t, sleeper.waits)
	}
}

func TestAppStoreClient_UndecodableBody(t *testing.T) {
	srv := &scriptedServer{body: "not json"}
	client, _ := newTestClient(t, srv, &sleepRecorder{}, 3, nil)

	_, err := client.GetSubscriptionStatuses(context.Background(), "1")
	assert.ErrorIs(t, err, appstore.ErrInconclusive)
	assert.Equal(t, 1, srv.calls())
}

func TestAppStoreClient_TimeoutIsRetried(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sleeper := &sleepRecorder{}
	client := NewAppStoreClient(AppStoreClientConfig{
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
		Sleep:   sleeper.Sleep,
	}, &staticIssuer{}, zerolog.Nop(), nil)

	_, err := client.GetSubscriptionStatuses(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sleeper.waits)
}

func TestAppStoreClient_CancelStopsRetries(t *testing.T) {
	srv := &scriptedServer{statuses: []int{503, 503, 503}}
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	s := httptest.NewServer(srv)
	t.Cleanup(s.Close)
	client := NewAppStoreClient(AppStoreClientConfig{BaseURL: s.URL, Sleep: sleeper}, &staticIssuer{}, zerolog.Nop(), nil)

	_, err := client.GetSubscriptionStatuses(ctx, "1")
	assert.ErrorIs(t, err, appstore.ErrInconclusive)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, srv.calls())
}

func TestAppStoreClient_SigningFailureIsTerminal(t *testing.T) {
	srv := &scriptedServer{}
	s := httptest.NewServer(srv)
	t.Cleanup(s.Close)
	issuer := &staticIssuer{err: errors.Join(appstore.ErrSigning, errors.New("bad key"))}
	client := NewAppStoreClient(AppStoreClientConfig{BaseURL: s.URL, Sleep: (&sleepRecorder{}).Sleep}, issuer, zerolog.Nop(), nil)

	_, err := client.GetSubscriptionStatuses(context.Background(), "1")
	assert.ErrorIs(t, err, appstore.ErrInconclusive)
	assert.ErrorIs(t, err, appstore.ErrSigning)
	assert.Equal(t, 0, srv.calls())
	assert.Equal(t, 1, issuer.calls)
}

func TestBaseURLFor(t *testing.T) {
	assert.Equal(t, SandboxURL, BaseURLFor("sandbox"))
	assert.Equal(t, SandboxURL, BaseURLFor(""))
	assert.Equal(t, ProductionURL, BaseURLFor("Production"))
}
