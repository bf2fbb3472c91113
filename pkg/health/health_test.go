package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func get(t *testing.T, fn http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, ok)
	h.AddLivenessCheck("db", time.Second, failing("connection refused"))

	w := get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	// Below the failure threshold the check stays healthy.
	runN(h.live[1], failureThreshold-1)
	assert.Equal(t, http.StatusOK, get(t, h.LiveEndpoint).Code)

	runN(h.live[1], 1)
	w = get(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"db":"connection refused"}}`, w.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, ok)
	h.AddReadinessCheck("snapshots", time.Second, failing("redis down"))

	w := get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, w.Body.String())

	h.SetReady(true)
	assert.True(t, h.IsReady())
	assert.JSONEq(t, `{"status":"ok"}`, get(t, h.ReadyEndpoint).Body.String())

	runN(h.readiness[1], failureThreshold)
	assert.False(t, h.IsReady())
	w = get(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"snapshots":"redis down"}}`, w.Body.String())

	h.SetReady(false)
	w = get(t, h.ReadyEndpoint)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready","snapshots":"redis down"}}`, w.Body.String())
}

func TestCheck_Recovers(t *testing.T) {
	fail := true
	c := newCheck("flaky", time.Second, func(context.Context) error {
		if fail {
			return errors.New("flaky")
		}
		return nil
	})

	runN(c, failureThreshold)
	require.False(t, c.healthy.Load())
	assert.Equal(t, "flaky", c.failure())

	fail = false
	runN(c, successThreshold)
	assert.True(t, c.healthy.Load())
}

func TestCheck_Timeout(t *testing.T) {
	c := newCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	runN(c, failureThreshold)
	assert.False(t, c.healthy.Load())
	assert.Contains(t, c.failure(), "deadline exceeded")
}

func TestStartStop(t *testing.T) {
	h := New()
	var (
		mu    sync.Mutex
		calls int
	)
	h.AddReadinessCheck("counter", time.Second, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, ok)
	h.AddReadinessCheck("ready", time.Second, failing("nope"))
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	t.Cleanup(h.Stop)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				get(t, h.LiveEndpoint)
				get(t, h.ReadyEndpoint)
				h.IsReady()
			}
		})
	}
	wg.Wait()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	require.NoError(t, PingCheck(pinger{})(context.Background()))

	err := PingCheck(pinger{err: errors.New("refused")})(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(100_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestGCMaxPauseCheck(t *testing.T) {
	require.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
