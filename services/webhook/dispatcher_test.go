package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"latchain/core/types"
)

type delivery struct {
	headers http.Header
	body    []byte
}

type recorder struct {
	mu       sync.Mutex
	got      []delivery
	failures int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	r.got = append(r.got, delivery{headers: req.Header.Clone(), body: body})
	w.WriteHeader(http.StatusNoContent)
}

func (r *recorder) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.got...)
}

func receipt(id, operation string) *types.Receipt {
	return &types.Receipt{ID: id, Operation: operation, Sequence: 1, Reward: 42, Timestamp: 1_700_000_000}
}

func startDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)
}

func TestDeliversSignedReceipts(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	d := New([]Subscription{
		{Name: "claims", URL: server.URL, Secret: "s3cret", Operations: []string{"claimTradeRewards"}},
	})
	startDispatcher(t, d)

	require.NoError(t, d.IndexReceipt(context.Background(), receipt("r-1", "recordTrade")))
	require.NoError(t, d.IndexReceipt(context.Background(), receipt("r-2", "claimTradeRewards")))

	require.Eventually(t, func() bool { return len(rec.deliveries()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := rec.deliveries()[0]
	require.Equal(t, "claimTradeRewards", got.headers.Get(HeaderOperation))
	require.NotEmpty(t, got.headers.Get(HeaderDelivery))
	require.Equal(t, Sign("s3cret", got.body), got.headers.Get(HeaderSignature))

	var decoded types.Receipt
	require.NoError(t, json.Unmarshal(got.body, &decoded))
	require.Equal(t, "r-2", decoded.ID)
	require.Equal(t, uint64(42), decoded.Reward)
}

func TestRetriesFailedDeliveryWithSameID(t *testing.T) {
	rec := &recorder{failures: 2}
	server := httptest.NewServer(rec)
	defer server.Close()

	d := New([]Subscription{{Name: "all", URL: server.URL}}, WithBackoff(5*time.Millisecond))
	startDispatcher(t, d)

	require.NoError(t, d.IndexReceipt(context.Background(), receipt("r-1", "stake")))
	require.Eventually(t, func() bool { return len(rec.deliveries()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Empty(t, rec.deliveries()[0].headers.Get(HeaderSignature))
}

func TestIndexReceiptReportsOverflow(t *testing.T) {
	d := New([]Subscription{
		{Name: "a", URL: "http://127.0.0.1:1"},
		{Name: "b", URL: "http://127.0.0.1:1"},
	}, WithQueueCapacity(1))

	err := d.IndexReceipt(context.Background(), receipt("r-1", "stake"))
	require.True(t, errors.Is(err, ErrQueueFull))
	require.NoError(t, d.IndexReceipt(context.Background(), nil))
}

func TestBackoffIsCapped(t *testing.T) {
	d := New(nil, WithBackoff(time.Second))
	require.Equal(t, time.Second, d.backoffFor(1))
	require.Equal(t, 4*time.Second, d.backoffFor(3))
	require.Equal(t, maxBackoff, d.backoffFor(20))
}

func TestThrottledDeliveryWaitsForWindow(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	d := New([]Subscription{{Name: "slow", URL: server.URL, RateLimit: 1}}, withClock(clock))
	d.limiter = NewRateLimiter(50*time.Millisecond, 0)
	startDispatcher(t, d)

	require.NoError(t, d.IndexReceipt(context.Background(), receipt("r-1", "stake")))
	require.NoError(t, d.IndexReceipt(context.Background(), receipt("r-2", "stake")))
	require.Eventually(t, func() bool { return len(rec.deliveries()) == 1 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	now = now.Add(time.Second)
	mu.Unlock()
	require.Eventually(t, func() bool { return len(rec.deliveries()) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestRateLimiterWindows(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 5*time.Minute)
	start := time.Unix(1_700_000_000, 0)

	require.True(t, rl.Allow("a", 2, start))
	require.True(t, rl.Allow("a", 2, start.Add(time.Second)))
	require.False(t, rl.Allow("a", 2, start.Add(2*time.Second)))
	require.Equal(t, start.Add(time.Minute), rl.ResetAt("a", start.Add(3*time.Second)))
	require.True(t, rl.Allow("a", 2, start.Add(time.Minute)))

	require.True(t, rl.Allow("b", 0, start))
	require.Equal(t, 2, rl.Len())
	rl.Allow("c", 1, start.Add(10*time.Minute))
	require.Equal(t, 1, rl.Len())
}
