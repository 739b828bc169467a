package summary

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/freshline/internal/shared"
)

type stubSource struct {
	calls    atomic.Int32
	counters Counters
	err      error
}

func (s *stubSource) Counts(context.Context) (Counters, error) {
	s.calls.Add(1)
	return s.counters, s.err
}

type stubShortfall int

func (s stubShortfall) Count(context.Context) (int, error) { return int(s), nil }

var fixedNow = time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, source CountSource, ttl time.Duration) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(source, stubShortfall(4), NewRedisStore(client, ttl), logger)
	svc.now = func() time.Time { return fixedNow }
	return svc, mr
}

func TestCurrentRefreshesOnMissAndCaches(t *testing.T) {
	source := &stubSource{counters: Counters{PendingRegistrations: 2, UnreadMessages: 7, OpenPurchaseOrders: 3}}
	svc, mr := newTestService(t, source, time.Minute)
	ctx := context.Background()

	first, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.PendingRegistrations)
	assert.Equal(t, int64(7), first.UnreadMessages)
	assert.Equal(t, int64(3), first.OpenPurchaseOrders)
	assert.Equal(t, int64(4), first.ShortfallItems)
	assert.True(t, first.RefreshedAt.Equal(fixedNow))

	assert.Equal(t, "7", mr.HGet(cacheKey, "unread_messages"))
	assert.True(t, mr.TTL(cacheKey) > 0)

	second, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestCurrentRecomputesAfterExpiry(t *testing.T) {
	source := &stubSource{counters: Counters{UnreadMessages: 1}}
	svc, mr := newTestService(t, source, 30*time.Second)
	ctx := context.Background()

	_, err := svc.Refresh(ctx)
	require.NoError(t, err)
	mr.FastForward(31 * time.Second)
	require.False(t, mr.Exists(cacheKey))

	source.counters.UnreadMessages = 5
	got, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.UnreadMessages)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestRefreshFailureLeavesCacheUntouched(t *testing.T) {
	source := &stubSource{err: shared.Storage("count summary", errors.New("connection refused"))}
	svc, mr := newTestService(t, source, time.Minute)

	_, err := svc.Refresh(context.Background())
	require.ErrorIs(t, err, shared.ErrStorage)
	assert.False(t, mr.Exists(cacheKey))
}

func TestCurrentFallsBackToLiveCountsOnCorruptCache(t *testing.T) {
	source := &stubSource{counters: Counters{PendingRegistrations: 9}}
	svc, mr := newTestService(t, source, time.Minute)
	mr.HSet(cacheKey, "pending_registrations", "many")

	got, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.PendingRegistrations)
	assert.Equal(t, "many", mr.HGet(cacheKey, "pending_registrations"))
}

func TestHandlerServesCounters(t *testing.T) {
	source := &stubSource{counters: Counters{OpenPurchaseOrders: 6}}
	svc, _ := newTestService(t, source, time.Minute)
	r := chi.NewRouter()
	r.Route("/api", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 6, body["open_purchase_orders"])
	assert.EqualValues(t, 4, body["shortfall_items"])
}
