package brs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sheetOrigin(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"times":{"08:00":{"tee_time":{"slots":4,"bookable":true,"url":"","participants":[]}}}}`))
	}))
}

func TestSheetCacheReusesWithinTTL(t *testing.T) {
	var hits atomic.Int64
	srv := sheetOrigin(t, &hits)
	defer srv.Close()

	client := NewClient(srv.URL, "fairview")
	sc := NewSheetCache()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		sheet, err := sc.Fetch(ctx, client, "1", "2026/09/05", 0)
		require.NoError(t, err)
		require.NotNil(t, sheet.Slot("08:00"))
	}
	assert.Equal(t, int64(1), hits.Load())
}

func TestSheetCacheRefetchesAfterExpiry(t *testing.T) {
	var hits atomic.Int64
	srv := sheetOrigin(t, &hits)
	defer srv.Close()

	client := NewClient(srv.URL, "fairview")
	sc := &SheetCache{c: gocache.New(time.Millisecond, time.Minute), minTTL: time.Millisecond}
	ctx := context.Background()

	_, err := sc.Fetch(ctx, client, "1", "2026/09/05", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = sc.Fetch(ctx, client, "1", "2026/09/05", time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, int64(2), hits.Load())
}

func TestSheetCacheKeysByClubCourseDate(t *testing.T) {
	var hits atomic.Int64
	srv := sheetOrigin(t, &hits)
	defer srv.Close()

	sc := NewSheetCache()
	ctx := context.Background()

	a := NewClient(srv.URL, "fairview")
	b := NewClient(srv.URL, "lakeside")

	_, err := sc.Fetch(ctx, a, "1", "2026/09/05", time.Minute)
	require.NoError(t, err)
	_, err = sc.Fetch(ctx, b, "1", "2026/09/05", time.Minute)
	require.NoError(t, err)
	_, err = sc.Fetch(ctx, a, "2", "2026/09/05", time.Minute)
	require.NoError(t, err)
	_, err = sc.Fetch(ctx, a, "1", "2026/09/06", time.Minute)
	require.NoError(t, err)
	_, err = sc.Fetch(ctx, a, "1", "2026/09/05", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, int64(4), hits.Load())
}

func TestSheetCachePropagatesFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sc := NewSheetCache()
	client := NewClient(srv.URL, "fairview")
	_, err := sc.Fetch(context.Background(), client, "1", "2026/09/05", time.Minute)
	assert.Error(t, err)
}
