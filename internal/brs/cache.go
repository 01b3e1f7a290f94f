package brs

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MinSheetTTL is the floor on cache lifetime; polling faster than this
// still reuses the previous sheet rather than hammering the origin.
const MinSheetTTL = 5 * time.Second

// SheetCache bounds tee-sheet request rate across concurrent swap runs.
// Entries are replaced wholesale on refresh; a reader either sees the old
// complete sheet or the new complete sheet. Concurrent misses for the same
// key may each fetch; misses are rare relative to the TTL and the origin
// tolerates duplicate reads.
type SheetCache struct {
	c      *gocache.Cache
	minTTL time.Duration
}

func NewSheetCache() *SheetCache {
	return &SheetCache{c: gocache.New(MinSheetTTL, time.Minute), minTTL: MinSheetTTL}
}

func cacheKey(club, courseID, date string) string {
	return fmt.Sprintf("%s/%s/%s", club, courseID, date)
}

// Fetch returns the cached sheet for (club, course, date) if it is younger
// than ttl, otherwise fetches a fresh one through client and stores it.
// ttl is clamped to MinSheetTTL.
func (sc *SheetCache) Fetch(ctx context.Context, client *Client, courseID, date string, ttl time.Duration) (*Sheet, error) {
	if ttl < sc.minTTL {
		ttl = sc.minTTL
	}
	key := cacheKey(client.Club(), courseID, date)
	if v, ok := sc.c.Get(key); ok {
		return v.(*Sheet), nil
	}
	sheet, err := client.TeeSheet(ctx, courseID, date)
	if err != nil {
		return nil, err
	}
	sc.c.Set(key, sheet, ttl)
	return sheet, nil
}
