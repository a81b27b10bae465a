package geocache

import (
	"context"
	"time"
)

// Entry is one resolved geocode lookup.
type Entry struct {
	Place string  `json:"place"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// Cache stores resolved geocode lookups keyed by normalized query. Only
// derived lookup data lives here, never conversation state. Misses and
// backend failures both report ok=false; callers fall through to the
// upstream geocoder.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Set(ctx context.Context, key string, e Entry, ttl time.Duration)
}
