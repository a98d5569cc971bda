package geo

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedGeocoder wraps a Geocoder with a Redis read-through cache. Postcode
// coordinates never move, so a long TTL is safe; cache failures fall through
// to the wrapped geocoder and are never surfaced to the query path.
type CachedGeocoder struct {
	next   Geocoder
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedGeocoder wraps next with a Redis cache.
func NewCachedGeocoder(next Geocoder, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedGeocoder {
	return &CachedGeocoder{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "geocode-cache").Logger(),
	}
}

// Geocode resolves a postcode, consulting the cache first.
func (c *CachedGeocoder) Geocode(ctx context.Context, postcode string) (Coordinates, error) {
	key := "geocode:" + NormalizePostcode(postcode)

	data, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var coords Coordinates
		if err := json.Unmarshal([]byte(data), &coords); err == nil {
			return coords, nil
		}
	} else if err != redis.Nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache read failed")
	}

	coords, err := c.next.Geocode(ctx, postcode)
	if err != nil {
		return Coordinates{}, err
	}

	if data, err := json.Marshal(coords); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
		}
	}

	return coords, nil
}

// NormalizePostcode strips whitespace and upper-cases a postcode for
// comparison and cache keying.
func NormalizePostcode(postcode string) string {
	return strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))
}
