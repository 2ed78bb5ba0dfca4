package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/EchoLayerS/EchoLayer/pkg/models"
	"github.com/EchoLayerS/EchoLayer/pkg/redis"
)

// defaultInfluence is assumed for identities the identity collaborator has
// not seeded yet.
const defaultInfluence = 0.5

const influenceTTL = 6 * time.Hour

// InfluenceCache reads identity influence seeds from Redis. The identity
// collaborator writes them; Sounder only consumes.
type InfluenceCache struct {
	client goredis.UniversalClient
}

// NewInfluenceCache wraps a Redis client for influence lookups.
func NewInfluenceCache(client goredis.UniversalClient) *InfluenceCache {
	return &InfluenceCache{client: client}
}

func influenceKey(userID, platform string) string {
	return "influence:" + models.NodeID(userID, platform)
}

// Get returns the seeded influence for an identity, falling back to the
// default when unseeded or when Redis is unavailable.
func (c *InfluenceCache) Get(ctx context.Context, userID, platform string) float64 {
	if c == nil || c.client == nil {
		return defaultInfluence
	}
	raw, err := c.client.Get(ctx, influenceKey(userID, platform)).Result()
	if err != nil {
		return defaultInfluence
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return defaultInfluence
	}
	return v
}

// Set stores an influence seed, mainly used by tests and backfills.
func (c *InfluenceCache) Set(ctx context.Context, userID, platform string, influence float64) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("influence cache has no redis client")
	}
	return c.client.Set(ctx, influenceKey(userID, platform), strconv.FormatFloat(influence, 'f', -1, 64), influenceTTL).Err()
}

// ResonanceAlert notifies analytics collaborators that a content item
// crossed the resonance threshold.
type ResonanceAlert struct {
	ContentID    string    `json:"content_id"`
	LoopStrength float64   `json:"loop_strength"`
	Platform     string    `json:"platform"`
	DetectedAt   time.Time `json:"detected_at"`
}

// ResonancePublisher pushes resonance alerts to subscribers.
type ResonancePublisher interface {
	Publish(ctx context.Context, channel string, alert ResonanceAlert) error
}

// ResonanceChannel is the pub/sub channel resonance alerts go out on.
const ResonanceChannel = "sounder:resonance"

// NewResonancePublisher builds the Redis-backed alert publisher.
func NewResonancePublisher(client goredis.UniversalClient) ResonancePublisher {
	return redis.NewTypedPubSub[ResonanceAlert](client)
}
