package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator tracks content hashes of fetched SERPs in Redis so unchanged
// pages are not re-extracted
type Deduplicator struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewDeduplicator creates a new Redis-based deduplicator
func NewDeduplicator(client *redis.Client, prefix string, defaultTTL time.Duration) *Deduplicator {
	if prefix == "" {
		prefix = "serp:seen"
	}
	if defaultTTL == 0 {
		defaultTTL = 24 * time.Hour
	}
	return &Deduplicator{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

// IsUnchanged reports whether a job's markup hash matches the last one seen
func (d *Deduplicator) IsUnchanged(ctx context.Context, jobID, markup string) (bool, error) {
	key := d.makeKey(jobID)

	stored, err := d.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}

	return stored == hashContent(markup), nil
}

// MarkSeen stores a job's markup hash with the default TTL
func (d *Deduplicator) MarkSeen(ctx context.Context, jobID, markup string) error {
	key := d.makeKey(jobID)
	if err := d.client.Set(ctx, key, hashContent(markup), d.defaultTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (d *Deduplicator) makeKey(jobID string) string {
	return fmt.Sprintf("%s:%s", d.prefix, jobID)
}

func hashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:16])
}
