// Package batch maintains the three job lifecycle buckets and moves jobs
// between them.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/adlens/serp-crawler/internal/domain"
)

// Bucket names the persisted job collections
type Bucket string

const (
	BucketSubmitted  Bucket = "submitted"
	BucketInProgress Bucket = "in_progress"
	BucketCompleted  Bucket = "completed"

	// Rolling backup of the submitted bucket, written on every move out of it
	BucketSubmittedBackup Bucket = "submitted_backup"
)

// Document is the self-describing serialized form of one bucket
type Document struct {
	Queries []domain.Job `json:"queries"`
}

// BucketStore persists the bucket documents. A missing document reads as an
// empty list.
type BucketStore interface {
	Load(ctx context.Context, bucket Bucket) ([]domain.Job, error)
	Save(ctx context.Context, bucket Bucket, jobs []domain.Job) error
}

// RedisStore keeps each bucket as a JSON document under one Redis key
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed bucket store
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "buckets"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(bucket Bucket) string {
	return fmt.Sprintf("%s:%s", s.prefix, bucket)
}

// Load reads one bucket document; a missing key is an empty bucket
func (s *RedisStore) Load(ctx context.Context, bucket Bucket) ([]domain.Job, error) {
	data, err := s.client.Get(ctx, s.key(bucket)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load bucket %s: %w", bucket, err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode bucket %s: %w", bucket, err)
	}
	return doc.Queries, nil
}

// Save writes one bucket document
func (s *RedisStore) Save(ctx context.Context, bucket Bucket, jobs []domain.Job) error {
	data, err := json.Marshal(Document{Queries: jobs})
	if err != nil {
		return fmt.Errorf("encode bucket %s: %w", bucket, err)
	}
	if err := s.client.Set(ctx, s.key(bucket), data, 0).Err(); err != nil {
		return fmt.Errorf("save bucket %s: %w", bucket, err)
	}
	return nil
}

// MemoryStore is an in-process bucket store used in tests and single-node
// setups
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[Bucket][]domain.Job
}

// NewMemoryStore creates an empty in-memory bucket store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[Bucket][]domain.Job)}
}

// Load returns a copy of one bucket's jobs
func (s *MemoryStore) Load(_ context.Context, bucket Bucket) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := s.buckets[bucket]
	out := make([]domain.Job, len(jobs))
	copy(out, jobs)
	return out, nil
}

// Save replaces one bucket's jobs
func (s *MemoryStore) Save(_ context.Context, bucket Bucket, jobs []domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]domain.Job, len(jobs))
	copy(stored, jobs)
	s.buckets[bucket] = stored
	return nil
}
