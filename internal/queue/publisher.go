package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/adlens/serp-crawler/internal/domain"
)

// Publisher pushes fetched SERP pages to the Redis queue
type Publisher struct {
	client    *redis.Client
	queueName string
}

// NewPublisher creates a new queue publisher
func NewPublisher(client *redis.Client, queueName string) *Publisher {
	if queueName == "" {
		queueName = "serp:fetched"
	}
	return &Publisher{
		client:    client,
		queueName: queueName,
	}
}

// Publish pushes a single fetched page to the queue
func (p *Publisher) Publish(ctx context.Context, page *domain.FetchedPage) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}

	if err := p.client.LPush(ctx, p.queueName, data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}

	return nil
}

// PublishBatch pushes multiple fetched pages to the queue
func (p *Publisher) PublishBatch(ctx context.Context, pages []*domain.FetchedPage) error {
	if len(pages) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, page := range pages {
		data, err := json.Marshal(page)
		if err != nil {
			return fmt.Errorf("marshal page: %w", err)
		}
		pipe.LPush(ctx, p.queueName, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec: %w", err)
	}

	return nil
}

// QueueLength returns the current queue length
func (p *Publisher) QueueLength(ctx context.Context) (int64, error) {
	return p.client.LLen(ctx, p.queueName).Result()
}
