package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adlens/serp-crawler/internal/domain"
)

// Consumer consumes fetched SERP pages from the Redis queue
type Consumer struct {
	client    *redis.Client
	queueName string
	timeout   time.Duration
}

// NewConsumer creates a new queue consumer
func NewConsumer(client *redis.Client, queueName string, timeout time.Duration) *Consumer {
	if queueName == "" {
		queueName = "serp:fetched"
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Consumer{
		client:    client,
		queueName: queueName,
		timeout:   timeout,
	}
}

// Consume blocks and waits for a page from the queue.
// Returns nil, nil if timeout occurs with no page.
func (c *Consumer) Consume(ctx context.Context) (*domain.FetchedPage, error) {
	result, err := c.client.BRPop(ctx, c.timeout, c.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Timeout, nothing queued
		}
		return nil, fmt.Errorf("brpop: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var page domain.FetchedPage
	if err := json.Unmarshal([]byte(result[1]), &page); err != nil {
		return nil, fmt.Errorf("unmarshal page: %w", err)
	}

	return &page, nil
}

// ConsumeBatch consumes up to maxBatch pages from the queue.
// Uses BRPOP to block-wait for the first item (prevents CPU spinning),
// then RPOP to quickly drain the rest of the batch.
func (c *Consumer) ConsumeBatch(ctx context.Context, maxBatch int) ([]*domain.FetchedPage, error) {
	pages := make([]*domain.FetchedPage, 0, maxBatch)

	result, err := c.client.BRPop(ctx, c.timeout, c.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return pages, nil // Timeout, nothing queued
		}
		return nil, fmt.Errorf("brpop: %w", err)
	}

	if len(result) >= 2 {
		var page domain.FetchedPage
		if err := json.Unmarshal([]byte(result[1]), &page); err == nil {
			pages = append(pages, &page)
		}
	}

	for i := 1; i < maxBatch; i++ {
		result, err := c.client.RPop(ctx, c.queueName).Result()
		if err != nil {
			if err == redis.Nil {
				break // Queue drained
			}
			return pages, fmt.Errorf("rpop: %w", err)
		}

		var page domain.FetchedPage
		if err := json.Unmarshal([]byte(result), &page); err != nil {
			continue // Skip malformed payloads
		}

		pages = append(pages, &page)
	}

	return pages, nil
}
