package indexer

import (
	"context"

	"github.com/adlens/serp-crawler/internal/domain"
)

// AdDocument is the searchable form of one extracted ad
type AdDocument struct {
	ID    string `json:"id"`
	JobID string `json:"job_id"`
	Query string `json:"query"`
	domain.AdRecord
}

// Indexer defines the interface for ad indexing backends
type Indexer interface {
	// BulkIndex indexes multiple ad documents at once
	BulkIndex(ctx context.Context, ads []*AdDocument) error
}
