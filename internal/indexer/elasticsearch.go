package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

// ElasticsearchIndexer indexes extracted ads to Elasticsearch for
// advertiser/keyword analytics queries
type ElasticsearchIndexer struct {
	client    *elasticsearch.Client
	indexName string
	log       *zap.Logger
}

// NewElasticsearchIndexer creates a new Elasticsearch indexer
func NewElasticsearchIndexer(addresses []string, indexName string, log *zap.Logger) (*ElasticsearchIndexer, error) {
	cfg := elasticsearch.Config{
		Addresses: addresses,
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create es client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("es info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("es error: %s", res.Status())
	}

	return &ElasticsearchIndexer{
		client:    client,
		indexName: indexName,
		log:       log,
	}, nil
}

// Index indexes a single ad document
func (i *ElasticsearchIndexer) Index(ctx context.Context, ad *AdDocument) error {
	data, err := json.Marshal(ad)
	if err != nil {
		return fmt.Errorf("marshal ad: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.indexName,
		DocumentID: ad.ID,
		Body:       bytes.NewReader(data),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("index request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index error: %s", res.Status())
	}

	return nil
}

// BulkIndex indexes multiple ad documents at once
func (i *ElasticsearchIndexer) BulkIndex(ctx context.Context, ads []*AdDocument) error {
	if len(ads) == 0 {
		return nil
	}

	var buf bytes.Buffer

	for _, ad := range ads {
		meta := map[string]any{
			"index": map[string]any{
				"_index": i.indexName,
				"_id":    ad.ID,
			},
		}
		metaBytes, _ := json.Marshal(meta)
		buf.Write(metaBytes)
		buf.WriteByte('\n')

		docBytes, err := json.Marshal(ad)
		if err != nil {
			i.log.Warn("marshal ad document", zap.String("id", ad.ID), zap.Error(err))
			continue
		}
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	res, err := i.client.Bulk(bytes.NewReader(buf.Bytes()), i.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk error: %s", res.Status())
	}

	var bulkRes struct {
		Errors bool `json:"errors"`
		Items  []struct {
			Index struct {
				ID     string `json:"_id"`
				Status int    `json:"status"`
				Error  struct {
					Type   string `json:"type"`
					Reason string `json:"reason"`
				} `json:"error"`
			} `json:"index"`
		} `json:"items"`
	}

	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		return fmt.Errorf("parse bulk response: %w", err)
	}

	if bulkRes.Errors {
		for _, item := range bulkRes.Items {
			if item.Index.Status >= 400 {
				i.log.Warn("bulk index error",
					zap.String("id", item.Index.ID),
					zap.String("type", item.Index.Error.Type),
					zap.String("reason", item.Index.Error.Reason))
			}
		}
	}

	return nil
}

// EnsureIndex creates the ads index with its mapping if it doesn't exist
func (i *ElasticsearchIndexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.indexName})
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == 200 {
		return nil // Index already exists
	}

	mapping := `{
		"mappings": {
			"properties": {
				"id": {"type": "keyword"},
				"job_id": {"type": "keyword"},
				"query": {
					"type": "text",
					"fields": {"keyword": {"type": "keyword"}}
				},
				"position": {"type": "integer"},
				"title": {
					"type": "text",
					"fields": {"keyword": {"type": "keyword"}}
				},
				"description": {"type": "text"},
				"destination_url": {"type": "keyword"},
				"advertiser_domain": {"type": "keyword"},
				"has_sitelinks": {"type": "boolean"},
				"has_phone_number": {"type": "boolean"},
				"group": {"type": "keyword"},
				"product_titles": {"type": "text"},
				"product_urls": {"type": "keyword"}
			}
		}
	}`

	res, err = i.client.Indices.Create(
		i.indexName,
		i.client.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("create index error: %s", res.Status())
	}

	return nil
}
