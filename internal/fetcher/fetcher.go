// Package fetcher is the content-fetching collaborator: it retrieves raw
// SERP markup for a (query, location) pair. The core treats its output as
// an opaque string.
package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/domain"
)

// Config holds fetcher settings
type Config struct {
	BaseURL      string
	UserAgent    string
	ProxyURL     string
	RequestDelay time.Duration
}

// Fetcher retrieves SERP markup over HTTP
type Fetcher struct {
	collector *colly.Collector
	baseURL   string
	log       *zap.Logger
}

// New creates a fetcher with rate limiting and optional proxy
func New(cfg Config, log *zap.Logger) *Fetcher {
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	if cfg.RequestDelay > 0 {
		c.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Delay:       cfg.RequestDelay,
			RandomDelay: cfg.RequestDelay / 2,
		})
	}

	if cfg.ProxyURL != "" {
		c.SetProxy(cfg.ProxyURL)
	}

	return &Fetcher{collector: c, baseURL: cfg.BaseURL, log: log}
}

// Fetch retrieves the results page for one job
func (f *Fetcher) Fetch(ctx context.Context, job domain.Job) (*domain.FetchedPage, error) {
	var markup string
	var fetchErr error

	c := f.collector.Clone()

	c.OnResponse(func(r *colly.Response) {
		markup = string(r.Body)
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetch error: %w (status: %d)", err, r.StatusCode)
	})

	if err := c.Visit(f.searchURL(job.Query, job.Location)); err != nil {
		return nil, fmt.Errorf("visit search url: %w", err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}

	f.log.Debug("page fetched",
		zap.String("job_id", job.ID),
		zap.Int("bytes", len(markup)))

	return &domain.FetchedPage{
		JobID:     job.ID,
		Query:     job.Query,
		Location:  job.Location,
		Markup:    markup,
		FetchedAt: time.Now(),
	}, nil
}

func (f *Fetcher) searchURL(query, location string) string {
	q := url.Values{}
	if location != "" {
		q.Set("q", query+" "+location)
	} else {
		q.Set("q", query)
	}
	return f.baseURL + "?" + q.Encode()
}
