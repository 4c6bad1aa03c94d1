// Package store persists canonical SERP records, ad records, relationship
// rows, renderings, staging records, job-tracking rows and the failure
// ledger in PostgreSQL. Access is plain create/read/update-by-key plus
// filtered lists; no transactions span multiple tables.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/domain"
)

// Store is the PostgreSQL-backed record store
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New wraps an existing database handle
func New(db *sql.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// Open connects to PostgreSQL and ensures the schema exists
func Open(connStr string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := New(db, log)
	if err := s.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// EnsureSchema creates the tables if they don't exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS staging_records (
			job_id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS serp_records (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL UNIQUE,
			query TEXT NOT NULL,
			location TEXT,
			fetched_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS ad_records (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			title TEXT,
			description TEXT,
			destination_url TEXT,
			advertiser_domain TEXT,
			has_sitelinks BOOLEAN DEFAULT FALSE,
			has_phone_number BOOLEAN DEFAULT FALSE,
			ad_group TEXT NOT NULL,
			product_titles TEXT[],
			product_urls TEXT[],
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS serp_ad_links (
			id TEXT PRIMARY KEY,
			serp_id TEXT NOT NULL,
			ad_id TEXT NOT NULL,
			UNIQUE (serp_id, ad_id)
		);
		CREATE TABLE IF NOT EXISTS serp_params (
			serp_id TEXT NOT NULL,
			name TEXT NOT NULL,
			ord INTEGER NOT NULL,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS renderings (
			id TEXT PRIMARY KEY,
			serp_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS job_status (
			job_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			fetch_status TEXT NOT NULL DEFAULT 'pending',
			parse_status TEXT NOT NULL DEFAULT 'pending',
			extract_status TEXT NOT NULL DEFAULT 'pending',
			render_status TEXT NOT NULL DEFAULT 'pending',
			render_requested BOOLEAN DEFAULT FALSE,
			started_at TIMESTAMP WITH TIME ZONE,
			completed_at TIMESTAMP WITH TIME ZONE,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS extraction_failures (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL,
			query TEXT,
			failure_reason TEXT NOT NULL,
			processed BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// CreateStaging registers a job in the staging table as pending
func (s *Store) CreateStaging(ctx context.Context, jobID, query string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staging_records (job_id, query, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE SET query = EXCLUDED.query, status = EXCLUDED.status`,
		jobID, query, StagingPending)
	if err != nil {
		return fmt.Errorf("insert staging record: %w", err)
	}
	return nil
}

// SetStagingStatus updates the staging status of a job
func (s *Store) SetStagingStatus(ctx context.Context, jobID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE staging_records SET status = $2 WHERE job_id = $1`, jobID, status)
	if err != nil {
		return fmt.Errorf("update staging status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("staging record for job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// StagingStatus returns the staging status of a job
func (s *Store) StagingStatus(ctx context.Context, jobID string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM staging_records WHERE job_id = $1`, jobID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("staging record for job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query staging record: %w", err)
	}
	return status, nil
}

// InsertSerp persists the canonical SERP record, assigning an id if empty
func (s *Store) InsertSerp(ctx context.Context, rec *SerpRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO serp_records (id, job_id, query, location, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO UPDATE SET
			query = EXCLUDED.query,
			location = EXCLUDED.location,
			fetched_at = EXCLUDED.fetched_at`,
		rec.ID, rec.JobID, rec.Query, rec.Location, rec.FetchedAt)
	if err != nil {
		return fmt.Errorf("insert serp record: %w", err)
	}
	return nil
}

// SerpByJob returns the canonical SERP record for a job
func (s *Store) SerpByJob(ctx context.Context, jobID string) (*SerpRecord, error) {
	rec := &SerpRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, query, location, fetched_at, created_at
		FROM serp_records WHERE job_id = $1`, jobID).
		Scan(&rec.ID, &rec.JobID, &rec.Query, &rec.Location, &rec.FetchedAt, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("serp record for job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query serp record: %w", err)
	}
	return rec, nil
}

// InsertAd persists one ad record and returns its assigned id
func (s *Store) InsertAd(ctx context.Context, ad domain.AdRecord) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ad_records (
			id, position, title, description, destination_url, advertiser_domain,
			has_sitelinks, has_phone_number, ad_group, product_titles, product_urls
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, ad.Position, ad.Title, ad.Description, ad.DestinationURL, ad.AdvertiserDomain,
		ad.HasSitelinks, ad.HasPhoneNumber, string(ad.Group),
		pq.Array(ad.ProductTitles), pq.Array(ad.ProductURLs))
	if err != nil {
		return "", fmt.Errorf("insert ad record: %w", err)
	}
	return id, nil
}

// LinkAd writes the SERP-to-ad relationship row
func (s *Store) LinkAd(ctx context.Context, serpID, adID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO serp_ad_links (id, serp_id, ad_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (serp_id, ad_id) DO NOTHING`,
		uuid.NewString(), serpID, adID)
	if err != nil {
		return fmt.Errorf("insert serp-ad link: %w", err)
	}
	return nil
}

// AdIDsForSerp returns the ad ids linked to a SERP
func (s *Store) AdIDsForSerp(ctx context.Context, serpID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ad_id FROM serp_ad_links WHERE serp_id = $1`, serpID)
	if err != nil {
		return nil, fmt.Errorf("query serp-ad links: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan link row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AdExists reports whether an ad row resolves (not a dangling reference)
func (s *Store) AdExists(ctx context.Context, adID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ad_records WHERE id = $1)`, adID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query ad record: %w", err)
	}
	return exists, nil
}

// SaveParams persists mined tracking parameters in observed order
func (s *Store) SaveParams(ctx context.Context, serpID string, params map[string][]string) error {
	for name, values := range params {
		for i, v := range values {
			if _, err := s.db.ExecContext(ctx, `
				INSERT INTO serp_params (serp_id, name, ord, value)
				VALUES ($1, $2, $3, $4)`, serpID, name, i, v); err != nil {
				return fmt.Errorf("insert param %s: %w", name, err)
			}
		}
	}
	return nil
}

// InsertRendering persists one rendering artifact for a SERP
func (s *Store) InsertRendering(ctx context.Context, serpID, kind, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO renderings (id, serp_id, kind, content)
		VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), serpID, kind, content)
	if err != nil {
		return fmt.Errorf("insert rendering: %w", err)
	}
	return nil
}

// RenderingCount returns how many rendering artifacts exist for a SERP
func (s *Store) RenderingCount(ctx context.Context, serpID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM renderings WHERE serp_id = $1`, serpID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count renderings: %w", err)
	}
	return n, nil
}

// UpsertJobStatus writes the full job-tracking row
func (s *Store) UpsertJobStatus(ctx context.Context, row *JobStatusRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_status (
			job_id, status, fetch_status, parse_status, extract_status, render_status,
			render_requested, started_at, completed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			fetch_status = EXCLUDED.fetch_status,
			parse_status = EXCLUDED.parse_status,
			extract_status = EXCLUDED.extract_status,
			render_status = EXCLUDED.render_status,
			render_requested = EXCLUDED.render_requested,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = NOW()`,
		row.JobID, string(row.Status),
		string(row.Fetch), string(row.Parse), string(row.Extract), string(row.Render),
		row.RenderRequested, row.StartedAt, row.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert job status: %w", err)
	}
	return nil
}

// JobStatus reads the job-tracking row for a job
func (s *Store) JobStatus(ctx context.Context, jobID string) (*JobStatusRow, error) {
	row := &JobStatusRow{}
	var status, fetch, parse, extract, render string
	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, status, fetch_status, parse_status, extract_status, render_status,
			render_requested, started_at, completed_at
		FROM job_status WHERE job_id = $1`, jobID).
		Scan(&row.JobID, &status, &fetch, &parse, &extract, &render,
			&row.RenderRequested, &row.StartedAt, &row.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job status for %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query job status: %w", err)
	}
	row.Status = domain.JobStatus(status)
	row.Fetch = domain.StageStatus(fetch)
	row.Parse = domain.StageStatus(parse)
	row.Extract = domain.StageStatus(extract)
	row.Render = domain.StageStatus(render)
	return row, nil
}

// InsertFailure appends one ledger entry
func (s *Store) InsertFailure(ctx context.Context, rec *domain.FailureRecord) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO extraction_failures (job_id, query, failure_reason, processed)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		rec.JobID, rec.Query, string(rec.Reason), rec.Processed).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert failure record: %w", err)
	}
	return nil
}

// FailuresByJob lists ledger entries for one job, oldest first
func (s *Store) FailuresByJob(ctx context.Context, jobID string) ([]domain.FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, query, failure_reason, processed, created_at
		FROM extraction_failures WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []domain.FailureRecord
	for rows.Next() {
		var rec domain.FailureRecord
		var reason string
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Query, &reason, &rec.Processed, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		rec.Reason = domain.FailureReason(reason)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FailureStats aggregates ledger entries by processed flag, reason and job
func (s *Store) FailureStats(ctx context.Context) (*FailureStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, failure_reason, processed FROM extraction_failures`)
	if err != nil {
		return nil, fmt.Errorf("query failure stats: %w", err)
	}
	defer rows.Close()

	stats := &FailureStats{
		ByProcessed: make(map[bool]int),
		ByReason:    make(map[domain.FailureReason]int),
		ByJob:       make(map[string]int),
	}
	for rows.Next() {
		var jobID, reason string
		var processed bool
		if err := rows.Scan(&jobID, &reason, &processed); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats.ByProcessed[processed]++
		stats.ByReason[domain.FailureReason(reason)]++
		stats.ByJob[jobID]++
		stats.Total++
	}
	return stats, rows.Err()
}

// CallReprocess invokes the stored reconciliation procedure for a job
func (s *Store) CallReprocess(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `SELECT reprocess_serp_job($1)`, jobID); err != nil {
		return fmt.Errorf("reprocess procedure for job %s: %w", jobID, err)
	}
	return nil
}

// MarkFailuresProcessed flips processed=true on a job's ledger entries
func (s *Store) MarkFailuresProcessed(ctx context.Context, jobID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_failures SET processed = TRUE WHERE job_id = $1 AND processed = FALSE`,
		jobID)
	if err != nil {
		return 0, fmt.Errorf("mark failures processed: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
