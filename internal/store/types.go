package store

import (
	"errors"
	"time"

	"github.com/adlens/serp-crawler/internal/domain"
)

// ErrNotFound reports a referenced record absent from the store
var ErrNotFound = errors.New("record not found")

// Staging record statuses
const (
	StagingPending   = "pending"
	StagingProcessed = "processed"
	StagingFailed    = "failed"
)

// StagingRecord tracks a job through intake before canonical persistence
type StagingRecord struct {
	JobID     string    `json:"job_id"`
	Query     string    `json:"query"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SerpRecord is the canonical row for one collected results page
type SerpRecord struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Query     string    `json:"query"`
	Location  string    `json:"location"`
	FetchedAt time.Time `json:"fetched_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Rendering is a persisted artifact of a collected page (sanitized HTML
// snapshot, screenshot path). Best-effort; absence never fails verification.
type Rendering struct {
	ID        string    `json:"id"`
	SerpID    string    `json:"serp_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatusRow is the persisted job-tracking state: the aggregate status
// plus the four independently settable stage statuses
type JobStatusRow struct {
	JobID           string
	Status          domain.JobStatus
	Fetch           domain.StageStatus
	Parse           domain.StageStatus
	Extract         domain.StageStatus
	Render          domain.StageStatus
	RenderRequested bool
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// StageOf returns the stored status of one stage
func (r *JobStatusRow) StageOf(s domain.Stage) domain.StageStatus {
	switch s {
	case domain.StageFetch:
		return r.Fetch
	case domain.StageParse:
		return r.Parse
	case domain.StageExtract:
		return r.Extract
	case domain.StageRender:
		return r.Render
	}
	return ""
}

// SetStage sets the stored status of one stage
func (r *JobStatusRow) SetStage(s domain.Stage, v domain.StageStatus) {
	switch s {
	case domain.StageFetch:
		r.Fetch = v
	case domain.StageParse:
		r.Parse = v
	case domain.StageExtract:
		r.Extract = v
	case domain.StageRender:
		r.Render = v
	}
}

// FailureStats groups ledger entries for bulk reporting
type FailureStats struct {
	ByProcessed map[bool]int                 `json:"by_processed"`
	ByReason    map[domain.FailureReason]int `json:"by_reason"`
	ByJob       map[string]int               `json:"by_job"`
	Total       int                          `json:"total"`
}
