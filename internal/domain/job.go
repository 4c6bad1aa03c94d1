package domain

import "time"

// JobStatus is the aggregate lifecycle state of a scrape-and-process job
type JobStatus string

const (
	StatusSubmitted  JobStatus = "submitted"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Stage identifies one phase of the processing pipeline
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageParse   Stage = "parse"
	StageExtract Stage = "extract"
	StageRender  Stage = "render"
)

// Stages lists all pipeline stages in processing order
var Stages = []Stage{StageFetch, StageParse, StageExtract, StageRender}

// StageStatus is the progress marker of a single pipeline stage
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// Job represents one scrape-and-process unit of work
type Job struct {
	ID          string     `json:"id"`
	Query       string     `json:"query"`
	Location    string     `json:"location"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      JobStatus  `json:"status"`

	// Per-stage progress, tracked independently of Status
	Stages map[Stage]StageStatus `json:"stages"`

	// RenderRequested controls whether the render stage is required
	// for the job to complete
	RenderRequested bool `json:"render_requested"`
}

// NewJob creates a submitted job with all stages pending
func NewJob(id, query, location string) *Job {
	return &Job{
		ID:        id,
		Query:     query,
		Location:  location,
		CreatedAt: time.Now(),
		Status:    StatusSubmitted,
		Stages: map[Stage]StageStatus{
			StageFetch:   StagePending,
			StageParse:   StagePending,
			StageExtract: StagePending,
			StageRender:  StagePending,
		},
	}
}

// FetchedPage is the queue payload handed from the content-fetching
// service to the extraction workers
type FetchedPage struct {
	JobID     string    `json:"job_id"`
	Query     string    `json:"query"`
	Location  string    `json:"location"`
	Markup    string    `json:"markup"`
	FetchedAt time.Time `json:"fetched_at"`
}
