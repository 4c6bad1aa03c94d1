package domain

import "time"

// FailureReason is the closed taxonomy of extraction failures.
// New reasons are added here explicitly, never inferred from messages.
type FailureReason string

const (
	ReasonNoAdContainers  FailureReason = "no_ad_containers"
	ReasonMalformedMarkup FailureReason = "malformed_markup"
	ReasonUpstreamFetch   FailureReason = "upstream_fetch_error"
	ReasonPersistFailed   FailureReason = "persist_failed"
)

// ValidReason reports whether r belongs to the taxonomy
func ValidReason(r FailureReason) bool {
	switch r {
	case ReasonNoAdContainers, ReasonMalformedMarkup, ReasonUpstreamFetch, ReasonPersistFailed:
		return true
	}
	return false
}

// FailureRecord is one ledger entry for a per-job extraction failure
type FailureRecord struct {
	ID        int64         `json:"id"`
	JobID     string        `json:"job_id"`
	Query     string        `json:"query"`
	Reason    FailureReason `json:"failure_reason"`
	Processed bool          `json:"processed"`
	CreatedAt time.Time     `json:"created_at"`
}
