package model

import "time"

// JobStatus is the lifecycle state of a TrackingJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobRetrying   JobStatus = "retrying"
)

// IsTerminal reports whether the status ends the job's lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// TrackingJob is the scheduler's durable unit of work: one provider call
// for one keyword, owned by the keyword's project.
type TrackingJob struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	KeywordID     string     `json:"keyword_id"`
	Platform      Provider   `json:"platform"`
	Status        JobStatus  `json:"status"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RetryCount    int        `json:"retry_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	ResultData    []byte     `json:"result_data,omitempty"`
	CitationFound bool       `json:"citation_found"`
}
