// Package store defines the persistence interface for the tracking core
// and provides Postgres and SQLite implementations.
package store

import (
	"context"
	"time"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/resilience"
)

// CitationWindow bounds a scoring-window read over Citations for a project.
type CitationWindow struct {
	ProjectID string
	From      time.Time
	To        time.Time
}

// AlertFilter specifies criteria for listing alerts.
type AlertFilter struct {
	ProjectID string
	IsRead    *bool
	AlertType model.AlertType
	Limit     int
	Offset    int
}

// JobCount is one row of a (platform, status) grouped count, used by
// TrackingStatus's last-24h breakdown.
type JobCount struct {
	Platform model.Provider
	Status   model.JobStatus
	Count    int
}

// Store defines the persistence interface the tracking core depends on.
// Implementations assume a relational store with row-level transactions.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	UpdateProject(ctx context.Context, p *model.Project) error
	ArchiveProject(ctx context.Context, id string) error
	DeleteProject(ctx context.Context, id string) error
	ListActiveProjects(ctx context.Context) ([]model.Project, error)

	// Keywords
	CreateKeyword(ctx context.Context, k *model.Keyword) error
	GetKeyword(ctx context.Context, id string) (*model.Keyword, error)
	UpdateKeyword(ctx context.Context, k *model.Keyword) error
	DeleteKeyword(ctx context.Context, id string) error
	ListActiveKeywords(ctx context.Context, projectID string) ([]model.Keyword, error)
	SetKeywordLastTrackedAt(ctx context.Context, keywordID string, t time.Time) error

	// Citations
	CreateCitation(ctx context.Context, c *model.Citation) error
	// LatestCitation returns the most recent prior citation for a
	// (keyword, platform) pair, strictly before `before`, or nil if none
	// exists. It is the ground truth C7 diffs against.
	LatestCitation(ctx context.Context, keywordID string, platform model.Provider, before time.Time) (*model.Citation, error)
	ListCitationsInWindow(ctx context.Context, w CitationWindow) ([]model.Citation, error)
	DeleteCitationsOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// BackfillCitations bulk-loads historical citations from an export or
	// migration source, upserting by ID so repeated backfill runs over
	// overlapping data are idempotent. The Postgres implementation uses
	// pgx's COPY protocol via internal/db.BulkUpsert; SQLite falls back to
	// a single transaction of per-row upserts, since SQLite has no
	// equivalent bulk-copy wire protocol.
	BackfillCitations(ctx context.Context, citations []model.Citation) (int64, error)

	// Tracking jobs
	// EnqueueJob inserts a pending job, de-duplicated by
	// (project_id, keyword_id, platform, scheduled_at) among non-terminal
	// rows. Returns (job, true) if newly created, (existing, false) if a
	// matching non-terminal job already existed.
	EnqueueJob(ctx context.Context, j *model.TrackingJob) (*model.TrackingJob, bool, error)
	// ClaimJob atomically transitions a pending/retrying job to
	// processing, returning false if the row was already processing or
	// terminal.
	ClaimJob(ctx context.Context, jobID string, startedAt time.Time) (bool, error)
	GetJob(ctx context.Context, jobID string) (*model.TrackingJob, error)
	UpdateJob(ctx context.Context, j *model.TrackingJob) error
	CountJobsSince(ctx context.Context, projectID string, since time.Time) ([]JobCount, error)
	ReapStaleProcessingJobs(ctx context.Context, olderThan time.Time) (int, error)
	DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Daily metrics
	UpsertDailyMetric(ctx context.Context, m *model.DailyMetric) error
	ListDailyMetrics(ctx context.Context, projectID string, from, to time.Time, platform model.Provider) ([]model.DailyMetric, error)

	// Visibility scores
	InsertVisibilityScore(ctx context.Context, s *model.VisibilityScore) error
	LatestVisibilityScore(ctx context.Context, projectID string) (*model.VisibilityScore, error)
	ScoreHistory(ctx context.Context, projectID string, since time.Time) ([]model.VisibilityScore, error)

	// Alerts
	CreateAlert(ctx context.Context, a *model.Alert) error
	ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error)
	UnreadAlertCount(ctx context.Context, projectID string) (int, error)
	MarkAlertRead(ctx context.Context, id string) error
	MarkAllAlertsRead(ctx context.Context, projectID string) error
	DeleteAlert(ctx context.Context, id string) error
	DeleteAlertsOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Dead letter queue: jobs that exhausted the worker's Temporal
	// RetryPolicy land here for manual or delayed replay (spec §7).
	InsertDLQEntry(ctx context.Context, e *resilience.DLQEntry) error
	ListDLQEntries(ctx context.Context, f resilience.DLQFilter) ([]resilience.DLQEntry, error)

	// Provider credentials: sealed (AES-GCM encrypted) API keys, per spec
	// §5's "provider credentials are loaded once at process init" and
	// §1's "no cryptographic secrecy beyond storing them encrypted".
	UpsertProviderCredential(ctx context.Context, c *model.ProviderCredential) error
	ListProviderCredentials(ctx context.Context) ([]model.ProviderCredential, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
