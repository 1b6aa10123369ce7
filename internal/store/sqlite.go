package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local
// development and single-process deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS projects (
	id                 TEXT PRIMARY KEY,
	organization_id    TEXT NOT NULL,
	primary_domain     TEXT NOT NULL,
	competitor_domains TEXT NOT NULL DEFAULT '[]',
	is_active          INTEGER NOT NULL DEFAULT 1,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS keywords (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL REFERENCES projects(id),
	keyword_text    TEXT NOT NULL,
	priority_level  INTEGER NOT NULL DEFAULT 3,
	funnel_stage    TEXT NOT NULL DEFAULT 'awareness',
	is_active       INTEGER NOT NULL DEFAULT 1,
	last_tracked_at DATETIME,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (project_id, keyword_text)
);

CREATE TABLE IF NOT EXISTS citations (
	id                   TEXT PRIMARY KEY,
	project_id           TEXT NOT NULL,
	keyword_id           TEXT NOT NULL REFERENCES keywords(id),
	platform             TEXT NOT NULL,
	tracked_at           DATETIME NOT NULL,
	domain_mentioned     INTEGER NOT NULL,
	citation_position    INTEGER,
	citation_context     TEXT,
	full_response_text   TEXT NOT NULL,
	response_summary     TEXT NOT NULL,
	sentiment            TEXT NOT NULL,
	confidence_score     REAL NOT NULL,
	word_count           INTEGER NOT NULL,
	competitor_citations TEXT NOT NULL DEFAULT '[]',
	total_sources_cited  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_citations_kw_platform_tracked ON citations(keyword_id, platform, tracked_at DESC);
CREATE INDEX IF NOT EXISTS idx_citations_project_tracked ON citations(project_id, tracked_at);

CREATE TABLE IF NOT EXISTS tracking_jobs (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL,
	keyword_id     TEXT NOT NULL,
	platform       TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	scheduled_at   DATETIME NOT NULL,
	started_at     DATETIME,
	completed_at   DATETIME,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT NOT NULL DEFAULT '',
	result_data    TEXT,
	citation_found INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_scheduled ON tracking_jobs(status, scheduled_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_dedupe_nonterminal
	ON tracking_jobs(project_id, keyword_id, platform, scheduled_at)
	WHERE status IN ('pending', 'processing', 'retrying');

CREATE TABLE IF NOT EXISTS daily_metrics (
	project_id          TEXT NOT NULL,
	date                DATETIME NOT NULL,
	platform            TEXT NOT NULL,
	total_queries       INTEGER NOT NULL DEFAULT 0,
	mentions            INTEGER NOT NULL DEFAULT 0,
	avg_position        REAL NOT NULL DEFAULT 0,
	positive_sentiment  INTEGER NOT NULL DEFAULT 0,
	neutral_sentiment   INTEGER NOT NULL DEFAULT 0,
	negative_sentiment  INTEGER NOT NULL DEFAULT 0,
	total_sources_cited INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, date, platform)
);

CREATE TABLE IF NOT EXISTS visibility_scores (
	project_id    TEXT NOT NULL,
	calculated_at DATETIME NOT NULL,
	frequency     REAL NOT NULL,
	position      REAL NOT NULL,
	diversity     REAL NOT NULL,
	context       REAL NOT NULL,
	momentum      REAL NOT NULL,
	overall       REAL NOT NULL,
	grade         TEXT NOT NULL,
	delta_7d      REAL,
	delta_30d     REAL,
	PRIMARY KEY (project_id, calculated_at)
);
CREATE INDEX IF NOT EXISTS idx_scores_project_calculated ON visibility_scores(project_id, calculated_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	alert_type      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL,
	keyword_id      TEXT NOT NULL DEFAULT '',
	platform        TEXT NOT NULL DEFAULT '',
	previous_value  TEXT NOT NULL DEFAULT '',
	current_value   TEXT NOT NULL DEFAULT '',
	change_percent  REAL,
	is_read         INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_alerts_org_unread ON alerts(organization_id, is_read) WHERE is_read = 0;

CREATE TABLE IF NOT EXISTS dead_letter_jobs (
	id             TEXT PRIMARY KEY,
	job_json       TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	failed_phase   TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 0,
	next_retry_at  DATETIME,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_jobs(error_type);

CREATE TABLE IF NOT EXISTS provider_credentials (
	provider        TEXT PRIMARY KEY,
	encrypted_key   BLOB NOT NULL,
	nonce           BLOB NOT NULL,
	rate_per_minute INTEGER NOT NULL DEFAULT 0,
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scannable abstracts *sql.Row and *sql.Rows, which share Scan's signature.
type scannable interface {
	Scan(dest ...any) error
}

// ---- Projects ----

func (s *SQLiteStore) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	domains, err := json.Marshal(p.CompetitorDomains)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal competitor domains")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, organization_id, primary_domain, competitor_domains, is_active, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.OrganizationID, p.PrimaryDomain, string(domains), p.IsActive, p.CreatedAt, p.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: create project")
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, primary_domain, competitor_domains, is_active, created_at, updated_at
		 FROM projects WHERE id=?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "project %s", id)
	}
	return p, err
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *model.Project) error {
	domains, err := json.Marshal(p.CompetitorDomains)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal competitor domains")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE projects SET primary_domain=?, competitor_domains=?, is_active=?, updated_at=? WHERE id=?`,
		p.PrimaryDomain, string(domains), p.IsActive, time.Now().UTC(), p.ID,
	)
	return eris.Wrap(err, "sqlite: update project")
}

func (s *SQLiteStore) ArchiveProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET is_active=0, updated_at=? WHERE id=?`, time.Now().UTC(), id)
	return eris.Wrap(err, "sqlite: archive project")
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	return eris.Wrap(err, "sqlite: delete project")
}

func (s *SQLiteStore) ListActiveProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, primary_domain, competitor_domains, is_active, created_at, updated_at
		 FROM projects WHERE is_active=1`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active projects")
	}
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list active projects iterate")
}

func scanProject(row scannable) (*model.Project, error) {
	var p model.Project
	var domains string
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.PrimaryDomain, &domains, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(domains), &p.CompetitorDomains); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal competitor domains")
	}
	return &p, nil
}

// ---- Keywords ----

func (s *SQLiteStore) CreateKeyword(ctx context.Context, k *model.Keyword) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO keywords (id, project_id, keyword_text, priority_level, funnel_stage, is_active, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		k.ID, k.ProjectID, k.KeywordText, k.PriorityLevel, string(k.FunnelStage), k.IsActive, k.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: create keyword")
}

func (s *SQLiteStore) GetKeyword(ctx context.Context, id string) (*model.Keyword, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, keyword_text, priority_level, funnel_stage, is_active, last_tracked_at, created_at
		 FROM keywords WHERE id=?`, id)
	k, err := scanKeyword(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "keyword %s", id)
	}
	return k, err
}

func (s *SQLiteStore) UpdateKeyword(ctx context.Context, k *model.Keyword) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE keywords SET keyword_text=?, priority_level=?, funnel_stage=?, is_active=? WHERE id=?`,
		k.KeywordText, k.PriorityLevel, string(k.FunnelStage), k.IsActive, k.ID,
	)
	return eris.Wrap(err, "sqlite: update keyword")
}

func (s *SQLiteStore) DeleteKeyword(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM keywords WHERE id=?`, id)
	return eris.Wrap(err, "sqlite: delete keyword")
}

func (s *SQLiteStore) ListActiveKeywords(ctx context.Context, projectID string) ([]model.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, keyword_text, priority_level, funnel_stage, is_active, last_tracked_at, created_at
		 FROM keywords WHERE project_id=? AND is_active=1`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active keywords")
	}
	defer rows.Close()
	var out []model.Keyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list active keywords iterate")
}

func (s *SQLiteStore) SetKeywordLastTrackedAt(ctx context.Context, keywordID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE keywords SET last_tracked_at=? WHERE id=?`, t, keywordID)
	return eris.Wrap(err, "sqlite: set keyword last tracked at")
}

func scanKeyword(row scannable) (*model.Keyword, error) {
	var k model.Keyword
	var stage string
	if err := row.Scan(&k.ID, &k.ProjectID, &k.KeywordText, &k.PriorityLevel, &stage, &k.IsActive, &k.LastTrackedAt, &k.CreatedAt); err != nil {
		return nil, err
	}
	k.FunnelStage = model.FunnelStage(stage)
	return &k, nil
}

// ---- Citations ----

func (s *SQLiteStore) CreateCitation(ctx context.Context, c *model.Citation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := c.Validate(); err != nil {
		return eris.Wrap(err, "sqlite: invalid citation")
	}
	competitors, err := json.Marshal(c.CompetitorCitations)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal competitor citations")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO citations (id, project_id, keyword_id, platform, tracked_at, domain_mentioned, citation_position,
			citation_context, full_response_text, response_summary, sentiment, confidence_score, word_count,
			competitor_citations, total_sources_cited)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, c.KeywordID, string(c.Platform), c.TrackedAt, c.DomainMentioned, c.CitationPosition,
		c.CitationContext, c.FullResponseText, c.ResponseSummary, string(c.Sentiment), c.ConfidenceScore, c.WordCount,
		string(competitors), c.TotalSourcesCited,
	)
	return eris.Wrap(err, "sqlite: create citation")
}

// BackfillCitations upserts rows one at a time inside a single
// transaction. SQLite has no COPY-protocol equivalent, so unlike the
// Postgres implementation this doesn't batch through internal/db; the
// transaction still avoids one fsync per row.
func (s *SQLiteStore) BackfillCitations(ctx context.Context, citations []model.Citation) (int64, error) {
	if len(citations) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: backfill: begin tx")
	}
	defer tx.Rollback()

	var n int64
	for i, c := range citations {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if err := c.Validate(); err != nil {
			return n, eris.Wrapf(err, "sqlite: backfill: invalid citation at index %d", i)
		}
		competitors, err := json.Marshal(c.CompetitorCitations)
		if err != nil {
			return n, eris.Wrap(err, "sqlite: backfill: marshal competitor citations")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO citations (id, project_id, keyword_id, platform, tracked_at, domain_mentioned, citation_position,
				citation_context, full_response_text, response_summary, sentiment, confidence_score, word_count,
				competitor_citations, total_sources_cited)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET
				project_id=excluded.project_id, keyword_id=excluded.keyword_id, platform=excluded.platform,
				tracked_at=excluded.tracked_at, domain_mentioned=excluded.domain_mentioned,
				citation_position=excluded.citation_position, citation_context=excluded.citation_context,
				full_response_text=excluded.full_response_text, response_summary=excluded.response_summary,
				sentiment=excluded.sentiment, confidence_score=excluded.confidence_score, word_count=excluded.word_count,
				competitor_citations=excluded.competitor_citations, total_sources_cited=excluded.total_sources_cited`,
			c.ID, c.ProjectID, c.KeywordID, string(c.Platform), c.TrackedAt, c.DomainMentioned, c.CitationPosition,
			c.CitationContext, c.FullResponseText, c.ResponseSummary, string(c.Sentiment), c.ConfidenceScore, c.WordCount,
			string(competitors), c.TotalSourcesCited,
		)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: backfill: upsert citation %s", c.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return n, eris.Wrap(err, "sqlite: backfill: commit tx")
	}
	return n, nil
}

func (s *SQLiteStore) LatestCitation(ctx context.Context, keywordID string, platform model.Provider, before time.Time) (*model.Citation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, keyword_id, platform, tracked_at, domain_mentioned, citation_position,
			citation_context, full_response_text, response_summary, sentiment, confidence_score, word_count,
			competitor_citations, total_sources_cited
		 FROM citations
		 WHERE keyword_id=? AND platform=? AND tracked_at < ?
		 ORDER BY tracked_at DESC LIMIT 1`, keywordID, string(platform), before)
	c, err := scanCitationSQLite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) ListCitationsInWindow(ctx context.Context, w CitationWindow) ([]model.Citation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, keyword_id, platform, tracked_at, domain_mentioned, citation_position,
			citation_context, full_response_text, response_summary, sentiment, confidence_score, word_count,
			competitor_citations, total_sources_cited
		 FROM citations
		 WHERE project_id=? AND tracked_at >= ? AND tracked_at <= ?
		 ORDER BY tracked_at ASC`, w.ProjectID, w.From, w.To)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list citations in window")
	}
	defer rows.Close()
	var out []model.Citation
	for rows.Next() {
		c, err := scanCitationSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list citations iterate")
}

func (s *SQLiteStore) DeleteCitationsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM citations WHERE tracked_at < ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old citations")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func scanCitationSQLite(row scannable) (*model.Citation, error) {
	var c model.Citation
	var platform, sentiment, competitors string
	if err := row.Scan(&c.ID, &c.ProjectID, &c.KeywordID, &platform, &c.TrackedAt, &c.DomainMentioned,
		&c.CitationPosition, &c.CitationContext, &c.FullResponseText, &c.ResponseSummary, &sentiment,
		&c.ConfidenceScore, &c.WordCount, &competitors, &c.TotalSourcesCited); err != nil {
		return nil, err
	}
	c.Platform = model.Provider(platform)
	c.Sentiment = model.Sentiment(sentiment)
	if competitors != "" {
		if err := json.Unmarshal([]byte(competitors), &c.CompetitorCitations); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal competitor citations")
		}
	}
	return &c, nil
}

// ---- Tracking jobs ----

func (s *SQLiteStore) EnqueueJob(ctx context.Context, j *model.TrackingJob) (*model.TrackingJob, bool, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = model.JobPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracking_jobs (id, project_id, keyword_id, platform, status, scheduled_at, retry_count)
		 VALUES (?,?,?,?,?,?,0)`,
		j.ID, j.ProjectID, j.KeywordID, string(j.Platform), string(j.Status), j.ScheduledAt,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			existing, getErr := s.findNonTerminalJob(ctx, j.ProjectID, j.KeywordID, j.Platform, j.ScheduledAt)
			if getErr != nil {
				return nil, false, eris.Wrap(getErr, "sqlite: find existing job after conflict")
			}
			return existing, false, nil
		}
		return nil, false, eris.Wrap(err, "sqlite: enqueue job")
	}
	return j, true, nil
}

func (s *SQLiteStore) findNonTerminalJob(ctx context.Context, projectID, keywordID string, platform model.Provider, scheduledAt time.Time) (*model.TrackingJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, keyword_id, platform, status, scheduled_at, started_at, completed_at,
			retry_count, error_message, result_data, citation_found
		 FROM tracking_jobs
		 WHERE project_id=? AND keyword_id=? AND platform=? AND scheduled_at=?
		   AND status IN ('pending','processing','retrying')`,
		projectID, keywordID, string(platform), scheduledAt)
	return scanJobSQLite(row)
}

func (s *SQLiteStore) ClaimJob(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracking_jobs SET status='processing', started_at=?
		 WHERE id=? AND status IN ('pending','retrying')`, startedAt, jobID)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: claim job")
	}
	n, err := res.RowsAffected()
	return n == 1, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.TrackingJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, keyword_id, platform, status, scheduled_at, started_at, completed_at,
			retry_count, error_message, result_data, citation_found
		 FROM tracking_jobs WHERE id=?`, jobID)
	j, err := scanJobSQLite(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return j, err
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, j *model.TrackingJob) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracking_jobs SET status=?, started_at=?, completed_at=?, retry_count=?,
			error_message=?, result_data=?, citation_found=? WHERE id=?`,
		string(j.Status), j.StartedAt, j.CompletedAt, j.RetryCount, j.ErrorMessage, j.ResultData, j.CitationFound, j.ID,
	)
	return eris.Wrap(err, "sqlite: update job")
}

func (s *SQLiteStore) CountJobsSince(ctx context.Context, projectID string, since time.Time) ([]JobCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, status, COUNT(*) FROM tracking_jobs
		 WHERE project_id=? AND scheduled_at >= ?
		 GROUP BY platform, status`, projectID, since)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count jobs since")
	}
	defer rows.Close()
	var out []JobCount
	for rows.Next() {
		var jc JobCount
		var platform, status string
		if err := rows.Scan(&platform, &status, &jc.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job count")
		}
		jc.Platform = model.Provider(platform)
		jc.Status = model.JobStatus(status)
		out = append(out, jc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: count jobs iterate")
}

func (s *SQLiteStore) ReapStaleProcessingJobs(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracking_jobs SET status='retrying' WHERE status='processing' AND started_at < ?`, olderThan)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reap stale jobs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracking_jobs WHERE scheduled_at < ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old jobs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func scanJobSQLite(row scannable) (*model.TrackingJob, error) {
	var j model.TrackingJob
	var platform, status string
	if err := row.Scan(&j.ID, &j.ProjectID, &j.KeywordID, &platform, &status, &j.ScheduledAt,
		&j.StartedAt, &j.CompletedAt, &j.RetryCount, &j.ErrorMessage, &j.ResultData, &j.CitationFound); err != nil {
		return nil, err
	}
	j.Platform = model.Provider(platform)
	j.Status = model.JobStatus(status)
	return &j, nil
}

// isSQLiteUniqueViolation matches the message modernc.org/sqlite surfaces
// for a UNIQUE constraint failure; the driver does not expose a typed error.
func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---- Daily metrics ----

func (s *SQLiteStore) UpsertDailyMetric(ctx context.Context, m *model.DailyMetric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_metrics (project_id, date, platform, total_queries, mentions, avg_position,
			positive_sentiment, neutral_sentiment, negative_sentiment, total_sources_cited)
		 VALUES (?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT (project_id, date, platform) DO UPDATE SET
			total_queries=excluded.total_queries, mentions=excluded.mentions, avg_position=excluded.avg_position,
			positive_sentiment=excluded.positive_sentiment, neutral_sentiment=excluded.neutral_sentiment,
			negative_sentiment=excluded.negative_sentiment, total_sources_cited=excluded.total_sources_cited`,
		m.ProjectID, m.Date, string(m.Platform), m.TotalQueries, m.Mentions, m.AvgPosition,
		m.PositiveSentiment, m.NeutralSentiment, m.NegativeSentiment, m.TotalSourcesCited,
	)
	return eris.Wrap(err, "sqlite: upsert daily metric")
}

func (s *SQLiteStore) ListDailyMetrics(ctx context.Context, projectID string, from, to time.Time, platform model.Provider) ([]model.DailyMetric, error) {
	query := `SELECT project_id, date, platform, total_queries, mentions, avg_position,
			positive_sentiment, neutral_sentiment, negative_sentiment, total_sources_cited
		 FROM daily_metrics WHERE project_id=? AND date >= ? AND date <= ?`
	args := []any{projectID, from, to}
	if platform != "" {
		query += ` AND platform=?`
		args = append(args, string(platform))
	}
	query += ` ORDER BY date ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list daily metrics")
	}
	defer rows.Close()
	var out []model.DailyMetric
	for rows.Next() {
		var m model.DailyMetric
		var platformStr string
		if err := rows.Scan(&m.ProjectID, &m.Date, &platformStr, &m.TotalQueries, &m.Mentions, &m.AvgPosition,
			&m.PositiveSentiment, &m.NeutralSentiment, &m.NegativeSentiment, &m.TotalSourcesCited); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily metric")
		}
		m.Platform = model.Provider(platformStr)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list daily metrics iterate")
}

// ---- Visibility scores ----

func (s *SQLiteStore) InsertVisibilityScore(ctx context.Context, sc *model.VisibilityScore) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visibility_scores (project_id, calculated_at, frequency, position, diversity, context,
			momentum, overall, grade, delta_7d, delta_30d)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		sc.ProjectID, sc.CalculatedAt, sc.Components.Frequency, sc.Components.Position, sc.Components.Diversity,
		sc.Components.Context, sc.Components.Momentum, sc.Overall, string(sc.GradeLetter), sc.Delta7d, sc.Delta30d,
	)
	return eris.Wrap(err, "sqlite: insert visibility score")
}

func (s *SQLiteStore) LatestVisibilityScore(ctx context.Context, projectID string) (*model.VisibilityScore, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT project_id, calculated_at, frequency, position, diversity, context, momentum, overall, grade, delta_7d, delta_30d
		 FROM visibility_scores WHERE project_id=? ORDER BY calculated_at DESC LIMIT 1`, projectID)
	sc, err := scanScoreSQLite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sc, err
}

func (s *SQLiteStore) ScoreHistory(ctx context.Context, projectID string, since time.Time) ([]model.VisibilityScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, calculated_at, frequency, position, diversity, context, momentum, overall, grade, delta_7d, delta_30d
		 FROM visibility_scores WHERE project_id=? AND calculated_at >= ? ORDER BY calculated_at ASC`, projectID, since)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: score history")
	}
	defer rows.Close()
	var out []model.VisibilityScore
	for rows.Next() {
		sc, err := scanScoreSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: score history iterate")
}

func scanScoreSQLite(row scannable) (*model.VisibilityScore, error) {
	var sc model.VisibilityScore
	var grade string
	if err := row.Scan(&sc.ProjectID, &sc.CalculatedAt, &sc.Components.Frequency, &sc.Components.Position,
		&sc.Components.Diversity, &sc.Components.Context, &sc.Components.Momentum, &sc.Overall, &grade,
		&sc.Delta7d, &sc.Delta30d); err != nil {
		return nil, err
	}
	sc.GradeLetter = model.Grade(grade)
	return &sc, nil
}

// ---- Alerts ----

func (s *SQLiteStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, project_id, organization_id, alert_type, severity, title, description,
			keyword_id, platform, previous_value, current_value, change_percent, is_read, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, a.OrganizationID, string(a.AlertType), string(a.Severity), a.Title, a.Description,
		a.KeywordID, string(a.Platform), a.PreviousValue, a.CurrentValue, a.ChangePercent, a.IsRead, a.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: create alert")
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, project_id, organization_id, alert_type, severity, title, description,
			keyword_id, platform, previous_value, current_value, change_percent, is_read, created_at
		 FROM alerts WHERE project_id=?`
	args := []any{f.ProjectID}
	if f.IsRead != nil {
		query += ` AND is_read=?`
		args = append(args, *f.IsRead)
	}
	if f.AlertType != "" {
		query += ` AND alert_type=?`
		args = append(args, string(f.AlertType))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close()
	var out []model.Alert
	for rows.Next() {
		a, err := scanAlertSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}

func (s *SQLiteStore) UnreadAlertCount(ctx context.Context, projectID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE project_id=? AND is_read=0`, projectID)
	var n int
	err := row.Scan(&n)
	return n, eris.Wrap(err, "sqlite: unread alert count")
}

func (s *SQLiteStore) MarkAlertRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE alerts SET is_read=1 WHERE id=?`, id)
	return eris.Wrap(err, "sqlite: mark alert read")
}

func (s *SQLiteStore) MarkAllAlertsRead(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE alerts SET is_read=1 WHERE project_id=?`, projectID)
	return eris.Wrap(err, "sqlite: mark all alerts read")
}

func (s *SQLiteStore) DeleteAlert(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id=?`, id)
	return eris.Wrap(err, "sqlite: delete alert")
}

func (s *SQLiteStore) DeleteAlertsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old alerts")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) InsertDLQEntry(ctx context.Context, e *resilience.DLQEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	jobJSON, err := json.Marshal(e.Job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq job")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_jobs (id, job_json, error, error_type, failed_phase, retry_count, max_retries,
			next_retry_at, created_at, last_failed_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, string(jobJSON), e.Error, e.ErrorType, e.FailedPhase, e.RetryCount, e.MaxRetries,
		e.NextRetryAt, e.CreatedAt, e.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: insert dlq entry")
}

func (s *SQLiteStore) ListDLQEntries(ctx context.Context, f resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, job_json, error, error_type, failed_phase, retry_count, max_retries,
			next_retry_at, created_at, last_failed_at
		 FROM dead_letter_jobs`
	var args []any
	if f.ErrorType != "" {
		query += ` WHERE error_type=?`
		args = append(args, f.ErrorType)
	}
	query += ` ORDER BY last_failed_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq entries")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var jobJSON string
		var nextRetryAt sql.NullTime
		if err := rows.Scan(&e.ID, &jobJSON, &e.Error, &e.ErrorType, &e.FailedPhase, &e.RetryCount, &e.MaxRetries,
			&nextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if nextRetryAt.Valid {
			e.NextRetryAt = nextRetryAt.Time
		}
		if err := json.Unmarshal([]byte(jobJSON), &e.Job); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq job")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list dlq entries iterate")
}

// UpsertProviderCredential persists a sealed (AES-GCM encrypted)
// provider API key, so the value on disk is never the plaintext key —
// only internal/crypto.Sealer.Open (given the master key) can recover it.
func (s *SQLiteStore) UpsertProviderCredential(ctx context.Context, c *model.ProviderCredential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_credentials (provider, encrypted_key, nonce, rate_per_minute, updated_at)
		 VALUES (?,?,?,?,?)
		 ON CONFLICT(provider) DO UPDATE SET
			encrypted_key=excluded.encrypted_key,
			nonce=excluded.nonce,
			rate_per_minute=excluded.rate_per_minute,
			updated_at=excluded.updated_at`,
		string(c.Provider), c.EncryptedKey, c.Nonce, c.RatePerMinute, time.Now(),
	)
	return eris.Wrap(err, "sqlite: upsert provider credential")
}

func (s *SQLiteStore) ListProviderCredentials(ctx context.Context) ([]model.ProviderCredential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, encrypted_key, nonce, rate_per_minute, updated_at FROM provider_credentials`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list provider credentials")
	}
	defer rows.Close()

	var out []model.ProviderCredential
	for rows.Next() {
		var c model.ProviderCredential
		var provider string
		if err := rows.Scan(&provider, &c.EncryptedKey, &c.Nonce, &c.RatePerMinute, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider credential")
		}
		c.Provider = model.Provider(provider)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list provider credentials iterate")
}

func scanAlertSQLite(row scannable) (*model.Alert, error) {
	var a model.Alert
	var alertType, severity, platform string
	if err := row.Scan(&a.ID, &a.ProjectID, &a.OrganizationID, &alertType, &severity, &a.Title, &a.Description,
		&a.KeywordID, &platform, &a.PreviousValue, &a.CurrentValue, &a.ChangePercent, &a.IsRead, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.AlertType = model.AlertType(alertType)
	a.Severity = model.AlertSeverity(severity)
	a.Platform = model.Provider(platform)
	return &a, nil
}
