package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/citewatch/tracker/internal/db"
	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/resilience"
)

// ErrNotFound is returned when a lookup by ID matches no row.
var ErrNotFound = eris.New("store: not found")

// postgresUniqueViolation is Postgres's SQLSTATE for a unique constraint
// violation, used to detect EnqueueJob's dedupe race.
const postgresUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolation
	}
	return false
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	raw  *pgxpool.Pool // nil when constructed over a mock pool in tests
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, cfg PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, raw: pool}, nil
}

// NewPostgresWithPool wraps an already-constructed pool (real or mock),
// used by tests to exercise query logic against pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() error {
	if s.raw != nil {
		s.raw.Close()
	}
	return nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS projects (
	id                 TEXT PRIMARY KEY,
	organization_id    TEXT NOT NULL,
	primary_domain     TEXT NOT NULL,
	competitor_domains JSONB NOT NULL DEFAULT '[]',
	is_active          BOOLEAN NOT NULL DEFAULT true,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS keywords (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL REFERENCES projects(id),
	keyword_text    TEXT NOT NULL,
	priority_level  INT NOT NULL DEFAULT 3,
	funnel_stage    TEXT NOT NULL DEFAULT 'awareness',
	is_active       BOOLEAN NOT NULL DEFAULT true,
	last_tracked_at TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, keyword_text)
);

CREATE TABLE IF NOT EXISTS citations (
	id                   TEXT PRIMARY KEY,
	project_id           TEXT NOT NULL,
	keyword_id           TEXT NOT NULL REFERENCES keywords(id),
	platform             TEXT NOT NULL,
	tracked_at           TIMESTAMPTZ NOT NULL,
	domain_mentioned     BOOLEAN NOT NULL,
	citation_position    INT,
	citation_context     TEXT,
	full_response_text   TEXT NOT NULL,
	response_summary     TEXT NOT NULL,
	sentiment            TEXT NOT NULL,
	confidence_score     DOUBLE PRECISION NOT NULL,
	word_count           INT NOT NULL,
	competitor_citations JSONB NOT NULL DEFAULT '[]',
	total_sources_cited  INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_citations_kw_platform_tracked ON citations(keyword_id, platform, tracked_at DESC);
CREATE INDEX IF NOT EXISTS idx_citations_project_tracked ON citations(project_id, tracked_at);

CREATE TABLE IF NOT EXISTS tracking_jobs (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL,
	keyword_id     TEXT NOT NULL,
	platform       TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	scheduled_at   TIMESTAMPTZ NOT NULL,
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ,
	retry_count    INT NOT NULL DEFAULT 0,
	error_message  TEXT NOT NULL DEFAULT '',
	result_data    JSONB,
	citation_found BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_scheduled ON tracking_jobs(status, scheduled_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_dedupe_nonterminal
	ON tracking_jobs(project_id, keyword_id, platform, scheduled_at)
	WHERE status IN ('pending', 'processing', 'retrying');

CREATE TABLE IF NOT EXISTS daily_metrics (
	project_id          TEXT NOT NULL,
	date                DATE NOT NULL,
	platform            TEXT NOT NULL,
	total_queries       INT NOT NULL DEFAULT 0,
	mentions            INT NOT NULL DEFAULT 0,
	avg_position        DOUBLE PRECISION NOT NULL DEFAULT 0,
	positive_sentiment  INT NOT NULL DEFAULT 0,
	neutral_sentiment   INT NOT NULL DEFAULT 0,
	negative_sentiment  INT NOT NULL DEFAULT 0,
	total_sources_cited INT NOT NULL DEFAULT 0,
	PRIMARY KEY (project_id, date, platform)
);

CREATE TABLE IF NOT EXISTS visibility_scores (
	project_id    TEXT NOT NULL,
	calculated_at TIMESTAMPTZ NOT NULL,
	frequency     DOUBLE PRECISION NOT NULL,
	position      DOUBLE PRECISION NOT NULL,
	diversity     DOUBLE PRECISION NOT NULL,
	context       DOUBLE PRECISION NOT NULL,
	momentum      DOUBLE PRECISION NOT NULL,
	overall       DOUBLE PRECISION NOT NULL,
	grade         TEXT NOT NULL,
	delta_7d      DOUBLE PRECISION,
	delta_30d     DOUBLE PRECISION,
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
	keyword_id      TEXT,
	platform        TEXT,
	previous_value  TEXT,
	current_value   TEXT,
	change_percent  DOUBLE PRECISION,
	is_read         BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_alerts_org_unread ON alerts(organization_id, is_read) WHERE is_read = false;

CREATE TABLE IF NOT EXISTS dead_letter_jobs (
	id             TEXT PRIMARY KEY,
	job_json       JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	failed_phase   TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 0,
	next_retry_at  TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_jobs(error_type);

CREATE TABLE IF NOT EXISTS provider_credentials (
	provider        TEXT PRIMARY KEY,
	encrypted_key   BYTEA NOT NULL,
	nonce           BYTEA NOT NULL,
	rate_per_minute INTEGER NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	if err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// ---- Projects ----

func (s *PostgresStore) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	domains, err := json.Marshal(p.CompetitorDomains)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal competitor domains")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, organization_id, primary_domain, competitor_domains, is_active, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$6)`,
		p.ID, p.OrganizationID, p.PrimaryDomain, domains, p.IsActive, p.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: create project")
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, primary_domain, competitor_domains, is_active, created_at, updated_at
		 FROM projects WHERE id=$1`, id)
	var p model.Project
	var domains []byte
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.PrimaryDomain, &domains, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "project %s", id)
		}
		return nil, eris.Wrap(err, "postgres: get project")
	}
	if err := json.Unmarshal(domains, &p.CompetitorDomains); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal competitor domains")
	}
	return &p, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, p *model.Project) error {
	domains, err := json.Marshal(p.CompetitorDomains)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal competitor domains")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE projects SET primary_domain=$1, competitor_domains=$2, is_active=$3, updated_at=$4 WHERE id=$5`,
		p.PrimaryDomain, domains, p.IsActive, time.Now(), p.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update project")
	}
	return nil
}

func (s *PostgresStore) ArchiveProject(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE projects SET is_active=false, updated_at=$1 WHERE id=$2`, time.Now(), id)
	if err != nil {
		return eris.Wrap(err, "postgres: archive project")
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id=$1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: delete project")
	}
	return nil
}

func (s *PostgresStore) ListActiveProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, primary_domain, competitor_domains, is_active, created_at, updated_at
		 FROM projects WHERE is_active=true`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active projects")
	}
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		var p model.Project
		var domains []byte
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.PrimaryDomain, &domains, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project")
		}
		_ = json.Unmarshal(domains, &p.CompetitorDomains)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- Keywords ----

func (s *PostgresStore) CreateKeyword(ctx context.Context, k *model.Keyword) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO keywords (id, project_id, keyword_text, priority_level, funnel_stage, is_active, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		k.ID, k.ProjectID, k.KeywordText, k.PriorityLevel, k.FunnelStage, k.IsActive, k.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: create keyword")
	}
	return nil
}

func (s *PostgresStore) GetKeyword(ctx context.Context, id string) (*model.Keyword, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, keyword_text, priority_level, funnel_stage, is_active, last_tracked_at, created_at
		 FROM keywords WHERE id=$1`, id)
	var k model.Keyword
	if err := row.Scan(&k.ID, &k.ProjectID, &k.KeywordText, &k.PriorityLevel, &k.FunnelStage, &k.IsActive, &k.LastTrackedAt, &k.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "keyword %s", id)
		}
		return nil, eris.Wrap(err, "postgres: get keyword")
	}
	return &k, nil
}

func (s *PostgresStore) UpdateKeyword(ctx context.Context, k *model.Keyword) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE keywords SET keyword_text=$1, priority_level=$2, funnel_stage=$3, is_active=$4 WHERE id=$5`,
		k.KeywordText, k.PriorityLevel, k.FunnelStage, k.IsActive, k.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update keyword")
	}
	return nil
}

func (s *PostgresStore) DeleteKeyword(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM keywords WHERE id=$1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: delete keyword")
	}
	return nil
}

func (s *PostgresStore) ListActiveKeywords(ctx context.Context, projectID string) ([]model.Keyword, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, keyword_text, priority_level, funnel_stage, is_active, last_tracked_at, created_at
		 FROM keywords WHERE project_id=$1 AND is_active=true`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active keywords")
	}
	defer rows.Close()
	var out []model.Keyword
	for rows.Next() {
		var k model.Keyword
		if err := rows.Scan(&k.ID, &k.ProjectID, &k.KeywordText, &k.PriorityLevel, &k.FunnelStage, &k.IsActive, &k.LastTrackedAt, &k.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan keyword")
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetKeywordLastTrackedAt(ctx context.Context, keywordID string, t time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE keywords SET last_tracked_at=$1 WHERE id=$2`, t, keywordID)
	if err != nil {
		return eris.Wrap(err, "postgres: set keyword last tracked at")
	}
	return nil
}

// ---- Citations ----

func (s *PostgresStore) CreateCitation(ctx context.Context, c *model.Citation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := c.Validate(); err != nil {
		return eris.Wrap(err, "postgres: invalid citation")
	}
	competitors, err := json.Marshal(c.CompetitorCitations)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal competitor citations")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO citations (id, project_id, keyword_id, platform, tracked_at, domain_mentioned, citation_position,
			citation_context, full_response_text, response_summary, sentiment, confidence_score, word_count,
			competitor_citations, total_sources_cited)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.ProjectID, c.KeywordID, c.Platform, c.TrackedAt, c.DomainMentioned, c.CitationPosition,
		c.CitationContext, c.FullResponseText, c.ResponseSummary, c.Sentiment, c.ConfidenceScore, c.WordCount,
		competitors, c.TotalSourcesCited,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: create citation")
	}
	return nil
}

// BackfillCitations bulk-loads historical citations via a temp-table
// upsert (internal/db.BulkUpsert): a COPY into a temp table followed by
// INSERT ... ON CONFLICT, rather than one round trip per row. Used by
// `tracker backfill` to import an export from a prior tracker instance
// or a one-off historical dataset without re-querying every provider.
// Rows with an ID already present are updated in place, so backfill runs
// are idempotent to re-running against overlapping exports.
func (s *PostgresStore) BackfillCitations(ctx context.Context, citations []model.Citation) (int64, error) {
	if len(citations) == 0 {
		return 0, nil
	}

	columns := []string{
		"id", "project_id", "keyword_id", "platform", "tracked_at", "domain_mentioned",
		"citation_position", "citation_context", "full_response_text", "response_summary",
		"sentiment", "confidence_score", "word_count", "competitor_citations", "total_sources_cited",
	}

	rows := make([][]any, len(citations))
	for i, c := range citations {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if err := c.Validate(); err != nil {
			return 0, eris.Wrapf(err, "postgres: backfill: invalid citation at index %d", i)
		}
		competitors, err := json.Marshal(c.CompetitorCitations)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: backfill: marshal competitor citations")
		}
		rows[i] = []any{
			c.ID, c.ProjectID, c.KeywordID, c.Platform, c.TrackedAt, c.DomainMentioned,
			c.CitationPosition, c.CitationContext, c.FullResponseText, c.ResponseSummary,
			c.Sentiment, c.ConfidenceScore, c.WordCount, competitors, c.TotalSourcesCited,
		}
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "citations",
		Columns:      columns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: backfill citations")
	}
	return n, nil
}

func (s *PostgresStore) LatestCitation(ctx context.Context, keywordID string, platform model.Provider, before time.Time) (*model.Citation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, keyword_id, platform, tracked_at, domain_mentioned, citation_position,
			citation_context, full_response_text, response_summary, sentiment, confidence_score, word_count,
			competitor_citations, total_sources_cited
		 FROM citations
		 WHERE keyword_id=$1 AND platform=$2 AND tracked_at < $3
		 ORDER BY tracked_at DESC LIMIT 1`, keywordID, platform, before)
	c, err := scanCitation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest citation")
	}
	return c, nil
}

func (s *PostgresStore) ListCitationsInWindow(ctx context.Context, w CitationWindow) ([]model.Citation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, keyword_id, platform, tracked_at, domain_mentioned, citation_position,
			citation_context, full_response_text, response_summary, sentiment, confidence_score, word_count,
			competitor_citations, total_sources_cited
		 FROM citations
		 WHERE project_id=$1 AND tracked_at >= $2 AND tracked_at <= $3
		 ORDER BY tracked_at ASC`, w.ProjectID, w.From, w.To)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list citations in window")
	}
	defer rows.Close()
	var out []model.Citation
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan citation")
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteCitationsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM citations WHERE tracked_at < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete old citations")
	}
	return int(tag.RowsAffected()), nil
}

// rowScanner abstracts pgx.Row and pgx.Rows, which share Scan's signature.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCitation(row rowScanner) (*model.Citation, error) {
	var c model.Citation
	var competitors []byte
	if err := row.Scan(&c.ID, &c.ProjectID, &c.KeywordID, &c.Platform, &c.TrackedAt, &c.DomainMentioned,
		&c.CitationPosition, &c.CitationContext, &c.FullResponseText, &c.ResponseSummary, &c.Sentiment,
		&c.ConfidenceScore, &c.WordCount, &competitors, &c.TotalSourcesCited); err != nil {
		return nil, err
	}
	if len(competitors) > 0 {
		if err := json.Unmarshal(competitors, &c.CompetitorCitations); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// ---- Tracking jobs ----

func (s *PostgresStore) EnqueueJob(ctx context.Context, j *model.TrackingJob) (*model.TrackingJob, bool, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = model.JobPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracking_jobs (id, project_id, keyword_id, platform, status, scheduled_at, retry_count)
		 VALUES ($1,$2,$3,$4,$5,$6,0)`,
		j.ID, j.ProjectID, j.KeywordID, j.Platform, j.Status, j.ScheduledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.findNonTerminalJob(ctx, j.ProjectID, j.KeywordID, j.Platform, j.ScheduledAt)
			if getErr != nil {
				return nil, false, eris.Wrap(getErr, "postgres: find existing job after conflict")
			}
			return existing, false, nil
		}
		return nil, false, eris.Wrap(err, "postgres: enqueue job")
	}
	return j, true, nil
}

func (s *PostgresStore) findNonTerminalJob(ctx context.Context, projectID, keywordID string, platform model.Provider, scheduledAt time.Time) (*model.TrackingJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, keyword_id, platform, status, scheduled_at, started_at, completed_at,
			retry_count, error_message, result_data, citation_found
		 FROM tracking_jobs
		 WHERE project_id=$1 AND keyword_id=$2 AND platform=$3 AND scheduled_at=$4
		   AND status IN ('pending','processing','retrying')`,
		projectID, keywordID, platform, scheduledAt)
	return scanJob(row)
}

func (s *PostgresStore) ClaimJob(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracking_jobs SET status='processing', started_at=$1
		 WHERE id=$2 AND status IN ('pending','retrying')`, startedAt, jobID)
	if err != nil {
		return false, eris.Wrap(err, "postgres: claim job")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.TrackingJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, keyword_id, platform, status, scheduled_at, started_at, completed_at,
			retry_count, error_message, result_data, citation_found
		 FROM tracking_jobs WHERE id=$1`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "job %s", jobID)
		}
		return nil, eris.Wrap(err, "postgres: get job")
	}
	return j, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, j *model.TrackingJob) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tracking_jobs SET status=$1, started_at=$2, completed_at=$3, retry_count=$4,
			error_message=$5, result_data=$6, citation_found=$7 WHERE id=$8`,
		j.Status, j.StartedAt, j.CompletedAt, j.RetryCount, j.ErrorMessage, j.ResultData, j.CitationFound, j.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update job")
	}
	return nil
}

func (s *PostgresStore) CountJobsSince(ctx context.Context, projectID string, since time.Time) ([]JobCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT platform, status, COUNT(*) FROM tracking_jobs
		 WHERE project_id=$1 AND scheduled_at >= $2
		 GROUP BY platform, status`, projectID, since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count jobs since")
	}
	defer rows.Close()
	var out []JobCount
	for rows.Next() {
		var jc JobCount
		if err := rows.Scan(&jc.Platform, &jc.Status, &jc.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job count")
		}
		out = append(out, jc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReapStaleProcessingJobs(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracking_jobs SET status='retrying' WHERE status='processing' AND started_at < $1`, olderThan)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reap stale jobs")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tracking_jobs WHERE scheduled_at < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete old jobs")
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row rowScanner) (*model.TrackingJob, error) {
	var j model.TrackingJob
	if err := row.Scan(&j.ID, &j.ProjectID, &j.KeywordID, &j.Platform, &j.Status, &j.ScheduledAt,
		&j.StartedAt, &j.CompletedAt, &j.RetryCount, &j.ErrorMessage, &j.ResultData, &j.CitationFound); err != nil {
		return nil, err
	}
	return &j, nil
}

// ---- Daily metrics ----

func (s *PostgresStore) UpsertDailyMetric(ctx context.Context, m *model.DailyMetric) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO daily_metrics (project_id, date, platform, total_queries, mentions, avg_position,
			positive_sentiment, neutral_sentiment, negative_sentiment, total_sources_cited)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (project_id, date, platform) DO UPDATE SET
			total_queries=EXCLUDED.total_queries, mentions=EXCLUDED.mentions, avg_position=EXCLUDED.avg_position,
			positive_sentiment=EXCLUDED.positive_sentiment, neutral_sentiment=EXCLUDED.neutral_sentiment,
			negative_sentiment=EXCLUDED.negative_sentiment, total_sources_cited=EXCLUDED.total_sources_cited`,
		m.ProjectID, m.Date, m.Platform, m.TotalQueries, m.Mentions, m.AvgPosition,
		m.PositiveSentiment, m.NeutralSentiment, m.NegativeSentiment, m.TotalSourcesCited,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert daily metric")
	}
	return nil
}

func (s *PostgresStore) ListDailyMetrics(ctx context.Context, projectID string, from, to time.Time, platform model.Provider) ([]model.DailyMetric, error) {
	query := `SELECT project_id, date, platform, total_queries, mentions, avg_position,
			positive_sentiment, neutral_sentiment, negative_sentiment, total_sources_cited
		 FROM daily_metrics WHERE project_id=$1 AND date >= $2 AND date <= $3`
	args := []any{projectID, from, to}
	if platform != "" {
		query += ` AND platform=$4`
		args = append(args, platform)
	}
	query += ` ORDER BY date ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list daily metrics")
	}
	defer rows.Close()
	var out []model.DailyMetric
	for rows.Next() {
		var m model.DailyMetric
		if err := rows.Scan(&m.ProjectID, &m.Date, &m.Platform, &m.TotalQueries, &m.Mentions, &m.AvgPosition,
			&m.PositiveSentiment, &m.NeutralSentiment, &m.NegativeSentiment, &m.TotalSourcesCited); err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily metric")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---- Visibility scores ----

func (s *PostgresStore) InsertVisibilityScore(ctx context.Context, sc *model.VisibilityScore) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO visibility_scores (project_id, calculated_at, frequency, position, diversity, context,
			momentum, overall, grade, delta_7d, delta_30d)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		sc.ProjectID, sc.CalculatedAt, sc.Components.Frequency, sc.Components.Position, sc.Components.Diversity,
		sc.Components.Context, sc.Components.Momentum, sc.Overall, sc.GradeLetter, sc.Delta7d, sc.Delta30d,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert visibility score")
	}
	return nil
}

func (s *PostgresStore) LatestVisibilityScore(ctx context.Context, projectID string) (*model.VisibilityScore, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT project_id, calculated_at, frequency, position, diversity, context, momentum, overall, grade, delta_7d, delta_30d
		 FROM visibility_scores WHERE project_id=$1 ORDER BY calculated_at DESC LIMIT 1`, projectID)
	sc, err := scanScore(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest visibility score")
	}
	return sc, nil
}

func (s *PostgresStore) ScoreHistory(ctx context.Context, projectID string, since time.Time) ([]model.VisibilityScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT project_id, calculated_at, frequency, position, diversity, context, momentum, overall, grade, delta_7d, delta_30d
		 FROM visibility_scores WHERE project_id=$1 AND calculated_at >= $2 ORDER BY calculated_at ASC`, projectID, since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: score history")
	}
	defer rows.Close()
	var out []model.VisibilityScore
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan visibility score")
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func scanScore(row rowScanner) (*model.VisibilityScore, error) {
	var sc model.VisibilityScore
	if err := row.Scan(&sc.ProjectID, &sc.CalculatedAt, &sc.Components.Frequency, &sc.Components.Position,
		&sc.Components.Diversity, &sc.Components.Context, &sc.Components.Momentum, &sc.Overall, &sc.GradeLetter,
		&sc.Delta7d, &sc.Delta30d); err != nil {
		return nil, err
	}
	return &sc, nil
}

// ---- Alerts ----

func (s *PostgresStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, project_id, organization_id, alert_type, severity, title, description,
			keyword_id, platform, previous_value, current_value, change_percent, is_read, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.ProjectID, a.OrganizationID, a.AlertType, a.Severity, a.Title, a.Description,
		a.KeywordID, a.Platform, a.PreviousValue, a.CurrentValue, a.ChangePercent, a.IsRead, a.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: create alert")
	}
	return nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, project_id, organization_id, alert_type, severity, title, description,
			keyword_id, platform, previous_value, current_value, change_percent, is_read, created_at
		 FROM alerts WHERE project_id=$1`
	args := []any{f.ProjectID}
	if f.IsRead != nil {
		args = append(args, *f.IsRead)
		query += fmt.Sprintf(" AND is_read=$%d", len(args))
	}
	if f.AlertType != "" {
		args = append(args, f.AlertType)
		query += fmt.Sprintf(" AND alert_type=$%d", len(args))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()
	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.OrganizationID, &a.AlertType, &a.Severity, &a.Title, &a.Description,
			&a.KeywordID, &a.Platform, &a.PreviousValue, &a.CurrentValue, &a.ChangePercent, &a.IsRead, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UnreadAlertCount(ctx context.Context, projectID string) (int, error) {
	row := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE project_id=$1 AND is_read=false`, projectID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: unread alert count")
	}
	return n, nil
}

func (s *PostgresStore) MarkAlertRead(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE alerts SET is_read=true WHERE id=$1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: mark alert read")
	}
	return nil
}

func (s *PostgresStore) MarkAllAlertsRead(ctx context.Context, projectID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE alerts SET is_read=true WHERE project_id=$1`, projectID)
	if err != nil {
		return eris.Wrap(err, "postgres: mark all alerts read")
	}
	return nil
}

func (s *PostgresStore) DeleteAlert(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE id=$1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: delete alert")
	}
	return nil
}

func (s *PostgresStore) DeleteAlertsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete old alerts")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) InsertDLQEntry(ctx context.Context, e *resilience.DLQEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	jobJSON, err := json.Marshal(e.Job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq job")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_jobs (id, job_json, error, error_type, failed_phase, retry_count, max_retries,
			next_retry_at, created_at, last_failed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, jobJSON, e.Error, e.ErrorType, e.FailedPhase, e.RetryCount, e.MaxRetries,
		e.NextRetryAt, e.CreatedAt, e.LastFailedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert dlq entry")
	}
	return nil
}

func (s *PostgresStore) ListDLQEntries(ctx context.Context, f resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, job_json, error, error_type, failed_phase, retry_count, max_retries,
			next_retry_at, created_at, last_failed_at
		 FROM dead_letter_jobs`
	var args []any
	if f.ErrorType != "" {
		args = append(args, f.ErrorType)
		query += fmt.Sprintf(" WHERE error_type=$%d", len(args))
	}
	query += ` ORDER BY last_failed_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq entries")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var jobJSON []byte
		var nextRetryAt *time.Time
		if err := rows.Scan(&e.ID, &jobJSON, &e.Error, &e.ErrorType, &e.FailedPhase, &e.RetryCount, &e.MaxRetries,
			&nextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if nextRetryAt != nil {
			e.NextRetryAt = *nextRetryAt
		}
		if err := json.Unmarshal(jobJSON, &e.Job); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq job")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertProviderCredential persists a sealed (AES-GCM encrypted) provider
// API key, so the value on disk is never the plaintext key — only
// internal/crypto.Sealer.Open (given the master key) can recover it.
func (s *PostgresStore) UpsertProviderCredential(ctx context.Context, c *model.ProviderCredential) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_credentials (provider, encrypted_key, nonce, rate_per_minute, updated_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (provider) DO UPDATE SET
			encrypted_key=excluded.encrypted_key,
			nonce=excluded.nonce,
			rate_per_minute=excluded.rate_per_minute,
			updated_at=excluded.updated_at`,
		string(c.Provider), c.EncryptedKey, c.Nonce, c.RatePerMinute, time.Now(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert provider credential")
	}
	return nil
}

func (s *PostgresStore) ListProviderCredentials(ctx context.Context) ([]model.ProviderCredential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, encrypted_key, nonce, rate_per_minute, updated_at FROM provider_credentials`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list provider credentials")
	}
	defer rows.Close()

	var out []model.ProviderCredential
	for rows.Next() {
		var c model.ProviderCredential
		var provider string
		if err := rows.Scan(&provider, &c.EncryptedKey, &c.Nonce, &c.RatePerMinute, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider credential")
		}
		c.Provider = model.Provider(provider)
		out = append(out, c)
	}
	return out, rows.Err()
}
