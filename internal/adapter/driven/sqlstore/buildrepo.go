package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BuildStore = (*BuildRepo)(nil)

// timeLayout is fixed-width so TEXT timestamps in SQLite sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const buildColumns = `id, tool, external_id, repo, branch, status, conclusion, started_at, completed_at,
	duration_seconds, url, logs, created_at, updated_at`

// BuildRepo is the SQL implementation of the BuildStore port.
type BuildRepo struct {
	db  *DB
	now func() time.Time
}

// NewBuildRepo creates a new BuildRepo backed by the given DB.
func NewBuildRepo(db *DB) *BuildRepo {
	return &BuildRepo{db: db, now: time.Now}
}

// Upsert inserts or updates a build in a single statement keyed on
// (tool, external_id). Logs are only overwritten by non-empty incoming logs.
func (r *BuildRepo) Upsert(ctx context.Context, b model.Build) (model.UpsertResult, error) {
	const query = `
		INSERT INTO builds (
			tool, external_id, repo, branch, status, conclusion, started_at, completed_at,
			duration_seconds, url, logs, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tool, external_id) DO UPDATE SET
			repo = excluded.repo,
			branch = excluded.branch,
			status = excluded.status,
			conclusion = excluded.conclusion,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			duration_seconds = excluded.duration_seconds,
			url = excluded.url,
			logs = COALESCE(excluded.logs, builds.logs),
			updated_at = excluded.updated_at
		RETURNING id, conclusion
	`

	duration := b.DurationSeconds
	if duration < 0 {
		duration = 0
	}
	now := r.now().UTC()

	var (
		res        model.UpsertResult
		conclusion sql.NullString
	)
	err := r.db.Writer.QueryRowxContext(ctx, r.db.rebind(query),
		string(b.Tool), b.ExternalID, nullString(b.Repo), nullString(b.Branch),
		string(b.Status), nullString(string(b.Conclusion)),
		r.db.timeArg(b.StartedAt), r.db.timeArg(b.CompletedAt),
		duration, nullString(b.URL), nullString(b.Logs),
		r.db.timeArg(now), r.db.timeArg(now),
	).Scan(&res.ID, &conclusion)
	if err != nil {
		return model.UpsertResult{}, fmt.Errorf("upsert build %s: %w", b.Key(), err)
	}

	res.Conclusion = model.Conclusion(conclusion.String)
	return res, nil
}

// GetByKey retrieves a single build by its dedup key.
// Returns nil, nil if the build does not exist.
func (r *BuildRepo) GetByKey(ctx context.Context, tool model.Tool, externalID string) (*model.Build, error) {
	query := `SELECT ` + buildColumns + ` FROM builds WHERE tool = ? AND external_id = ?`

	var row buildRow
	err := r.db.Reader.GetContext(ctx, &row, r.db.rebind(query), string(tool), externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get build %s/%s: %w", tool, externalID, err)
	}

	b, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListRecent returns up to limit builds, most recently started first.
func (r *BuildRepo) ListRecent(ctx context.Context, limit int) ([]model.Build, error) {
	query := `SELECT ` + buildColumns + ` FROM builds
		ORDER BY started_at DESC NULLS LAST, id DESC
		LIMIT ?`

	var rows []buildRow
	if err := r.db.Reader.SelectContext(ctx, &rows, r.db.rebind(query), limit); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}

	builds := make([]model.Build, 0, len(rows))
	for _, row := range rows {
		b, err := row.toModel()
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}

	return builds, nil
}

// Summary aggregates success/failure counts, the average duration and the
// most recently completed build.
func (r *BuildRepo) Summary(ctx context.Context) (model.BuildSummary, error) {
	const statsQuery = `
		SELECT
			COALESCE(SUM(CASE WHEN conclusion = 'success' THEN 1 ELSE 0 END), 0) AS successes,
			COALESCE(SUM(CASE WHEN conclusion = 'failure' THEN 1 ELSE 0 END), 0) AS failures,
			COALESCE(CAST(AVG(duration_seconds) AS DOUBLE PRECISION), 0) AS avg_duration
		FROM builds
	`

	var stats struct {
		Successes   int64   `db:"successes"`
		Failures    int64   `db:"failures"`
		AvgDuration float64 `db:"avg_duration"`
	}
	if err := r.db.Reader.GetContext(ctx, &stats, statsQuery); err != nil {
		return model.BuildSummary{}, fmt.Errorf("build stats: %w", err)
	}

	summary := model.BuildSummary{
		Successes:          stats.Successes,
		Failures:           stats.Failures,
		AvgDurationSeconds: stats.AvgDuration,
	}

	lastQuery := `SELECT ` + buildColumns + ` FROM builds
		ORDER BY completed_at DESC NULLS LAST, started_at DESC NULLS LAST
		LIMIT 1`

	var row buildRow
	err := r.db.Reader.GetContext(ctx, &row, lastQuery)
	if errors.Is(err, sql.ErrNoRows) {
		return summary, nil
	}
	if err != nil {
		return model.BuildSummary{}, fmt.Errorf("last build: %w", err)
	}

	last, err := row.toModel()
	if err != nil {
		return model.BuildSummary{}, err
	}
	summary.LastBuild = &last

	return summary, nil
}

// Ping reports whether the database is reachable.
func (r *BuildRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// buildRow mirrors the builds table. Timestamps are scanned as strings: SQLite
// stores them as TEXT and database/sql formats Postgres TIMESTAMPTZ values as
// RFC 3339.
type buildRow struct {
	ID              int64          `db:"id"`
	Tool            string         `db:"tool"`
	ExternalID      string         `db:"external_id"`
	Repo            sql.NullString `db:"repo"`
	Branch          sql.NullString `db:"branch"`
	Status          string         `db:"status"`
	Conclusion      sql.NullString `db:"conclusion"`
	StartedAt       sql.NullString `db:"started_at"`
	CompletedAt     sql.NullString `db:"completed_at"`
	DurationSeconds int64          `db:"duration_seconds"`
	URL             sql.NullString `db:"url"`
	Logs            sql.NullString `db:"logs"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
}

func (row buildRow) toModel() (model.Build, error) {
	b := model.Build{
		ID:              row.ID,
		Tool:            model.Tool(row.Tool),
		ExternalID:      row.ExternalID,
		Repo:            row.Repo.String,
		Branch:          row.Branch.String,
		Status:          model.BuildStatus(row.Status),
		Conclusion:      model.Conclusion(row.Conclusion.String),
		DurationSeconds: row.DurationSeconds,
		URL:             row.URL.String,
		Logs:            row.Logs.String,
	}

	var err error
	if b.StartedAt, err = parseNullTime(row.StartedAt); err != nil {
		return model.Build{}, fmt.Errorf("parse started_at: %w", err)
	}
	if b.CompletedAt, err = parseNullTime(row.CompletedAt); err != nil {
		return model.Build{}, fmt.Errorf("parse completed_at: %w", err)
	}
	if b.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return model.Build{}, fmt.Errorf("parse created_at: %w", err)
	}
	if b.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return model.Build{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return b, nil
}

// timeArg converts t into a query argument. The zero time is stored as NULL.
func (db *DB) timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	if db.dialect == DialectPostgres {
		return t.UTC()
	}
	return t.UTC().Format(timeLayout)
}

// nullString stores the empty string as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseNullTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return parseTime(s.String)
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}
