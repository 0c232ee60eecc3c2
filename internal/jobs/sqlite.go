package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/stencil/internal/apperr"
)

// Timestamps are unix milliseconds so range filters compare numerically.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS pipeline_jobs (
	id            TEXT PRIMARY KEY,
	template_slug TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER
);

CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_status ON pipeline_jobs(status, updated_at);
`

const jobColumns = `id, template_slug, status, retry_count, metadata, created_at, updated_at`

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	conn *sql.DB
	now  func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the job database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("jobs: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("jobs: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("jobs: apply schema: %w", err)
	}
	return &SQLiteStore{conn: conn, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Create inserts j. An empty ID gets a UUID; a zero CreatedAt gets now.
func (s *SQLiteStore) Create(ctx context.Context, j Job) (*Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = StatusQueued
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now()
	}
	meta, err := encodeMetadata(j.Metadata)
	if err != nil {
		return nil, err
	}
	var updated sql.NullInt64
	if j.UpdatedAt != nil {
		updated = sql.NullInt64{Int64: j.UpdatedAt.UnixMilli(), Valid: true}
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO pipeline_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.TemplateSlug, string(j.Status), j.RetryCount, meta, j.CreatedAt.UnixMilli(), updated)
	if err != nil {
		return nil, fmt.Errorf("jobs: insert: %w", err)
	}
	return s.Get(ctx, j.ID)
}

// Get returns one job or an error wrapping apperr.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM pipeline_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("jobs: %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: get %s: %w", id, err)
	}
	return j, nil
}

// FindRetryCandidates implements Store.
func (s *SQLiteStore) FindRetryCandidates(ctx context.Context, threshold time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM pipeline_jobs
		WHERE status = ? AND (updated_at IS NULL OR updated_at < ?)
		ORDER BY updated_at IS NOT NULL, updated_at, created_at
		LIMIT ?
	`, string(StatusOnHold), threshold.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("jobs: find retry candidates: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobs: scan: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// Update applies u and stamps updated_at with the current time. It returns
// an error wrapping ErrStatusChanged when u.ExpectStatus is set and the job
// has moved on.
func (s *SQLiteStore) Update(ctx context.Context, id string, u Update) (*Job, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.ExpectStatus != "" && current.Status != u.ExpectStatus {
		return nil, fmt.Errorf("jobs: update %s: %w", id, ErrStatusChanged)
	}
	status := u.Status
	if status == "" {
		status = current.Status
	}
	metadata := current.Metadata
	if u.Metadata != nil {
		metadata = u.Metadata
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	query := `
		UPDATE pipeline_jobs
		SET status = ?, retry_count = retry_count + ?, metadata = ?, updated_at = ?
		WHERE id = ?`
	args := []any{string(status), u.RetryIncrement, meta, s.now().UnixMilli(), id}
	if u.ExpectStatus != "" {
		query += ` AND status = ?`
		args = append(args, string(u.ExpectStatus))
	}
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs: update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("jobs: update %s: %w", id, err)
	}
	if n == 0 {
		if u.ExpectStatus != "" {
			return nil, fmt.Errorf("jobs: update %s: %w", id, ErrStatusChanged)
		}
		return nil, fmt.Errorf("jobs: update %s: %w", id, apperr.ErrNotFound)
	}
	return s.Get(ctx, id)
}

// CountByStatus returns a count for every status, including zeros.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	out := make(map[Status]int, len(Statuses))
	for _, st := range Statuses {
		out[st] = 0
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT status, count(*) FROM pipeline_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("jobs: count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("jobs: scan: %w", err)
		}
		out[Status(st)] = n
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*Job, error) {
	var (
		j       Job
		status  string
		meta    string
		created int64
		updated sql.NullInt64
	)
	if err := sc.Scan(&j.ID, &j.TemplateSlug, &status, &j.RetryCount, &meta, &created, &updated); err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.CreatedAt = time.UnixMilli(created).UTC()
	if updated.Valid {
		t := time.UnixMilli(updated.Int64).UTC()
		j.UpdatedAt = &t
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &j.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &j, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("jobs: encode metadata: %w", err)
	}
	return string(b), nil
}
