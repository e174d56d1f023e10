package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/model"
)

// PostgresStore backs scans with a shared PostgreSQL database, for
// deployments that run more than one scanner instance.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

func NewPostgresStore(ctx context.Context, url string, logger logging.Logger) (*PostgresStore, error) {
	if url == "" {
		return nil, errors.New("postgres store: empty connection URL")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("postgres store initialized")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS scans (
  id TEXT PRIMARY KEY,
  url TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','completed','failed')),
  score INTEGER CHECK (score BETWEEN 0 AND 100),
  principal TEXT,
  findings JSONB,
  meta JSONB,
  error TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_scans_url_completed ON scans (url, completed_at) WHERE status = 'completed';
CREATE INDEX IF NOT EXISTS idx_scans_status_created ON scans (status, created_at);
CREATE INDEX IF NOT EXISTS idx_scans_created ON scans (created_at);
`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, scan *model.Scan) error {
	findingsJSON, metaJSON, err := encodeJSONB(scan.Findings, scan.Meta)
	if err != nil {
		return err
	}
	var errMsg *string
	if scan.Error != "" {
		errMsg = &scan.Error
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scans (id, url, status, score, principal, findings, meta, error, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		scan.ID, scan.URL, string(scan.Status), scan.Score, scan.Principal,
		findingsJSON, metaJSON, errMsg, scan.CreatedAt.UTC(), scan.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Scan, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, url, status, score, principal, findings, meta, error, created_at, completed_at
		FROM scans WHERE id = $1`, id)
	scan, err := scanPgRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return scan, err
}

func (s *PostgresStore) Complete(ctx context.Context, id string, score int, findings *model.Findings, meta *model.PageMeta, completedAt time.Time) (bool, error) {
	findingsJSON, metaJSON, err := encodeJSONB(findings, meta)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE scans
		SET status='completed', score=$2, findings=$3, meta=$4, completed_at=$5
		WHERE id=$1 AND status='pending'`,
		id, score, findingsJSON, metaJSON, completedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("complete scan: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Fail(ctx context.Context, id string, reason string, completedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scans
		SET status='failed', error=$2, completed_at=$3
		WHERE id=$1 AND status='pending'`,
		id, reason, completedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("fail scan: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) FindRecentCompleted(ctx context.Context, url string, window time.Duration) (*model.Scan, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, url, status, score, principal, findings, meta, error, created_at, completed_at
		FROM scans
		WHERE url=$1 AND status='completed' AND completed_at >= now() - $2::interval
		ORDER BY completed_at DESC
		LIMIT 1`, url, window.String())
	scan, err := scanPgRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return scan, err
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*model.Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, url, status, score, principal, findings, meta, error, created_at, completed_at
		FROM scans ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Scan, 0, limit)
	for rows.Next() {
		scan, err := scanPgRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, scan)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FailStalePending(ctx context.Context, olderThan time.Duration, reason string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE scans
		SET status='failed', error=$1, completed_at=now()
		WHERE status='pending' AND created_at < now() - $2::interval
		RETURNING id`, reason, olderThan.String())
	if err != nil {
		return nil, fmt.Errorf("fail stale scans: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgRow(row pgx.Row) (*model.Scan, error) {
	var (
		scan        model.Scan
		status      string
		findings    []byte
		meta        []byte
		errMsg      *string
		completedAt *time.Time
	)
	err := row.Scan(&scan.ID, &scan.URL, &status, &scan.Score, &scan.Principal,
		&findings, &meta, &errMsg, &scan.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	scan.Status = model.ScanStatus(status)
	if len(findings) > 0 {
		var f model.Findings
		if err := json.Unmarshal(findings, &f); err != nil {
			return nil, fmt.Errorf("decode findings: %w", err)
		}
		scan.Findings = &f
	}
	if len(meta) > 0 {
		var m model.PageMeta
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
		scan.Meta = &m
	}
	if errMsg != nil {
		scan.Error = *errMsg
	}
	scan.CompletedAt = completedAt
	return &scan, nil
}

func encodeJSONB(findings *model.Findings, meta *model.PageMeta) ([]byte, []byte, error) {
	var findingsJSON, metaJSON []byte
	if findings != nil {
		b, err := json.Marshal(findings)
		if err != nil {
			return nil, nil, fmt.Errorf("encode findings: %w", err)
		}
		findingsJSON = b
	}
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return nil, nil, fmt.Errorf("encode meta: %w", err)
		}
		metaJSON = b
	}
	return findingsJSON, metaJSON, nil
}
