package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/axescan/axescan/internal/logging"
	"github.com/axescan/axescan/internal/model"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

// timeLayout is a fixed-width UTC format so stored timestamps compare
// correctly both as strings and after parsing.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is the default single-instance backend.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string, logger logging.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store: empty database path")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("sqlite store initialized", logging.Field{Key: "path", Value: path})
	return &SQLiteStore{db: db, logger: logger}, nil
}

// applySchema sets pragmas and executes the embedded schema.
func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // concurrent readers while scans write
		"PRAGMA synchronous=NORMAL", // balance between safety and performance
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000", // wait up to 5 seconds on a locked database
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, scan *model.Scan) error {
	findingsJSON, metaJSON, err := encodePayloads(scan.Findings, scan.Meta)
	if err != nil {
		return err
	}

	var completedAt sql.NullString
	if scan.CompletedAt != nil {
		completedAt = sql.NullString{String: scan.CompletedAt.UTC().Format(timeLayout), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scans (id, url, status, score, principal, findings, meta, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.ID,
		scan.URL,
		string(scan.Status),
		nullableInt(scan.Score),
		nullableText(scan.Principal),
		findingsJSON,
		metaJSON,
		emptyAsNull(scan.Error),
		scan.CreatedAt.UTC().Format(timeLayout),
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

const scanColumns = `id, url, status, score, principal, findings, meta, error, created_at, completed_at`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Scan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	scan, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return scan, err
}

func (s *SQLiteStore) Complete(ctx context.Context, id string, score int, findings *model.Findings, meta *model.PageMeta, completedAt time.Time) (bool, error) {
	findingsJSON, metaJSON, err := encodePayloads(findings, meta)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE scans
		SET status = 'completed', score = ?, findings = ?, meta = ?, completed_at = ?
		WHERE id = ? AND status = 'pending'`,
		score, findingsJSON, metaJSON, completedAt.UTC().Format(timeLayout), id)
	if err != nil {
		return false, fmt.Errorf("complete scan: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) Fail(ctx context.Context, id string, reason string, completedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scans
		SET status = 'failed', error = ?, completed_at = ?
		WHERE id = ? AND status = 'pending'`,
		reason, completedAt.UTC().Format(timeLayout), id)
	if err != nil {
		return false, fmt.Errorf("fail scan: %w", err)
	}
	return affected(res)
}

func (s *SQLiteStore) FindRecentCompleted(ctx context.Context, url string, window time.Duration) (*model.Scan, error) {
	cutoff := time.Now().UTC().Add(-window).Format(timeLayout)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scanColumns+` FROM scans
		WHERE url = ? AND status = 'completed' AND completed_at >= ?
		ORDER BY completed_at DESC
		LIMIT 1`, url, cutoff)

	scan, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return scan, err
}

func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*model.Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scanColumns+` FROM scans ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Scan, 0, limit)
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, scan)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FailStalePending(ctx context.Context, olderThan time.Duration, reason string) ([]string, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin stale sweep: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM scans WHERE status = 'pending' AND created_at < ?`,
		cutoff.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("select stale scans: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(timeLayout)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE scans SET status = 'failed', error = ?, completed_at = ?
			WHERE id = ? AND status = 'pending'`, reason, now, id); err != nil {
			return nil, fmt.Errorf("fail stale scan %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stale sweep: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (*model.Scan, error) {
	var (
		scan        model.Scan
		status      string
		score       sql.NullInt64
		principal   sql.NullString
		findings    sql.NullString
		meta        sql.NullString
		errMsg      sql.NullString
		createdAt   string
		completedAt sql.NullString
	)
	err := r.Scan(&scan.ID, &scan.URL, &status, &score, &principal,
		&findings, &meta, &errMsg, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	scan.Status = model.ScanStatus(status)
	if score.Valid {
		v := int(score.Int64)
		scan.Score = &v
	}
	if principal.Valid {
		scan.Principal = &principal.String
	}
	if findings.Valid && findings.String != "" {
		var f model.Findings
		if err := json.Unmarshal([]byte(findings.String), &f); err != nil {
			return nil, fmt.Errorf("decode findings: %w", err)
		}
		scan.Findings = &f
	}
	if meta.Valid && meta.String != "" {
		var m model.PageMeta
		if err := json.Unmarshal([]byte(meta.String), &m); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
		scan.Meta = &m
	}
	if errMsg.Valid {
		scan.Error = errMsg.String
	}
	if scan.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		scan.CompletedAt = &t
	}
	return &scan, nil
}

func encodePayloads(findings *model.Findings, meta *model.PageMeta) (sql.NullString, sql.NullString, error) {
	var findingsJSON, metaJSON sql.NullString
	if findings != nil {
		b, err := json.Marshal(findings)
		if err != nil {
			return findingsJSON, metaJSON, fmt.Errorf("encode findings: %w", err)
		}
		findingsJSON = sql.NullString{String: string(b), Valid: true}
	}
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return findingsJSON, metaJSON, fmt.Errorf("encode meta: %w", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}
	return findingsJSON, metaJSON, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableText(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func emptyAsNull(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
