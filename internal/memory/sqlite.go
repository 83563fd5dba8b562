package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sriramcse31/ai-test-triage-agent/internal/domain"
)

// SQLiteStore keeps failures in a single SQLite table. Records are never
// updated; a resolution is recorded by appending a new record.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS failures (
		id             TEXT PRIMARY KEY,
		test_name      TEXT NOT NULL,
		error_type     TEXT DEFAULT '',
		flaky_score    REAL NOT NULL DEFAULT 0,
		has_resolution INTEGER NOT NULL DEFAULT 0,
		embedding_text TEXT NOT NULL,
		raw_data       TEXT NOT NULL,
		failed_at      DATETIME NOT NULL,
		ci_run_id      TEXT DEFAULT '',
		branch         TEXT DEFAULT '',
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_failures_test_name ON failures(test_name);
	CREATE INDEX IF NOT EXISTS idx_failures_flaky_score ON failures(flaky_score);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const insertFailureSQL = `INSERT INTO failures
	(id, test_name, error_type, flaky_score, has_resolution, embedding_text, raw_data, failed_at, ci_run_id, branch)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertFailure(ctx context.Context, x execer, f domain.HistoricalFailure) (string, error) {
	f.Normalize()
	raw, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encoding failure: %w", err)
	}
	id := uuid.New().String()
	_, err = x.ExecContext(ctx, insertFailureSQL,
		id, f.TestName, f.ErrorType, f.FlakyScore, f.Resolved(), f.EmbeddingText(), string(raw),
		f.Timestamp.UTC(), f.CIRunID, f.Branch,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) Add(ctx context.Context, f domain.HistoricalFailure) (string, error) {
	id, err := insertFailure(ctx, s.db, f)
	if err != nil {
		return "", fmt.Errorf("adding failure %s: %w", f.TestName, err)
	}
	log.Printf("memory add id=%s test=%s resolved=%t", id, f.TestName, f.Resolved())
	return id, nil
}

func (s *SQLiteStore) AddBulk(ctx context.Context, fs []domain.HistoricalFailure) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertFailureSQL)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, f := range fs {
		if _, err := insertFailure(ctx, stmtExecer{stmt}, f); err != nil {
			return 0, fmt.Errorf("adding failure %s: %w", f.TestName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	log.Printf("memory add_bulk count=%d", len(fs))
	return len(fs), nil
}

// stmtExecer adapts a prepared statement to execer; the query argument is
// ignored.
type stmtExecer struct{ stmt *sql.Stmt }

func (e stmtExecer) ExecContext(ctx context.Context, _ string, args ...any) (sql.Result, error) {
	return e.stmt.ExecContext(ctx, args...)
}

func (s *SQLiteStore) SearchSimilar(ctx context.Context, query domain.HistoricalFailure, topK int) ([]domain.HistoricalFailure, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT embedding_text, raw_data FROM failures ORDER BY failed_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts, raws []string
	for rows.Next() {
		var text, raw string
		if err := rows.Scan(&text, &raw); err != nil {
			return nil, err
		}
		texts = append(texts, text)
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	c := newCorpus(texts)
	var out []domain.HistoricalFailure
	for _, i := range c.rank(query.EmbeddingText(), topK) {
		f, err := decodeFailure(raws[i])
		if err != nil {
			log.Printf("memory search skip undecodable record: %v", err)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *SQLiteStore) GetByTestName(ctx context.Context, testName string) ([]domain.HistoricalFailure, error) {
	return s.queryFailures(ctx,
		`SELECT raw_data FROM failures WHERE test_name = ? ORDER BY failed_at DESC, rowid DESC LIMIT ?`,
		testName, testHistoryLimit)
}

func (s *SQLiteStore) GetFlaky(ctx context.Context, threshold float64) ([]domain.HistoricalFailure, error) {
	return s.queryFailures(ctx,
		`SELECT raw_data FROM failures WHERE flaky_score >= ? ORDER BY flaky_score DESC, failed_at DESC LIMIT ?`,
		threshold, flakyListLimit)
}

func (s *SQLiteStore) queryFailures(ctx context.Context, query string, args ...any) ([]domain.HistoricalFailure, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoricalFailure
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		f, err := decodeFailure(raw)
		if err != nil {
			log.Printf("memory query skip undecodable record: %v", err)
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Location: s.path}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(has_resolution), 0) FROM failures`,
	).Scan(&st.TotalCount, &st.ResolvedCount)
	return st, err
}

func decodeFailure(raw string) (domain.HistoricalFailure, error) {
	var f domain.HistoricalFailure
	err := json.Unmarshal([]byte(raw), &f)
	return f, err
}
