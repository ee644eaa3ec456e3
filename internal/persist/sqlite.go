package persist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteViolationStore keeps violations in an embedded SQLite file, for
// deployments without Postgres.
type SQLiteViolationStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the SQLite migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteViolationStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	if err := migrate(ctx, db, "sqlite3", "migrations/sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteViolationStore{db: db}, nil
}

func (s *SQLiteViolationStore) InsertViolations(ctx context.Context, rows []ViolationRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("violations begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO movement_violations (id, player_id, severity, reason, score, tick, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("violations prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.ID, int64(r.PlayerID), r.Severity, r.Reason, r.Score, int64(r.Tick), r.RecordedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("violations insert: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteViolationStore) RecentViolations(ctx context.Context, playerID uint64, limit int) ([]ViolationRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, player_id, severity, reason, score, tick, recorded_at
		 FROM movement_violations WHERE player_id = ?
		 ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		int64(playerID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	var out []ViolationRow
	for rows.Next() {
		var r ViolationRow
		var pid, tick, at int64
		if err := rows.Scan(&r.ID, &pid, &r.Severity, &r.Reason, &r.Score, &tick, &at); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		r.PlayerID, r.Tick = uint64(pid), uint64(tick)
		r.RecordedAt = time.UnixMilli(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteViolationStore) Close() error {
	return s.db.Close()
}
