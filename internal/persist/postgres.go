package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PGViolationStore keeps violations in Postgres.
type PGViolationStore struct {
	db *DB
}

func NewPGViolationStore(db *DB) *PGViolationStore {
	return &PGViolationStore{db: db}
}

// InsertViolations writes a batch with COPY.
func (s *PGViolationStore) InsertViolations(ctx context.Context, rows []ViolationRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.db.Pool.CopyFrom(ctx,
		pgx.Identifier{"movement_violations"},
		[]string{"id", "player_id", "severity", "reason", "score", "tick", "recorded_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.ID, int64(r.PlayerID), r.Severity, r.Reason, r.Score, int64(r.Tick), r.RecordedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy violations: %w", err)
	}
	return nil
}

func (s *PGViolationStore) RecentViolations(ctx context.Context, playerID uint64, limit int) ([]ViolationRow, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, player_id, severity, reason, score, tick, recorded_at
		 FROM movement_violations WHERE player_id = $1
		 ORDER BY recorded_at DESC, id DESC LIMIT $2`,
		int64(playerID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	var out []ViolationRow
	for rows.Next() {
		var r ViolationRow
		var pid, tick int64
		if err := rows.Scan(&r.ID, &pid, &r.Severity, &r.Reason, &r.Score, &tick, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		r.PlayerID, r.Tick = uint64(pid), uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close is a no-op: the pool belongs to the caller.
func (s *PGViolationStore) Close() error { return nil }
