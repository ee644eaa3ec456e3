package persist

import (
	"context"
	"time"
)

// ViolationRow is one persisted movement-validation rejection.
type ViolationRow struct {
	ID         string // ULID, sortable by time
	PlayerID   uint64
	Severity   string
	Reason     string
	Score      float64
	Tick       uint64
	RecordedAt time.Time
}

// ViolationStore is a backend for violation rows.
type ViolationStore interface {
	InsertViolations(ctx context.Context, rows []ViolationRow) error
	RecentViolations(ctx context.Context, playerID uint64, limit int) ([]ViolationRow, error)
	Close() error
}
