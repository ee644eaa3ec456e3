package persist

import (
	"context"
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/security"
)

const (
	recorderBatch    = 128
	recorderInterval = time.Second
	recorderTimeout  = 5 * time.Second
)

// Recorder persists scorer violations in batches on a background
// goroutine. Record never blocks the game loop: floods beyond the
// configured rate and overflow of the queue are dropped and counted.
type Recorder struct {
	store   ViolationStore
	ch      chan security.Violation
	flushCh chan struct{}
	limiter *rate.Limiter
	dropped atomic.Uint64
	written atomic.Uint64
	done    chan struct{}
	once    sync.Once
	log     *zap.Logger
}

func NewRecorder(store ViolationStore, cfg config.AntiCheatConfig, log *zap.Logger) *Recorder {
	r := &Recorder{
		store:   store,
		ch:      make(chan security.Violation, max(cfg.QueueSize, 1)),
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
		log:     log,
	}
	if cfg.PersistPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.PersistPerSecond), max(cfg.PersistBurst, 1))
	}
	go r.run()
	return r
}

// Record satisfies security.Recorder.
func (r *Recorder) Record(v security.Violation) {
	if r.limiter != nil && !r.limiter.Allow() {
		r.dropped.Add(1)
		return
	}
	select {
	case r.ch <- v:
	default:
		if r.dropped.Add(1) == 1 {
			r.log.Warn("違規紀錄佇列已滿，開始丟棄")
		}
	}
}

// Flush asks the writer to persist whatever it has buffered. Non-blocking.
func (r *Recorder) Flush() {
	select {
	case r.flushCh <- struct{}{}:
	default:
	}
}

func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Close drains the queue, writes the final batch and waits for the writer.
// The store itself is left open.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.ch) })
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	ticker := time.NewTicker(recorderInterval)
	defer ticker.Stop()

	entropy := ulid.Monotonic(rand.Reader, 0)
	batch := make([]ViolationRow, 0, recorderBatch)
	for {
		select {
		case v, ok := <-r.ch:
			if !ok {
				r.write(batch)
				return
			}
			at := v.At
			if at.IsZero() {
				at = time.Now()
			}
			id, err := ulid.New(ulid.Timestamp(at), entropy)
			if err != nil {
				r.log.Warn("產生違規 ID 失敗", zap.Error(err))
				continue
			}
			batch = append(batch, ViolationRow{
				ID:         id.String(),
				PlayerID:   uint64(v.PlayerID),
				Severity:   v.Severity.String(),
				Reason:     v.Reason,
				Score:      v.Score,
				Tick:       v.Tick,
				RecordedAt: at,
			})
			if len(batch) >= recorderBatch {
				batch = r.write(batch)
			}
		case <-ticker.C:
			batch = r.write(batch)
		case <-r.flushCh:
			batch = r.write(batch)
		}
	}
}

func (r *Recorder) write(batch []ViolationRow) []ViolationRow {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), recorderTimeout)
	defer cancel()
	if err := r.store.InsertViolations(ctx, batch); err != nil {
		r.log.Error("寫入違規紀錄失敗", zap.Int("rows", len(batch)), zap.Error(err))
	} else {
		r.written.Add(uint64(len(batch)))
	}
	clear(batch)
	return batch[:0]
}
