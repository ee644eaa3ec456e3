package journal

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/config"
)

// Record is one journal line: what a tick sent and the state it left behind.
type Record struct {
	Tick       uint64   `json:"tick"`
	Digest     string   `json:"digest"`
	Players    int      `json:"players"`
	Npcs       int      `json:"npcs"`
	Damage     int      `json:"damage"`
	Recipients int      `json:"recipients"`
	Messages   []string `json:"messages,omitempty"` // message types, flush order
}

// Journal writes tick records on a background goroutine. Write never
// blocks the game loop: when the queue is full the record is dropped and
// counted.
type Journal struct {
	ch      chan Record
	flushCh chan struct{}
	w       *zstdWriter
	dropped atomic.Uint64
	written atomic.Uint64
	done    chan struct{}
	once    sync.Once
	log     *zap.Logger
}

// Open starts the journal goroutine. Files are created lazily on the first
// record.
func Open(cfg config.JournalConfig, log *zap.Logger) *Journal {
	j := &Journal{
		ch:      make(chan Record, max(cfg.QueueSize, 1)),
		flushCh: make(chan struct{}, 1),
		w:       newZstdWriter(cfg.Dir, "ticks"),
		done:    make(chan struct{}),
		log:     log,
	}
	go j.run()
	return j
}

// Write queues rec. Game loop only.
func (j *Journal) Write(rec Record) {
	select {
	case j.ch <- rec:
	default:
		if j.dropped.Add(1) == 1 {
			j.log.Warn("日誌佇列已滿，開始丟棄紀錄")
		}
	}
}

// Flush asks the writer to push buffered lines to disk. Non-blocking.
func (j *Journal) Flush() {
	select {
	case j.flushCh <- struct{}{}:
	default:
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Written returns how many records reached the writer.
func (j *Journal) Written() uint64 { return j.written.Load() }

// Close drains the queue, closes the file and waits for the goroutine.
func (j *Journal) Close() {
	j.once.Do(func() { close(j.ch) })
	<-j.done
}

func (j *Journal) run() {
	defer close(j.done)
	for {
		select {
		case rec, ok := <-j.ch:
			if !ok {
				if err := j.w.close(); err != nil {
					j.log.Error("關閉日誌失敗", zap.Error(err))
				}
				return
			}
			if err := j.w.write(rec); err != nil {
				j.log.Error("寫入日誌失敗", zap.Uint64("tick", rec.Tick), zap.Error(err))
				continue
			}
			j.written.Add(1)
		case <-j.flushCh:
			if err := j.w.flush(); err != nil {
				j.log.Error("日誌刷新失敗", zap.Error(err))
			}
		}
	}
}
