package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/net/packet"
)

// Session represents a single websocket client. Network I/O runs in
// dedicated goroutines; game state is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn *websocket.Conn

	state    atomic.Int32  // packet.SessionState stored as int32
	playerID atomic.Uint64 // set by the game loop once the player is spawned

	OutQueue chan []byte // writer goroutine reads from here

	IP   string
	Name string

	outBuf [][]byte // buffered messages, flushed once per tick (game loop only)

	dispatch     func(*Session, []byte)
	onClose      func(uint64)
	limiter      *rate.Limiter
	writeTimeout time.Duration
	readTimeout  time.Duration

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	log *zap.Logger
}

// SessionOptions carries the per-connection knobs from the network config.
type SessionOptions struct {
	OutSize          int
	PacketsPerSecond int
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
}

func NewSession(conn *websocket.Conn, id uint64, name, ip string, opts SessionOptions, dispatch func(*Session, []byte), onClose func(uint64), log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		OutQueue:     make(chan []byte, max(opts.OutSize, 1)),
		IP:           ip,
		Name:         name,
		dispatch:     dispatch,
		onClose:      onClose,
		writeTimeout: opts.WriteTimeout,
		readTimeout:  opts.ReadTimeout,
		closeCh:      make(chan struct{}),
		log:          log.With(zap.Uint64("session", id)),
	}
	if opts.PacketsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.PacketsPerSecond), opts.PacketsPerSecond)
	}
	s.state.Store(int32(packet.StateConnected))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

func (s *Session) SessionID() uint64 { return s.ID }

// PlayerID returns the spawned player, or zero before spawn.
func (s *Session) PlayerID() ecs.EntityID {
	return ecs.EntityID(s.playerID.Load())
}

// Bind attaches the spawned player and moves the session in-world.
func (s *Session) Bind(id ecs.EntityID) {
	s.playerID.Store(uint64(id))
	s.SetState(packet.StateInWorld)
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers an encoded message. Nothing is written until FlushOutput.
// Game loop only.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput hands the buffered messages to the writer goroutine.
// Non-blocking: a client that cannot keep up is disconnected.
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("輸出佇列已滿，斷開慢速連線")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s.ID)
		}
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop reads binary frames and hands each one to the dispatcher, which
// decodes it and stages a command for the next tick.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		if s.readTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn("封包速率超限，斷開連線")
			return
		}
		s.dispatch(s, data)
	}
}

// writeLoop writes queued messages as binary websocket frames.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if s.writeTimeout > 0 {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				if !s.closed.Load() {
					s.log.Debug("寫入錯誤", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			return
		}
	}
}
