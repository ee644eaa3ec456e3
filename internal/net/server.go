package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/net/packet"
)

// Server accepts websocket connections and creates Sessions.
// New/dead sessions are communicated to the game loop via channels.
type Server struct {
	cfg      config.NetworkConfig
	listener net.Listener
	http     *http.Server
	upgrader websocket.Upgrader
	registry *packet.Registry
	nextID   atomic.Uint64
	newConns chan *Session
	deadCh   chan uint64 // session IDs of dead sessions
	log      *zap.Logger
}

func NewServer(cfg config.NetworkConfig, registry *packet.Registry, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.BindAddress)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.BindAddress, err)
	}
	s := &Server{
		cfg:      cfg,
		listener: ln,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		newConns: make(chan *Session, 64),
		deadCh:   make(chan uint64, 256),
		log:      log,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleWS)
	s.http = &http.Server{Handler: mux}
	return s, nil
}

// Serve runs in its own goroutine until Shutdown.
func (s *Server) Serve() {
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("HTTP 服務停止", zap.Error(err))
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket 升級失敗", zap.Error(err))
		return
	}
	id := s.nextID.Add(1)
	name := r.URL.Query().Get("name")
	if name == "" {
		name = fmt.Sprintf("player%d", id)
	}
	opts := SessionOptions{
		OutSize:          s.cfg.OutQueueSize,
		PacketsPerSecond: s.cfg.PacketsPerSecond,
		WriteTimeout:     s.cfg.WriteTimeout,
		ReadTimeout:      s.cfg.ReadTimeout,
	}
	sess := NewSession(conn, id, name, r.RemoteAddr, opts, s.dispatch, s.NotifyDead, s.log)

	s.log.Info(fmt.Sprintf("玩家連線  session=%d  ip=%s", id, sess.IP))

	select {
	case s.newConns <- sess:
		sess.Start()
	default:
		s.log.Warn("連線佇列已滿，拒絕新連線")
		sess.Close()
	}
}

func (s *Server) dispatch(sess *Session, data []byte) {
	if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
		s.log.Debug("訊息處理失敗", zap.Uint64("session", sess.ID), zap.Error(err))
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// NotifyDead reports a dead session ID to the game loop.
func (s *Server) NotifyDead(sessionID uint64) {
	select {
	case s.deadCh <- sessionID:
	default:
		s.log.Warn("斷線佇列已滿", zap.Uint64("session", sessionID))
	}
}

// DeadSessions returns the channel of dead session IDs.
func (s *Server) DeadSessions() <-chan uint64 {
	return s.deadCh
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
