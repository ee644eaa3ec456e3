package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateConnected SessionState = iota // socket open, not yet in world
	StateInWorld                       // playing
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateInWorld:
		return "InWorld"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for packet handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, in Inbound)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps message tags to handlers with state-based access control.
type Registry struct {
	handlers map[string]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]*handlerEntry),
		log:      log,
	}
}

// Register maps a tag to a handler, restricted to the given session states.
func (reg *Registry) Register(tag string, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[tag] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch decodes a frame, validates the session state, and calls the
// handler. Unknown tags are ignored.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	in, err := Decode(data)
	if err != nil {
		return err
	}
	reg.log.Debug("收到封包",
		zap.String("type", in.T),
		zap.Int("size", len(data)),
		zap.String("state", state.String()),
	)

	entry, ok := reg.handlers[in.T]
	if !ok {
		reg.log.Debug("未知封包類型", zap.String("type", in.T), zap.String("state", state.String()))
		return nil // silently ignore unknown tags
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("封包在此狀態下不允許",
			zap.String("type", in.T),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("type %s not allowed in state %s", in.T, state)
	}

	return reg.safeCall(entry.fn, sess, in)
}

// safeCall executes a handler with panic recovery to prevent a single
// bad packet from crashing the reader.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, in Inbound) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.String("type", in.T),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for type %s: %v", in.T, rec)
		}
	}()
	fn(sess, in)
	return nil
}
