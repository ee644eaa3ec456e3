package script

import (
	"fmt"

	"go.uber.org/zap"
)

// Handler executes one script.
type Handler func(s *Script, tick uint64) error

// Handlers maps script types to Go handlers, with an optional fallback for
// types implemented elsewhere (Lua script bodies).
type Handlers struct {
	byType   map[string]Handler
	fallback Handler
	log      *zap.Logger
}

func NewHandlers(log *zap.Logger) *Handlers {
	return &Handlers{
		byType: make(map[string]Handler),
		log:    log,
	}
}

func (h *Handlers) Register(typ string, fn Handler) {
	h.byType[typ] = fn
}

// Has reports whether a Go handler is registered for typ.
func (h *Handlers) Has(typ string) bool {
	_, ok := h.byType[typ]
	return ok
}

// SetFallback installs the handler for unregistered types.
func (h *Handlers) SetFallback(fn Handler) {
	h.fallback = fn
}

// Run executes s. Errors and panics are logged and contained so one broken
// script cannot stop the tick.
func (h *Handlers) Run(s *Script, tick uint64) {
	fn, ok := h.byType[s.Type]
	if !ok {
		fn = h.fallback
	}
	if fn == nil {
		h.log.Debug("未知腳本類型", zap.String("type", s.Type), zap.Stringer("entity", s.EntityID))
		return
	}
	if err := h.safeCall(fn, s, tick); err != nil {
		h.log.Warn("腳本執行失敗",
			zap.String("type", s.Type),
			zap.Stringer("entity", s.EntityID),
			zap.Error(err),
		)
	}
}

func (h *Handlers) safeCall(fn Handler, s *Script, tick uint64) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("script %s panic: %v", s.Type, rec)
		}
	}()
	return fn(s, tick)
}
