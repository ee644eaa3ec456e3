package handler

import (
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/input"
	"github.com/tickrpg/server/internal/net"
	"github.com/tickrpg/server/internal/net/packet"
)

// Deps holds shared dependencies injected into all message handlers.
// Handlers run on session reader goroutines: they only decode and stage
// commands, never touch world state.
type Deps struct {
	Input *input.Buffer
	Log   *zap.Logger
}

// RegisterAll registers all client message handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	inWorld := []packet.SessionState{packet.StateInWorld}

	reg.Register(packet.InMove, inWorld, func(sess any, in packet.Inbound) {
		HandleMove(sess.(*net.Session), in, deps)
	})
	reg.Register(packet.InAttack, inWorld, func(sess any, in packet.Inbound) {
		HandleTargeted(sess.(*net.Session), in, input.KindAttack, deps)
	})
	reg.Register(packet.InGather, inWorld, func(sess any, in packet.Inbound) {
		HandleTargeted(sess.(*net.Session), in, input.KindGather, deps)
	})
	reg.Register(packet.InFollow, inWorld, func(sess any, in packet.Inbound) {
		HandleTargeted(sess.(*net.Session), in, input.KindFollow, deps)
	})
	reg.Register(packet.InDuel, inWorld, func(sess any, in packet.Inbound) {
		HandleTargeted(sess.(*net.Session), in, input.KindDuel, deps)
	})
	reg.Register(packet.InScript, inWorld, func(sess any, in packet.Inbound) {
		HandleScript(sess.(*net.Session), in, deps)
	})
	reg.Register(packet.InModal, inWorld, func(sess any, in packet.Inbound) {
		HandleModal(sess.(*net.Session), in, deps)
	})
}

// stage pushes a command, logging when the tick buffer is full.
func stage(sess Sender, cmd input.Command, deps *Deps) {
	cmd.SessionID = sess.SessionID()
	cmd.PlayerID = sess.PlayerID()
	if !deps.Input.Push(cmd) {
		deps.Log.Warn("指令緩衝已滿，丟棄指令",
			zap.Uint64("session", cmd.SessionID),
			zap.Stringer("kind", cmd.Kind),
		)
	}
}
