package handler

import (
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/input"
	"github.com/tickrpg/server/internal/net/packet"
)

// Sender identifies the session a message came from. *net.Session satisfies it.
type Sender interface {
	SessionID() uint64
	PlayerID() ecs.EntityID
}

// HandleMove stages a raw move payload. Shape and range checks happen in
// the tick, where the result can be scored against the player.
func HandleMove(sess Sender, in packet.Inbound, deps *Deps) {
	// undecodable payloads still reach the validator as nil and get scored
	payload, _ := in.Map()
	stage(sess, input.Command{Kind: input.KindMove, Payload: payload}, deps)
}

type targetPayload struct {
	Target uint64 `msgpack:"target"`
}

// HandleTargeted stages attack, gather, follow and duel requests.
func HandleTargeted(sess Sender, in packet.Inbound, kind input.Kind, deps *Deps) {
	var p targetPayload
	if err := in.Payload(&p); err != nil || p.Target == 0 {
		deps.Log.Debug("目標指令格式錯誤", zap.Uint64("session", sess.SessionID()), zap.Stringer("kind", kind))
		return
	}
	stage(sess, input.Command{Kind: kind, TargetID: ecs.EntityID(p.Target)}, deps)
}

type scriptPayload struct {
	Type     string `msgpack:"type"`
	Priority string `msgpack:"priority"`
	Delay    uint64 `msgpack:"delay"`
}

// HandleScript stages a client-triggered script (emote, bury, teleport...).
func HandleScript(sess Sender, in packet.Inbound, deps *Deps) {
	var p scriptPayload
	if err := in.Payload(&p); err != nil || p.Type == "" {
		deps.Log.Debug("腳本指令格式錯誤", zap.Uint64("session", sess.SessionID()))
		return
	}
	stage(sess, input.Command{Kind: input.KindScript, Script: p.Type, Priority: p.Priority, Delay: p.Delay}, deps)
}

type modalPayload struct {
	Kind string `msgpack:"kind"`
	Open bool   `msgpack:"open"`
}

// HandleModal stages opening or closing a shop/bank/dialogue window.
func HandleModal(sess Sender, in packet.Inbound, deps *Deps) {
	var p modalPayload
	if err := in.Payload(&p); err != nil {
		return
	}
	if p.Open && p.Kind == "" {
		return
	}
	stage(sess, input.Command{Kind: input.KindModal, Modal: p.Kind, Open: p.Open}, deps)
}
