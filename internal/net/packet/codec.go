package packet

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// envelope is the framing of every websocket binary frame: {t: tag, d: payload}.
type envelope struct {
	T string `msgpack:"t"`
	D any    `msgpack:"d"`
}

// Inbound is a decoded client frame whose payload is still raw msgpack.
type Inbound struct {
	T string             `msgpack:"t"`
	D msgpack.RawMessage `msgpack:"d"`
}

// Encode frames a server message.
func Encode(m Message) ([]byte, error) {
	b, err := msgpack.Marshal(envelope{T: m.Type(), D: m})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return b, nil
}

// Decode unframes a client message.
func Decode(b []byte) (Inbound, error) {
	var in Inbound
	if len(b) == 0 {
		return in, fmt.Errorf("empty frame")
	}
	if err := msgpack.Unmarshal(b, &in); err != nil {
		return in, fmt.Errorf("decode frame: %w", err)
	}
	if in.T == "" {
		return in, fmt.Errorf("frame without type")
	}
	return in, nil
}

// Payload decodes the raw payload into v.
func (in Inbound) Payload(v any) error {
	if len(in.D) == 0 {
		return fmt.Errorf("%s: empty payload", in.T)
	}
	if err := msgpack.Unmarshal(in.D, v); err != nil {
		return fmt.Errorf("%s payload: %w", in.T, err)
	}
	return nil
}

// Map decodes the payload as a loosely typed map. Movement payloads stay in
// this form until they pass validation.
func (in Inbound) Map() (map[string]any, error) {
	m := make(map[string]any)
	if err := in.Payload(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeClient frames a client message; used by tests and tooling.
func EncodeClient(t string, payload any) ([]byte, error) {
	b, err := msgpack.Marshal(envelope{T: t, D: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return b, nil
}
