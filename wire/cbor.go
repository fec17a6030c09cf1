package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

type cborEnvelope struct {
	Type MessageType     `cbor:"1,keyasint"`
	Data cbor.RawMessage `cbor:"2,keyasint"`
}

// CBORCodec frames a batch as a CBOR array of {1: type, 2: data} maps. Message bodies use their
// JSON field names as map keys.
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) Encode(msgs []Message) ([]byte, error) {
	envs := make([]cborEnvelope, 0, len(msgs))
	for _, msg := range msgs {
		data, err := cbor.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("CBORCodec.Encode: %s: %w", msg.Type(), err)
		}
		envs = append(envs, cborEnvelope{
			Type: msg.Type(),
			Data: data,
		})
	}
	return cbor.Marshal(envs)
}

func (CBORCodec) Decode(b []byte) ([]Message, error) {
	var envs []cborEnvelope
	if err := cbor.Unmarshal(b, &envs); err != nil {
		return nil, fmt.Errorf("CBORCodec.Decode: %w", err)
	}
	msgs := make([]Message, 0, len(envs))
	for i, env := range envs {
		var msg Message
		switch env.Type {
		case TypeRoomChange:
			msg = &RoomChange{}
		case TypeCursorChange:
			msg = &CursorChange{}
		case TypeHeartbeat:
			msg = &Heartbeat{}
		default:
			logger.Warn().Str("type", string(env.Type)).Msg("CBORCodec.Decode: skipping unknown message type")
			continue
		}
		if err := cbor.Unmarshal(env.Data, msg); err != nil {
			return nil, fmt.Errorf("CBORCodec.Decode: message %d (%s): %w", i, env.Type, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
