package wire

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// JSONCodec frames a batch as a JSON array of {"type":..., "data":...} envelopes.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(msgs []Message) ([]byte, error) {
	out := []byte(`[]`)
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("JSONCodec.Encode: %s: %w", msg.Type(), err)
		}
		env, err := sjson.SetBytes([]byte(`{}`), "type", string(msg.Type()))
		if err != nil {
			return nil, fmt.Errorf("JSONCodec.Encode: %w", err)
		}
		env, err = sjson.SetRawBytes(env, "data", data)
		if err != nil {
			return nil, fmt.Errorf("JSONCodec.Encode: %w", err)
		}
		out, err = sjson.SetRawBytes(out, "-1", env)
		if err != nil {
			return nil, fmt.Errorf("JSONCodec.Encode: %w", err)
		}
	}
	return out, nil
}

func (JSONCodec) Decode(b []byte) ([]Message, error) {
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("JSONCodec.Decode: invalid JSON")
	}
	root := gjson.ParseBytes(b)
	if !root.IsArray() {
		return nil, fmt.Errorf("JSONCodec.Decode: expected array, got %s", root.Type)
	}
	var msgs []Message
	var err error
	root.ForEach(func(i, env gjson.Result) bool {
		data := env.Get("data")
		if !data.IsObject() {
			err = fmt.Errorf("JSONCodec.Decode: message %d has no data object", i.Int())
			return false
		}
		msgType := MessageType(env.Get("type").Str)
		switch msgType {
		case TypeRoomChange:
			rc := &RoomChange{
				RoomVersion: data.Get("roomVersion").Int(),
			}
			data.Get("changes").ForEach(func(_, ch gjson.Result) bool {
				rc.Changes = append(rc.Changes, Change{
					Type: ChangeType(ch.Get("type").Str),
					User: parseMemberRecord(ch.Get("user")),
				})
				return true
			})
			msgs = append(msgs, rc)
		case TypeCursorChange:
			msgs = append(msgs, &CursorChange{
				UserID:   data.Get("userId").Str,
				MemberID: data.Get("memberId").Int(),
				Cursor: Cursor{
					RangeStart: int(data.Get("cursor.rangeStart").Int()),
					RangeEnd:   int(data.Get("cursor.rangeEnd").Int()),
				},
			})
		case TypeHeartbeat:
			msgs = append(msgs, &Heartbeat{
				RoomVersion: data.Get("roomVersion").Int(),
			})
		default:
			logger.Warn().Str("type", string(msgType)).Msg("JSONCodec.Decode: skipping unknown message type")
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func parseMemberRecord(r gjson.Result) MemberRecord {
	return MemberRecord{
		MemberID: r.Get("memberId").Int(),
		UserID:   r.Get("id").Str,
		Name:     r.Get("name").Str,
	}
}
