package wire

import (
	"reflect"
	"testing"

	"github.com/tidwall/gjson"
)

func TestJSONCodecDecode(t *testing.T) {
	input := `[
		{"type":"room_change","data":{"changes":[
			{"type":"join","user":{"memberId":7,"id":"u7","name":"Grace"}},
			{"type":"leave","user":{"memberId":3,"id":"u3","name":"Ada"}}
		],"roomVersion":6}},
		{"type":"typing","data":{"memberId":7}},
		{"type":"cursor_change","data":{"userId":"u7","memberId":7,"cursor":{"rangeStart":3,"rangeEnd":3}}},
		{"type":"heartbeat","data":{"roomVersion":6}}
	]`
	msgs, err := JSONCodec{}.Decode([]byte(input))
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}
	want := []Message{
		&RoomChange{
			Changes: []Change{
				{Type: ChangeJoin, User: MemberRecord{MemberID: 7, UserID: "u7", Name: "Grace"}},
				{Type: ChangeLeave, User: MemberRecord{MemberID: 3, UserID: "u3", Name: "Ada"}},
			},
			RoomVersion: 6,
		},
		&CursorChange{UserID: "u7", MemberID: 7, Cursor: Cursor{RangeStart: 3, RangeEnd: 3}},
		&Heartbeat{RoomVersion: 6},
	}
	if !reflect.DeepEqual(msgs, want) {
		t.Fatalf("Decode mismatch:\ngot  %+v\nwant %+v", msgs, want)
	}
}

func TestJSONCodecDecodeErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{name: "not json", input: `{nope`},
		{name: "not an array", input: `{"type":"heartbeat","data":{"roomVersion":1}}`},
		{name: "missing data", input: `[{"type":"heartbeat"}]`},
	}
	for _, tc := range testCases {
		if _, err := (JSONCodec{}).Decode([]byte(tc.input)); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}

func TestJSONCodecEncodeShape(t *testing.T) {
	b, err := JSONCodec{}.Encode([]Message{
		&CursorChange{UserID: "u1", MemberID: 1, Cursor: Cursor{RangeStart: 4, RangeEnd: 9}.Caret()},
		&Heartbeat{RoomVersion: 2},
	})
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	res := gjson.ParseBytes(b)
	if n := len(res.Array()); n != 2 {
		t.Fatalf("got %d envelopes want 2: %s", n, string(b))
	}
	checks := map[string]interface{}{
		"0.type":                   "cursor_change",
		"0.data.userId":            "u1",
		"0.data.memberId":          int64(1),
		"0.data.cursor.rangeStart": int64(4),
		"0.data.cursor.rangeEnd":   int64(4),
		"1.type":                   "heartbeat",
		"1.data.roomVersion":       int64(2),
	}
	for path, want := range checks {
		got := res.Get(path)
		switch w := want.(type) {
		case string:
			if got.Str != w {
				t.Errorf("%s: got %q want %q", path, got.Str, w)
			}
		case int64:
			if got.Int() != w {
				t.Errorf("%s: got %d want %d", path, got.Int(), w)
			}
		}
	}
}

func TestCodecsAgree(t *testing.T) {
	batch := []Message{
		&RoomChange{
			Changes:     []Change{{Type: ChangeJoin, User: MemberRecord{MemberID: 2, UserID: "u2", Name: "Bo"}}},
			RoomVersion: 11,
		},
		&CursorChange{UserID: "u2", MemberID: 2, Cursor: Cursor{RangeStart: 1, RangeEnd: 1}},
		&Heartbeat{RoomVersion: 11},
	}
	for _, name := range []string{"json", "cbor"} {
		codec, err := CodecByName(name)
		if err != nil {
			t.Fatalf("CodecByName(%s): %s", name, err)
		}
		if codec.Name() != name {
			t.Fatalf("CodecByName(%s) returned %s", name, codec.Name())
		}
		b, err := codec.Encode(batch)
		if err != nil {
			t.Fatalf("%s: Encode: %s", name, err)
		}
		got, err := codec.Decode(b)
		if err != nil {
			t.Fatalf("%s: Decode: %s", name, err)
		}
		if !reflect.DeepEqual(got, batch) {
			t.Errorf("%s: got %+v want %+v", name, got, batch)
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Fatalf("CodecByName should reject unknown codecs")
	}
}

func TestCBORCodecRejectsGarbage(t *testing.T) {
	if _, err := (CBORCodec{}).Decode([]byte{0xff, 0x00, 0x01}); err == nil {
		t.Fatalf("expected an error decoding garbage")
	}
}
