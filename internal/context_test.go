package internal

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

func TestDecorateLogger(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(ctx context.Context)
		want  map[string]interface{}
		unset []string
	}{
		{
			name:  "empty",
			setup: func(ctx context.Context) {},
			unset: []string{"room", "m", "why", "v", "n"},
		},
		{
			name: "room and member",
			setup: func(ctx context.Context) {
				SetRequestContextRoom(ctx, "abc", 4)
			},
			want:  map[string]interface{}{"room": "abc", "m": int64(4)},
			unset: []string{"v", "n"},
		},
		{
			name: "snapshot",
			setup: func(ctx context.Context) {
				SetRequestContextRoom(ctx, "abc", 0)
				SetRequestContextReason(ctx, "heartbeat")
				SetRequestContextSnapshotInfo(ctx, 9, 3)
			},
			want: map[string]interface{}{"room": "abc", "m": int64(0), "why": "heartbeat", "v": int64(9), "n": int64(3)},
		},
	}
	for _, tc := range testCases {
		var buf bytes.Buffer
		l := zerolog.New(&buf)
		ctx := RequestContext(context.Background())
		tc.setup(ctx)
		DecorateLogger(ctx, l.Info()).Msg("")
		line := gjson.ParseBytes(buf.Bytes())
		for k, v := range tc.want {
			got := line.Get(k)
			switch want := v.(type) {
			case string:
				if got.Str != want {
					t.Errorf("%s: field %s got %q want %q", tc.name, k, got.Str, want)
				}
			case int64:
				if got.Int() != want {
					t.Errorf("%s: field %s got %d want %d", tc.name, k, got.Int(), want)
				}
			}
		}
		for _, k := range tc.unset {
			if line.Get(k).Exists() {
				t.Errorf("%s: field %s should not be set, got %v", tc.name, k, line.Get(k).Raw)
			}
		}
	}
}

func TestDecorateLoggerWithoutRequestContext(t *testing.T) {
	ctx := context.Background()
	// setters are no-ops without RequestContext
	SetRequestContextRoom(ctx, "abc", 1)
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	DecorateLogger(ctx, l.Info()).Msg("")
	if gjson.GetBytes(buf.Bytes(), "room").Exists() {
		t.Fatalf("room should not be logged: %s", buf.String())
	}
}
