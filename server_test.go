package collab

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RaghhavDTurki/realtime-collab-editor/pubsub"
	"github.com/RaghhavDTurki/realtime-collab-editor/roomserver"
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"github.com/tidwall/gjson"
)

func newTestHandler(t *testing.T, opts Opts) (*roomserver.Server, http.Handler) {
	t.Helper()
	ps := pubsub.NewPubSub(100)
	rs := roomserver.NewServer(roomserver.NewMemoryStore(), ps, ps, wire.JSONCodec{}, roomserver.Opts{})
	t.Cleanup(func() {
		rs.Close()
		ps.Close()
	})
	return rs, NewServer(rs, opts)
}

func TestServer(t *testing.T) {
	rs, h := newTestHandler(t, Opts{EnableTracing: true})
	if _, err := rs.Join(context.Background(), "room", "Ada"); err != nil {
		t.Fatalf("Join: %s", err)
	}
	testCases := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   func(res gjson.Result) bool
	}{
		{
			name:       "snapshot",
			method:     "GET",
			path:       "/api/rooms/room/members",
			wantStatus: 200,
			wantBody: func(res gjson.Result) bool {
				return res.Get("version").Int() == 1 && res.Get("members.0.name").Str == "Ada"
			},
		},
		{
			name:       "join",
			method:     "POST",
			path:       "/api/rooms/room/members",
			body:       `{"name":"Bo"}`,
			wantStatus: 200,
			wantBody: func(res gjson.Result) bool {
				return res.Get("member.memberId").Int() == 2
			},
		},
		{
			name:       "health",
			method:     "GET",
			path:       "/healthz",
			wantStatus: 200,
			wantBody: func(res gjson.Result) bool {
				return res.Get("ok").Bool()
			},
		},
		{
			name:       "preflight",
			method:     "OPTIONS",
			path:       "/api/rooms/room/members",
			wantStatus: 200,
		},
		{
			name:       "metrics disabled",
			method:     "GET",
			path:       "/metrics",
			wantStatus: 404,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Fatalf("got status %d want %d: %s", w.Code, tc.wantStatus, w.Body.String())
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("missing CORS header, got %q", got)
			}
			if tc.wantBody != nil && !tc.wantBody(gjson.ParseBytes(w.Body.Bytes())) {
				t.Errorf("unexpected body: %s", w.Body.String())
			}
		})
	}
}

func TestServerMetrics(t *testing.T) {
	_, h := newTestHandler(t, Opts{EnablePrometheus: true})
	srv := httptest.NewServer(h)
	defer srv.Close()
	res, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %s", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != 200 {
		t.Fatalf("got status %d", res.StatusCode)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics output is missing the go collector: %s", body)
	}
}
