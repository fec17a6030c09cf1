package roomserver

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/RaghhavDTurki/realtime-collab-editor/internal"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/attribute"
)

// Routes registers the room HTTP API on r:
//
//	GET    /api/rooms                              room ids
//	GET    /api/rooms/{roomID}/members             snapshot: {"version":N,"members":[...]}
//	POST   /api/rooms/{roomID}/members             join with {"name":"..."}
//	DELETE /api/rooms/{roomID}/members/{memberID}  leave
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/api/rooms", s.handleListRooms).Methods("GET")
	r.HandleFunc("/api/rooms/{roomID}/members", s.handleSnapshot).Methods("GET")
	r.HandleFunc("/api/rooms/{roomID}/members", s.handleJoin).Methods("POST")
	r.HandleFunc("/api/rooms/{roomID}/members/{memberID:[0-9]+}", s.handleLeave).Methods("DELETE")
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func (s *Server) writeError(w http.ResponseWriter, req *http.Request, err error) {
	var herr *internal.HandlerError
	if !errors.As(err, &herr) {
		herr = &internal.HandlerError{
			StatusCode: http.StatusInternalServerError,
			Err:        err,
		}
	}
	ctx := req.Context()
	if herr.StatusCode >= 500 {
		internal.DecorateLogger(ctx, hlog.FromRequest(req).Error().Err(herr.Err)).Msg("request failed")
		internal.GetSentryHubFromContextOrDefault(ctx).CaptureException(herr.Err)
	} else {
		internal.DecorateLogger(ctx, hlog.FromRequest(req).Debug().Err(herr.Err)).Int("status", herr.StatusCode).Msg("request rejected")
	}
	herr.WriteTo(w)
}

func (s *Server) handleListRooms(w http.ResponseWriter, req *http.Request) {
	roomIDs, err := s.store.RoomIDs(req.Context())
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	body, err := sjson.SetBytes([]byte(`{"rooms":[]}`), "rooms", roomIDs)
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	writeJSON(w, 200, body)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, req *http.Request) {
	roomID := mux.Vars(req)["roomID"]
	ctx := internal.RequestContext(req.Context())
	internal.SetRequestContextRoom(ctx, roomID, -1)
	ctx, span := internal.StartSpan(ctx, "roomserver.snapshot")
	defer span.End()
	req = req.WithContext(ctx)

	version, members, err := s.store.Snapshot(ctx, roomID)
	if errors.Is(err, internal.ErrRoomNotFound) {
		s.writeError(w, req, internal.NotFoundError("unknown room %s", roomID))
		return
	}
	if err != nil {
		span.RecordError(err)
		s.writeError(w, req, err)
		return
	}
	internal.SetRequestContextSnapshotInfo(ctx, version, len(members))
	span.SetAttributes(attribute.Int64("version", version), attribute.Int("members", len(members)))
	body := []byte(`{"version":0,"members":[]}`)
	body, err = sjson.SetBytes(body, "version", version)
	for i := 0; err == nil && i < len(members); i++ {
		body, err = sjson.SetBytes(body, "members.-1", members[i])
	}
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	writeJSON(w, 200, body)
}

func (s *Server) handleJoin(w http.ResponseWriter, req *http.Request) {
	roomID := mux.Vars(req)["roomID"]
	b, err := io.ReadAll(req.Body)
	if err != nil {
		s.writeError(w, req, &internal.HandlerError{StatusCode: 400, Err: err})
		return
	}
	name := gjson.GetBytes(b, "name")
	if name.Type != gjson.String || name.Str == "" {
		s.writeError(w, req, &internal.HandlerError{StatusCode: 400, Err: errors.New("missing name")})
		return
	}
	rec, err := s.Join(req.Context(), roomID, name.Str)
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	body, err := sjson.SetBytes([]byte(`{}`), "member", rec)
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	writeJSON(w, 200, body)
}

func (s *Server) handleLeave(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	memberID, err := strconv.ParseInt(vars["memberID"], 10, 64)
	if err != nil {
		s.writeError(w, req, &internal.HandlerError{StatusCode: 400, Err: err})
		return
	}
	err = s.Leave(req.Context(), vars["roomID"], memberID)
	if errors.Is(err, internal.ErrRoomNotFound) {
		s.writeError(w, req, internal.NotFoundError("unknown room %s", vars["roomID"]))
		return
	}
	if err != nil {
		s.writeError(w, req, err)
		return
	}
	writeJSON(w, 200, []byte(`{}`))
}
