// Package collab serves room presence over HTTP: the membership API plus operational endpoints.
package collab

import (
	"net/http"
	"os"
	"time"

	"github.com/RaghhavDTurki/realtime-collab-editor/roomserver"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

type Opts struct {
	// Serve /metrics from the default prometheus registry.
	EnablePrometheus bool
	// Wrap every request in an OpenTelemetry span.
	EnableTracing bool
}

type server struct {
	chain []func(next http.Handler) http.Handler
	final http.Handler
}

func (s *server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h := s.final
	for i := range s.chain {
		h = s.chain[len(s.chain)-1-i](h)
	}
	h.ServeHTTP(w, req)
}

func allowCORS(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
		if req.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		next.ServeHTTP(w, req)
	}
}

// NewServer returns the handler for the whole HTTP surface of rs.
func NewServer(rs *roomserver.Server, opts Opts) http.Handler {
	r := mux.NewRouter()
	rs.Routes(r)
	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"ok":true}`))
	}))
	if opts.EnablePrometheus {
		r.Handle("/metrics", promhttp.Handler())
	}

	var final http.Handler = allowCORS(r)
	if opts.EnableTracing {
		final = otelhttp.NewHandler(final, "collab")
	}
	return &server{
		chain: []func(next http.Handler) http.Handler{
			hlog.NewHandler(logger),
			hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
				if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
					return
				}
				hlog.FromRequest(r).Info().
					Str("method", r.Method).
					Int("status", status).
					Int("size", size).
					Dur("duration", duration).
					Str("path", r.URL.Path).
					Msg("")
			}),
			hlog.RemoteAddrHandler("ip"),
		},
		final: final,
	}
}

// RunServer blocks serving h on bindAddr.
func RunServer(h http.Handler, bindAddr string) error {
	logger.Info().Msgf("listening on %s", bindAddr)
	srv := &http.Server{
		Addr:              bindAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
