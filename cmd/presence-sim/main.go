package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	collab "github.com/RaghhavDTurki/realtime-collab-editor"
	"github.com/RaghhavDTurki/realtime-collab-editor/internal"
	"github.com/RaghhavDTurki/realtime-collab-editor/presence"
	"github.com/RaghhavDTurki/realtime-collab-editor/pubsub"
	"github.com/RaghhavDTurki/realtime-collab-editor/roomapi"
	"github.com/RaghhavDTurki/realtime-collab-editor/roomserver"
	"github.com/RaghhavDTurki/realtime-collab-editor/state"
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var GitCommit string

const version = "0.1.0"

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

var flagConfig = flag.String("config", "", "Path to a config file. Defaults to ./presence.yaml if present")

func main() {
	fmt.Printf("presence-sim %s (%s)\n", version, GitCommit)
	flag.Parse()
	cfg, err := LoadConfig(*flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	roomapi.Version = fmt.Sprintf("%s.%s", version, GitCommit)

	if cfg.SentryDSN != "" {
		err = sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: version,
		})
		if err != nil {
			panic(err)
		}
		defer sentry.Flush(2 * time.Second)
	}
	if cfg.OTLPURL != "" {
		shutdown, err := internal.ConfigureOTLP(internal.OTLPConfig{
			URL:  cfg.OTLPURL,
			User: cfg.OTLPUser,
			Pass: cfg.OTLPPass,
		}, version)
		if err != nil {
			panic(err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to flush traces")
			}
		}()
	}

	codec, err := wire.CodecByName(cfg.Codec)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad codec")
	}
	var store roomserver.Store
	if cfg.Postgres == "memory" {
		store = roomserver.NewMemoryStore()
	} else {
		storage, err := state.NewStorage(cfg.Postgres)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to set up postgres storage")
		}
		defer storage.Teardown()
		store = storage
	}

	ps := pubsub.NewPubSub(cfg.BufferSize)
	var notifier pubsub.Notifier = ps
	var metrics *presence.Metrics
	if cfg.Prometheus {
		notifier = pubsub.NewPromNotifier(ps, "roomserver")
		metrics = presence.NewMetrics(prometheus.DefaultRegisterer)
	}
	defer notifier.Close()

	rs := roomserver.NewServer(store, notifier, ps, codec, roomserver.Opts{
		DropRate:         cfg.DropRate,
		Seed:             cfg.Seed,
		HeartbeatWorkers: cfg.HeartbeatWorkers,
	})
	h := collab.NewServer(rs, collab.Opts{
		EnablePrometheus: cfg.Prometheus,
		EnableTracing:    cfg.OTLPURL != "",
	})
	go func() {
		if err := collab.RunServer(h, cfg.BindAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to listen and serve")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	hbCtx, stopHeartbeats := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		rs.RunHeartbeats(hbCtx, cfg.HeartbeatInterval)
	}()

	sim := NewSimulation(cfg, rs, notifier, ps, codec, metrics)
	converged := sim.Run(ctx)

	stopHeartbeats()
	<-hbDone
	rs.Close()
	stats := rs.Stats()
	logger.Info().Uint64("delivered", stats.Delivered).Uint64("dropped", stats.Dropped).Bool("converged", converged).Msg("simulation finished")
	if !converged {
		sentry.Flush(2 * time.Second)
		os.Exit(2)
	}
}
