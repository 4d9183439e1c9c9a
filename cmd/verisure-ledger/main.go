// Package main boots the VeriSure ledger simulator HTTP and gRPC servers.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/auth"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/config"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/events"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/grpcapi"
	httpapi "github.com/fairyhunter13/verisure-ledger-simulator/internal/http"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/obs"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/queue"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/store"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/verify"
)

func main() {
	obs.InitLogger()
	cfg, err := config.Load()
	if err != nil {
		obs.Logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Logger.Info("service_starting", "ledger_backend", cfg.LedgerBackend, "session_backend", cfg.SessionBackend, "owner", cfg.LedgerOwner)

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				obs.Logger.Warn("close_failed", "error", err)
			}
		}
	}()

	snap, closeSnap, err := openSnapshotter(cfg)
	if err != nil {
		obs.Logger.Error("ledger_open_failed", "error", err)
		os.Exit(1)
	}
	if closeSnap != nil {
		closers = append(closers, closeSnap)
	}
	st := store.New(snap, auth.NewOwnerAuthorizer(cfg.LedgerOwner))
	if err := st.Load(context.Background()); err != nil {
		obs.Logger.Error("ledger_init_failed", "error", err)
		os.Exit(1)
	}

	sessionStore, closeSessions, err := openSessions(cfg)
	if err != nil {
		obs.Logger.Error("session_store_failed", "error", err)
		os.Exit(1)
	}
	if closeSessions != nil {
		closers = append(closers, closeSessions)
	}
	signer, err := auth.NewTokenSigner(cfg.JWTSecret)
	if err != nil {
		obs.Logger.Error("token_signer_failed", "error", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		obs.Logger.Warn("jwt_secret_ephemeral", "note", "sessions will not survive a restart")
	}
	sessions := auth.NewManager(sessionStore, signer, cfg.SessionTTL)

	metrics := obs.NewMetrics()
	feed := events.NewFeed(cfg.ActivityFeedSize)
	metricsSink := events.NewMetricsSink(metrics, st.Stats)
	metricsSink.Refresh()
	sinks := []events.Sink{feed, metricsSink}
	if len(cfg.KafkaBrokers) > 0 {
		ks, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			obs.Logger.Error("kafka_sink_failed", "error", err)
			os.Exit(1)
		}
		closers = append(closers, ks.Close)
		sinks = append(sinks, ks)
		obs.Logger.Info("kafka_sink_enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	mgr := queue.NewManager(cfg, queue.New[model.Event](128), sinks...)
	st.SetRecorder(mgr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	verifier := verify.New(st, mgr)
	app := httpapi.NewApp(cfg, st, verifier, sessions, mgr, feed, metrics)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	var (
		grpcSrv   *grpc.Server
		healthSrv *health.Server
	)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			obs.Logger.Error("grpc_listen_failed", "addr", cfg.GRPCAddr, "error", err)
			os.Exit(1)
		}
		grpcSrv, healthSrv = grpcapi.NewServer(grpcapi.NewLedgerQueryServer(st, verifier))
		go func() {
			obs.Logger.Info("grpc_listen", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				obs.Logger.Error("grpc_server_error", "error", err)
			}
		}()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())

	app.StartShutdown()
	if healthSrv != nil {
		healthSrv.Shutdown()
	}
	obs.Logger.Info("shutdown_drain_begin", "backlog_size", mgr.BacklogSize(), "worker_count", mgr.WorkerCount())

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := mgr.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout", "dropped", mgr.Dropped())
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	mgr.Stop()
	obs.Logger.Info("service_stopped", "products", st.Len(), "last_sequence", mgr.LastSequence())
}

// openSnapshotter selects the durable ledger backend. The returned close func may be nil.
func openSnapshotter(cfg config.Config) (store.Snapshotter, func() error, error) {
	switch cfg.LedgerBackend {
	case config.BackendSQLite, config.BackendPostgres:
		g, err := store.OpenGorm(cfg.LedgerBackend, cfg.LedgerDSN)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	default:
		return store.NewFileSnapshotter(cfg.LedgerFile), nil, nil
	}
}

func openSessions(cfg config.Config) (auth.SessionStore, func() error, error) {
	if cfg.SessionBackend != config.SessionRedis {
		return auth.NewMemorySessionStore(), nil, nil
	}
	client, err := auth.ConnectRedis(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return auth.NewRedisSessionStore(client), client.Close, nil
}
