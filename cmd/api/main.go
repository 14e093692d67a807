package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"amanat.org/internal/audit"
	"amanat.org/internal/auth"
	"amanat.org/internal/config"
	"amanat.org/internal/escrow"
	"amanat.org/internal/httpapi"
	"amanat.org/internal/obs"
	"amanat.org/internal/store/memory"
	"amanat.org/internal/store/pg"
	"amanat.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, db, err := openStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	authority, err := auth.New(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	events := stream.New(0)
	admins := make([]escrow.Identity, 0, len(cfg.Administrators()))
	for _, id := range cfg.Administrators() {
		admins = append(admins, escrow.Identity(id))
	}
	engine := escrow.NewEngine(store,
		escrow.WithAdministrators(admins...),
		escrow.WithEventSink(escrow.MultiSink{audit.Sink{}, obs.EscrowMetrics{}, events}),
	)

	ready := httpapi.ReadyProbe{DB: db}

	// HTTP API
	api := httpapi.New(engine, httpapi.Options{
		Version:    version,
		Auth:       authority,
		Stream:     events,
		Ready:      ready,
		DevTokens:  cfg.Auth.DevTokens,
		TokenTTL:   cfg.Auth.TokenTTL.Duration,
		RateBurst:  cfg.Rate.Burst,
		RatePerSec: cfg.Rate.RPS,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC API
	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(httpapi.UnaryAuthInterceptor(authority)))
	httpapi.NewGRPCServer(engine, ready, version).Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	log.Printf("Starting amanat-api %s: http %s, grpc %s, admins %d", version, srv.Addr, cfg.GRPCAddr, len(admins))
	obs.SetReady(true)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// openStore picks Postgres when a DSN is configured and memory otherwise.
func openStore(cfg config.Config) (escrow.Store, *sql.DB, error) {
	if cfg.PostgresDSN == "" {
		log.Printf("no pg_dsn configured, state is kept in memory")
		return memory.New(memory.WithGracePeriod(cfg.Escrow.GracePeriod.Duration)), nil, nil
	}
	s, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.EnsureConfig(ctx, cfg.Escrow.GracePeriod.Duration); err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return s, s.DB(), nil
}
