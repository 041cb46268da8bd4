package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"kitpack/boxes"
	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/cache"
	"kitpack/infrastructure/config"
	httpserver "kitpack/infrastructure/http"
	"kitpack/infrastructure/metrics"
	"kitpack/infrastructure/sqlite"
)

func main() {
	cfg := config.Load()

	db, err := sqlite.OpenDB(cfg.SQLite.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if cfg.SQLite.MigrationsDir != "" {
		err = sqlite.ApplyMigrations(context.Background(), db, cfg.SQLite.MigrationsDir)
	} else {
		err = sqlite.ApplyEmbeddedMigrations(context.Background(), db)
	}
	if err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	var store cache.SessionStore = cache.NewMemorySessionStore()
	if cfg.Redis.Enabled {
		redisStore, err := cache.NewRedisSessionStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("redis unavailable, falling back to in-memory session store", slog.Any("err", err))
		} else {
			store = redisStore
		}
	}

	auditSvc := audit.NewService()
	m := metrics.New()
	coordinator := boxes.NewCoordinator(db, auditSvc, m, store, cfg.Session.TTL)

	server := httpserver.NewServer(cfg.Server.Addr, db, auditSvc, m, coordinator)
	if err := server.Start(); err != nil {
		log.Fatalf("start server: %v", err)
	}
	log.Printf("kitpack listening on %s", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := server.Stop(); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
}
