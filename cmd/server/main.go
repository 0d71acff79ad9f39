package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/canvas/internal/catalog"
	"github.com/matthewbaird/canvas/internal/config"
	"github.com/matthewbaird/canvas/internal/server"
	"github.com/matthewbaird/canvas/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "canvas: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	kinds, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	log.Info("store ready", zap.String("backend", cfg.Store))

	if err := server.Run(ctx, server.Config{
		Port:            cfg.Port,
		Store:           st,
		Catalog:         kinds,
		Logger:          log,
		LiveIdleTimeout: cfg.LiveIdleTimeout,
		HistorySize:     cfg.HistorySize,
	}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func loadCatalog(dir string) (*catalog.Registry, error) {
	if dir == "" {
		return catalog.Builtin()
	}
	kinds, err := catalog.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	reg := catalog.NewRegistry()
	if err := reg.Register(kinds...); err != nil {
		return nil, err
	}
	return reg, nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemoryStore(), func() {}, nil
	case config.StoreFile:
		s, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		db, err := sql.Open("sqlite", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(1)
		s, err := store.NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil
	}
}
