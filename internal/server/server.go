// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matthewbaird/canvas/internal/catalog"
	"github.com/matthewbaird/canvas/internal/event"
	"github.com/matthewbaird/canvas/internal/eventbus"
	"github.com/matthewbaird/canvas/internal/handler"
	"github.com/matthewbaird/canvas/internal/live"
	"github.com/matthewbaird/canvas/internal/source"
	"github.com/matthewbaird/canvas/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Config holds server configuration.
type Config struct {
	Port    int
	Store   store.Store
	Catalog *catalog.Registry
	Logger  *zap.Logger
	// HTTPClient is used by REST data sources. Nil selects the default.
	HTTPClient *http.Client
	// LiveIdleTimeout closes idle preview connections. Zero disables it.
	LiveIdleTimeout time.Duration
	HistorySize     int
}

// Server is the assembled HTTP API with its change bus.
type Server struct {
	Router   http.Handler
	Bus      *eventbus.Bus
	History  *event.History
	Sessions *live.Manager
}

// New wires handlers, the change bus and the live preview handler. The bus
// is not started.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	bus := eventbus.New(0, log)
	history := event.NewHistory(cfg.HistorySize)
	bus.Subscribe("history", history)
	bus.Subscribe("log", eventbus.NewLogConsumer(log))

	sessions := live.NewManager()
	lh := live.NewHandler(live.Config{
		Store:       cfg.Store,
		Kinds:       cfg.Catalog,
		Sources:     source.NewRegistry(cfg.HTTPClient, log),
		Sessions:    sessions,
		Bus:         bus,
		Logger:      log,
		IdleTimeout: cfg.LiveIdleTimeout,
	})
	dh := handler.NewDocumentHandler(handler.DocumentConfig{
		Store:   cfg.Store,
		Kinds:   cfg.Catalog,
		Bus:     bus,
		History: history,
		Live:    lh,
		Logger:  log,
	})
	kh := handler.NewKindHandler(cfg.Catalog)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(handler.Logging(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, sessions.Len())
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/kinds", kh.ListKinds)
		r.Get("/kinds/{name}", kh.GetKind)

		r.Post("/documents", dh.CreateDocument)
		r.Get("/documents", dh.ListDocuments)
		r.Get("/documents/{id}", dh.GetDocument)
		r.Put("/documents/{id}", dh.UpdateDocument)
		r.Delete("/documents/{id}", dh.DeleteDocument)
		r.Get("/documents/{id}/changes", dh.ListChanges)
		r.Get("/documents/{id}/live", dh.Live)
	})

	return &Server{Router: r, Bus: bus, History: history, Sessions: sessions}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, cfg Config) error {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := New(cfg)
	s.Bus.Start(ctx)
	defer s.Bus.Stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		// Live connections are hijacked and outlive Shutdown; they end
		// when ctx is cancelled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", addr), zap.Strings("kinds", cfg.Catalog.Names()))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
