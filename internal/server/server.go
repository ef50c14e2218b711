// Package server is the composition root: it wires the stores, the ledger,
// the services, and the HTTP routes, and owns startup and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/snipetag/internal/catalog"
	"github.com/sakif/snipetag/internal/config"
	"github.com/sakif/snipetag/internal/handler"
	"github.com/sakif/snipetag/internal/ledger"
	"github.com/sakif/snipetag/internal/middleware"
	"github.com/sakif/snipetag/internal/notify"
	sqliteRepo "github.com/sakif/snipetag/internal/repository/sqlite"
	"github.com/sakif/snipetag/internal/service"
)

// Server owns the HTTP router and every long-lived resource behind it: the
// database, the ledger fan-out worker, and the janitor sweep.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	db     *sqliteRepo.DB
	ledger *ledger.Ledger
	snipes *service.SnipeService
}

// New assembles the full dependency chain. Handlers see services, services
// see repository interfaces, and only this package touches the concrete
// sqlite stores.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	users := s.db.Users()
	groups := s.db.Groups()
	snipes := s.db.Snipes()

	bus := notify.NewBus()
	cat := catalog.Default()
	s.ledger = ledger.New(users, groups, bus, s.logger)

	powerups := service.NewPowerupEngine(users, cat, s.logger)
	userService := service.NewUserService(users, bus, s.logger)
	storeService := service.NewStoreService(users, cat, s.ledger, bus, s.logger)
	groupService := service.NewGroupService(groups, users, s.ledger, bus, s.logger)
	s.snipes = service.NewSnipeService(snipes, groups, powerups, s.ledger, bus, s.logger)

	userHandler := handler.NewUserHandler(userService, powerups, s.logger)
	storeHandler := handler.NewStoreHandler(storeService, cat, s.logger)
	groupHandler := handler.NewGroupHandler(groupService, s.logger)
	snipeHandler := handler.NewSnipeHandler(s.snipes, s.logger)

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/users", userHandler.HandleCreate)
		r.Get("/users/{id}", userHandler.HandleGet)
		r.Get("/users/{id}/powerups", userHandler.HandlePowerups)
		r.Get("/users/{id}/groups", groupHandler.HandleUserGroups)

		r.Get("/store/items", storeHandler.HandleCatalog)
		r.Post("/users/{id}/purchase", storeHandler.HandlePurchase)
		r.Post("/users/{id}/use", storeHandler.HandleUse)
		r.Post("/users/{id}/logo/reset", storeHandler.HandleResetLogo)
		r.Get("/users/{id}/inventory", storeHandler.HandleInventory)

		r.Post("/groups", groupHandler.HandleCreate)
		r.Post("/groups/join", groupHandler.HandleJoin)
		r.Get("/groups/{id}", groupHandler.HandleGet)
		r.Post("/groups/{id}/leave", groupHandler.HandleLeave)
		r.Post("/groups/{id}/accuse", groupHandler.HandleAccuse)
		r.Post("/groups/{id}/vote", groupHandler.HandleVote)

		r.Post("/snipes", snipeHandler.HandleCreate)
		r.Get("/snipes/pending", snipeHandler.HandlePending)
		r.Post("/snipes/{id}/dodge", snipeHandler.HandleDodge)
		r.Post("/snipes/{id}/resolve", snipeHandler.HandleResolve)
	})
}

// janitor periodically resolves pending snipes that outlived the dodge
// window, covering clients that never called resolve.
func (s *Server) janitor(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolved, err := s.snipes.SweepExpired(ctx)
			if err != nil {
				s.logger.Error("sweep failed", slog.String("error", err.Error()))
				continue
			}
			if resolved > 0 {
				s.logger.Info("sweep resolved expired snipes", slog.Int("count", resolved))
			}
		}
	}
}

// Start runs the server until SIGINT/SIGTERM, then shuts down in order:
// stop accepting requests, stop the janitor, drain the ledger, close the
// database.
func (s *Server) Start() error {
	defer s.db.Close()

	s.ledger.Start()
	defer s.ledger.Stop()

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go s.janitor(janitorCtx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
