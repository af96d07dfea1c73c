// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer — the composition root where the whole
// dependency chain is assembled in one place:
//
//	sqlite.DB → repositories → services → handlers → routes
//
// Each layer only receives what it needs: services get repository
// interfaces (not the concrete sqlite.DB), handlers get services (not
// repositories), and main.go stays minimal.
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
	"github.com/rs/cors"

	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/config"
	"github.com/sakif/task-manager/internal/handler"
	"github.com/sakif/task-manager/internal/mailer"
	"github.com/sakif/task-manager/internal/middleware"
	sqliteRepo "github.com/sakif/task-manager/internal/repository/sqlite"
	"github.com/sakif/task-manager/internal/service"
)

// Server owns the router, the database connection, and the notification
// dispatcher. It closes the first and drains the second during graceful
// shutdown.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	mail   *mailer.Dispatcher
}

// New creates a Server with its full dependency graph wired.
//
// The mail transport is injected (rather than constructed here) so tests
// can pass a fake and production can pass the SendGrid client built in
// main.go from the configured API key.
func New(cfg config.Config, logger *slog.Logger, mail mailer.Mailer) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		mail:   mailer.NewDispatcher(mail, logger),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	POST   /users              → signup                        (public)
//	POST   /users/login        → login                         (public)
//	GET    /users/{id}/avatar  → avatar image                  (public)
//	POST   /users/logout       → end this session              (auth)
//	POST   /users/logout-all   → end all sessions              (auth)
//	GET    /users/me           → profile                       (auth)
//	PATCH  /users/me           → update profile                (auth)
//	DELETE /users/me           → delete account                (auth)
//	POST   /users/me/avatar    → upload avatar                 (auth)
//	DELETE /users/me/avatar    → remove avatar                 (auth)
//	POST   /tasks              → create task                   (auth)
//	GET    /tasks              → list tasks                    (auth)
//	GET    /tasks/{id}         → fetch task                    (auth)
//	PATCH  /tasks/{id}         → update task                   (auth)
//	DELETE /tasks/{id}         → delete task                   (auth)
//
// MIDDLEWARE ORDER MATTERS: RequestID and RealIP run first so the logger
// and everything after them see the enriched request; Recoverer wraps the
// lot so a panicking handler becomes a 500, not a dead process.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	users, sessions, tasks := s.db.Users(), s.db.Sessions(), s.db.Tasks()

	userService := service.NewUserService(users, sessions, tokens, passwords, s.mail, s.logger)
	taskService := service.NewTaskService(tasks, s.logger)

	userHandler := handler.NewUserHandler(userService, s.logger)
	taskHandler := handler.NewTaskHandler(taskService, s.logger)

	requireAuth := auth.RequireAuth(tokens, users, sessions)

	s.router.Route("/users", func(r chi.Router) {
		r.Post("/", userHandler.HandleSignup)
		r.Post("/login", userHandler.HandleLogin)
		r.Get("/{id}/avatar", userHandler.HandleGetAvatar)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", userHandler.HandleLogout)
			r.Post("/logout-all", userHandler.HandleLogoutAll)
			r.Get("/me", userHandler.HandleMe)
			r.Patch("/me", userHandler.HandleUpdateMe)
			r.Delete("/me", userHandler.HandleDeleteMe)
			r.Post("/me/avatar", userHandler.HandleUploadAvatar)
			r.Delete("/me/avatar", userHandler.HandleDeleteAvatar)
		})
	})

	s.router.Route("/tasks", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", taskHandler.HandleCreate)
		r.Get("/", taskHandler.HandleList)
		r.Get("/{id}", taskHandler.HandleGetByID)
		r.Patch("/{id}", taskHandler.HandleUpdate)
		r.Delete("/{id}", taskHandler.HandleDelete)
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, give in-flight requests 30
// seconds, drain pending notification emails, close the database.
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.mail.Wait()

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
