// Пакет server — HTTP-сервер Collect Module: маршрутизация, middleware,
// graceful shutdown.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturkryukov/arkhiv/collect-module/internal/api/handlers"
	"github.com/arturkryukov/arkhiv/collect-module/internal/api/middleware"
	"github.com/arturkryukov/arkhiv/collect-module/internal/config"
)

// Handlers — набор доменных обработчиков, монтируемых сервером.
type Handlers struct {
	Projects     *handlers.ProjectsHandler
	Transactions *handlers.TransactionsHandler
	Units        *handlers.UnitsHandler
	Health       *handlers.HealthHandler
}

// Server — HTTP-сервер Collect Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// auth — middleware проверки JWT; nil отключает аутентификацию.
func New(cfg *config.Config, h Handlers, auth *middleware.JWTAuth, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Health и metrics — без аутентификации (Kubernetes probes, Prometheus)
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Middleware())
			r.Use(middleware.RequireTenant(cfg.Tenant))
		}

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", h.Projects.Create)
			r.Get("/", h.Projects.List)
			r.Get("/{projectId}", h.Projects.Get)
			r.Put("/{projectId}", h.Projects.Update)
			r.Delete("/{projectId}", h.Projects.Delete)
			r.Post("/{projectId}/transactions", h.Transactions.Create)
			r.Get("/{projectId}/transactions", h.Transactions.List)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/reconcile", h.Transactions.Reconcile)
			r.Get("/{id}", h.Transactions.Get)
			r.Delete("/{id}", h.Transactions.Delete)
			r.Put("/{id}/status", h.Transactions.ChangeStatus)
			r.Post("/{id}/upload", h.Transactions.Upload)
		})

		r.Route("/units", func(r chi.Router) {
			r.Get("/{unitId}", h.Units.Get)
			r.Post("/{unitId}/objects/{usage}/{version}", h.Units.AttachObject)
			r.Get("/{unitId}/objects/{usage}/{version}/binary", h.Units.DownloadObject)
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
		// WriteTimeout не выставляется: выдача крупных объектов
		// и приём архивов не должны обрываться по таймауту записи
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом
// из конфигурации.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
