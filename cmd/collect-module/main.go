// Точка входа Collect Module — модуля приёма архивного контента.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arturkryukov/arkhiv/collect-module/internal/api/handlers"
	"github.com/arturkryukov/arkhiv/collect-module/internal/api/middleware"
	"github.com/arturkryukov/arkhiv/collect-module/internal/config"
	"github.com/arturkryukov/arkhiv/collect-module/internal/database"
	"github.com/arturkryukov/arkhiv/collect-module/internal/format"
	"github.com/arturkryukov/arkhiv/collect-module/internal/identity"
	"github.com/arturkryukov/arkhiv/collect-module/internal/platform"
	"github.com/arturkryukov/arkhiv/collect-module/internal/repository"
	"github.com/arturkryukov/arkhiv/collect-module/internal/server"
	"github.com/arturkryukov/arkhiv/collect-module/internal/service"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/metadata"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/workspace"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Collect Module запускается",
		slog.String("version", config.Version),
		slog.Int("tenant", cfg.Tenant),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. PostgreSQL — реестр транзакций и проектов
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка применения миграций", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. MongoDB — хранилище метаданных (units, object groups)
	mongoClient, store, err := metadata.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Error("Ошибка подключения к MongoDB", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if dErr := mongoClient.Disconnect(context.Background()); dErr != nil {
			logger.Warn("Ошибка отключения от MongoDB", slog.String("error", dErr.Error()))
		}
	}()

	// 3. Workspace — контейнеры транзакций на диске
	ws, err := workspace.New(cfg.WorkspaceDir)
	if err != nil {
		logger.Error("Ошибка инициализации workspace", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Клиент платформы долговременного хранения
	platformClient, err := platform.New(cfg.PlatformURL, cfg.PlatformCACert, logger)
	if err != nil {
		logger.Error("Ошибка инициализации клиента платформы", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Репозитории и сервисы
	issuer := identity.NewUUIDIssuer(cfg.Tenant)
	projectRepo := repository.NewProjectRepository(pool)
	txRepo := repository.NewTransactionRepository(pool)

	projectSvc := service.NewProjectService(projectRepo, issuer, cfg.Tenant, logger)
	txSvc := service.NewTransactionService(txRepo, projectRepo, store, ws, issuer, cfg.BatchSize, logger)
	objectGroupSvc := service.NewObjectGroupService(store, ws, issuer, format.NewIdentifier(), logger)
	pathSvc := service.NewPathService(store, cfg.BatchSize, logger)
	ingestSvc := service.NewIngestService(store, ws, issuer, objectGroupSvc, pathSvc, logger)
	reconcileSvc := service.NewReconcileService(
		txRepo, platformClient, platformClient,
		cfg.Tenant, cfg.BatchSize, cfg.ReconcileInterval, logger,
	)

	// 6. Фоновые процессы

	// 6.1 Периодическая сверка статусов отправленных транзакций
	reconcileSvc.Start(ctx)
	defer reconcileSvc.Stop()

	// 6.2 topologymetrics — мониторинг зависимостей
	db := stdlib.OpenDBFromPool(pool)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"collect-module",
		cfg.DephealthGroup,
		db,
		cfg.DatabaseDSN(),
		cfg.PlatformURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 7. JWT-аутентификация (опционально)
	var auth *middleware.JWTAuth
	if cfg.JWKSUrl != "" {
		auth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:       cfg.JWKSUrl,
			CACertPath:    cfg.JWKSCACert,
			ClientTimeout: 10 * time.Second,
			JWTLeeway:     time.Minute,
		}, logger)
		if err != nil {
			logger.Error("Ошибка инициализации JWT-аутентификации", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer auth.Close()
		logger.Info("JWT-аутентификация включена", slog.String("jwks_url", cfg.JWKSUrl))
	} else {
		logger.Warn("CM_JWKS_URL не задан, аутентификация выключена")
	}

	// 8. Handlers
	h := server.Handlers{
		Projects: handlers.NewProjectsHandler(projectSvc, logger),
		Transactions: handlers.NewTransactionsHandler(
			txSvc, projectSvc, ingestSvc, reconcileSvc, cfg.MaxUploadSize, logger,
		),
		Units: handlers.NewUnitsHandler(store, objectGroupSvc, txSvc, cfg.MaxUploadSize, logger),
		Health: handlers.NewHealthHandler(
			ws.RootDir(),
			func(ctx context.Context) error { return database.Ready(ctx, pool) },
			func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
		),
	}

	// 9. HTTP-сервер
	srv := server.New(cfg, h, auth, logger)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
