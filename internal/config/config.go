// Пакет config — загрузка и валидация конфигурации Collect Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Collect Module.
type Config struct {
	// Порт HTTP-сервера (диапазон 8020-8029)
	Port int
	// Номер тенанта, от имени которого работает модуль
	Tenant int
	// Путь к корневой директории workspace (контейнеры транзакций)
	WorkspaceDir string

	// PostgreSQL — реестр транзакций и проектов
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// MongoDB — хранилище метаданных (units, object groups)
	MongoURI      string
	MongoDatabase string

	// Базовый URL платформы долговременного хранения (реестр процессов + журнал операций)
	PlatformURL string
	// Путь к CA-сертификату для TLS платформы (опционально)
	PlatformCACert string

	// URL JWKS endpoint для проверки JWT (пустая строка — аутентификация выключена)
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string

	// Размер батча для CSV-обновлений, удаления units и выборок из журнала операций
	BatchSize int
	// Интервал автоматической сверки статусов отправленных транзакций
	ReconcileInterval time.Duration
	// Максимальный размер загружаемого архива в байтах
	MaxUploadSize int64

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics (CM_DEPHEALTH_GROUP)
	DephealthGroup string

	// Таймаут graceful shutdown HTTP-сервера.
	// Должен быть меньше K8s terminationGracePeriodSeconds.
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// CM_PORT — порт HTTP-сервера (по умолчанию 8020)
	port, err := getEnvInt("CM_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("CM_PORT: %w", err)
	}
	if port < 8020 || port > 8029 {
		return nil, fmt.Errorf("CM_PORT: значение %d вне допустимого диапазона 8020-8029", port)
	}
	cfg.Port = port

	// CM_TENANT — номер тенанта (по умолчанию 0)
	cfg.Tenant, err = getEnvInt("CM_TENANT", 0)
	if err != nil {
		return nil, fmt.Errorf("CM_TENANT: %w", err)
	}
	if cfg.Tenant < 0 {
		return nil, fmt.Errorf("CM_TENANT: значение должно быть неотрицательным")
	}

	// CM_WORKSPACE_DIR — обязательный
	cfg.WorkspaceDir, err = getEnvRequired("CM_WORKSPACE_DIR")
	if err != nil {
		return nil, err
	}

	// --- PostgreSQL ---
	cfg.DBHost, err = getEnvRequired("CM_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("CM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CM_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("CM_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("CM_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("CM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("CM_DB_SSLMODE", "disable")

	// --- MongoDB ---
	cfg.MongoURI, err = getEnvRequired("CM_MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDatabase = getEnvDefault("CM_MONGO_DATABASE", "collect")

	// CM_PLATFORM_URL — обязательный
	cfg.PlatformURL, err = getEnvRequired("CM_PLATFORM_URL")
	if err != nil {
		return nil, err
	}

	// CM_PLATFORM_CA_CERT — CA-сертификат платформы (опционально)
	cfg.PlatformCACert = getEnvDefault("CM_PLATFORM_CA_CERT", "")

	// CM_JWKS_URL — опциональный: пустое значение отключает аутентификацию
	cfg.JWKSUrl = getEnvDefault("CM_JWKS_URL", "")
	cfg.JWKSCACert = getEnvDefault("CM_JWKS_CA_CERT", "")

	// CM_BATCH_SIZE — размер батча (по умолчанию 1000)
	cfg.BatchSize, err = getEnvInt("CM_BATCH_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("CM_BATCH_SIZE: %w", err)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("CM_BATCH_SIZE: значение должно быть положительным")
	}

	// CM_RECONCILE_INTERVAL — интервал сверки (по умолчанию 5m)
	cfg.ReconcileInterval, err = getEnvDuration("CM_RECONCILE_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CM_RECONCILE_INTERVAL: %w", err)
	}

	// CM_MAX_UPLOAD_SIZE — максимальный размер архива (по умолчанию 10 GiB)
	cfg.MaxUploadSize, err = getEnvInt64("CM_MAX_UPLOAD_SIZE", 10*1024*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("CM_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("CM_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	// CM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CM_LOG_LEVEL: %w", err)
	}

	// CM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// CM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("CM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// CM_DEPHEALTH_GROUP — имя группы в метриках topologymetrics (по умолчанию "collect-module")
	cfg.DephealthGroup = getEnvDefault("CM_DEPHEALTH_GROUP", "collect-module")

	// CM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 15s)
	cfg.ShutdownTimeout, err = getEnvDuration("CM_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration значение переменной окружения
// или значение по умолчанию. Формат: "30s", "5m", "1h".
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("длительность должна быть положительной: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", s)
	}
}
