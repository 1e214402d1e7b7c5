// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/arturkryukov/arkhiv/collect-module/internal/config"
)

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "collect-module"

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// DependencyCheck — проверка готовности внешней зависимости.
type DependencyCheck func(ctx context.Context) error

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// workspaceDir — корень workspace (проверка записи)
	workspaceDir string
	// checkPostgres — проверка доступности PostgreSQL
	checkPostgres DependencyCheck
	// checkMongo — проверка доступности MongoDB
	checkMongo DependencyCheck
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(workspaceDir string, checkPostgres, checkMongo DependencyCheck) *HealthHandler {
	return &HealthHandler{
		version:       config.Version,
		workspaceDir:  workspaceDir,
		checkPostgres: checkPostgres,
		checkMongo:    checkMongo,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: PostgreSQL, MongoDB, доступность workspace на запись.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	overallStatus := "ok"
	httpStatus := http.StatusOK

	pgCheck := h.checkDependency(ctx, h.checkPostgres)
	mongoCheck := h.checkDependency(ctx, h.checkMongo)
	wsCheck := h.checkWorkspace()

	for _, check := range []map[string]any{pgCheck, mongoCheck, wsCheck} {
		if check["status"] != "ok" {
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks": map[string]any{
			"postgresql": pgCheck,
			"mongodb":    mongoCheck,
			"workspace":  wsCheck,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// checkDependency выполняет проверку внешней зависимости.
func (h *HealthHandler) checkDependency(ctx context.Context, check DependencyCheck) map[string]any {
	if check == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	if err := check(ctx); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": err.Error(),
		}
	}

	return map[string]any{
		"status": "ok",
	}
}

// checkWorkspace проверяет доступность workspace на запись.
func (h *HealthHandler) checkWorkspace() map[string]any {
	if h.workspaceDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.workspaceDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Workspace недоступен для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}
