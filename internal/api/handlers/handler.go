// handler.go — общие вспомогательные функции HTTP-обработчиков.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apierrors "github.com/arturkryukov/arkhiv/collect-module/internal/api/errors"
	"github.com/arturkryukov/arkhiv/collect-module/internal/repository"
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса в dst. При ошибке пишет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return false
	}
	return true
}

// writeRepositoryError сопоставляет ошибки репозитория с HTTP-ответами.
// notFoundMsg используется для ErrNotFound, остальные ошибки — 500.
func writeRepositoryError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		apierrors.NotFound(w, notFoundMsg)
	case errors.Is(err, repository.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
