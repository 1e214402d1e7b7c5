// units.go — HTTP handlers архивных единиц: чтение, прикрепление
// бинарных объектов, выдача содержимого версий.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/arkhiv/collect-module/internal/api/errors"
	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/status"
	"github.com/arturkryukov/arkhiv/collect-module/internal/service"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/metadata"
)

// UnitsHandler — обработчик endpoints архивных единиц.
type UnitsHandler struct {
	store        metadata.Store
	objects      *service.ObjectGroupService
	transactions *service.TransactionService
	// maxUploadSize — лимит размера прикрепляемого объекта в байтах
	maxUploadSize int64
	logger        *slog.Logger
}

// NewUnitsHandler создаёт обработчик endpoints архивных единиц.
func NewUnitsHandler(
	store metadata.Store,
	objects *service.ObjectGroupService,
	transactions *service.TransactionService,
	maxUploadSize int64,
	logger *slog.Logger,
) *UnitsHandler {
	return &UnitsHandler{
		store:         store,
		objects:       objects,
		transactions:  transactions,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "units_handler")),
	}
}

// Get обрабатывает GET /api/v1/units/{unitId}.
func (h *UnitsHandler) Get(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")

	unit, err := h.store.GetUnit(r.Context(), unitID)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Единица %s не найдена", unitID))
			return
		}
		h.logger.Error("Ошибка чтения единицы",
			slog.String("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, unit)
}

// AttachObject обрабатывает POST /api/v1/units/{unitId}/objects/{usage}/{version}.
// Тело запроса — бинарное содержимое. Имя исходного файла передаётся
// в query-параметре filename. Допустимо только пока транзакция открыта.
func (h *UnitsHandler) AttachObject(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")
	usage := model.Usage(chi.URLParam(r, "usage"))

	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный номер версии %q", chi.URLParam(r, "version")))
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		apierrors.ValidationError(w, "Query-параметр 'filename' обязателен")
		return
	}

	unit, err := h.store.GetUnit(r.Context(), unitID)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Единица %s не найдена", unitID))
			return
		}
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	// Прикрепление допустимо только в открытой транзакции
	tx, err := h.transactions.Get(r.Context(), unit.TransactionID)
	if err != nil {
		writeRepositoryError(w, err, fmt.Sprintf("Транзакция %s не найдена", unit.TransactionID))
		return
	}
	if tx.Status != status.StatusOpen {
		apierrors.Conflict(w, fmt.Sprintf("Транзакция %s имеет статус %s, прикрепление недоступно", tx.ID, tx.Status))
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	defer body.Close()

	objVersion, err := h.objects.AttachBinary(r.Context(), unitID, usage, version, filename, body)
	if err != nil {
		h.writeAttachError(w, unitID, err)
		return
	}

	writeJSON(w, http.StatusCreated, objVersion)
}

// writeAttachError сопоставляет ошибки прикрепления с HTTP-ответами.
func (h *UnitsHandler) writeAttachError(w http.ResponseWriter, unitID string, err error) {
	var maxBytes *http.MaxBytesError
	var invalidUsage *service.InvalidUsageError
	var invalidVersion *service.InvalidVersionError
	var duplicate *service.DuplicateVersionError

	switch {
	case errors.As(err, &maxBytes):
		apierrors.FileTooLarge(w, fmt.Sprintf("Объект превышает лимит %d байт", h.maxUploadSize))
	case errors.As(err, &invalidUsage):
		apierrors.ValidationError(w, invalidUsage.Error())
	case errors.As(err, &invalidVersion):
		apierrors.InvalidVersion(w, invalidVersion.Error())
	case errors.As(err, &duplicate):
		apierrors.DuplicateVersion(w, duplicate.Error())
	case errors.Is(err, metadata.ErrNotFound):
		apierrors.NotFound(w, fmt.Sprintf("Единица %s не найдена", unitID))
	default:
		h.logger.Error("Ошибка прикрепления объекта",
			slog.String("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка прикрепления объекта")
	}
}

// DownloadObject обрабатывает GET /api/v1/units/{unitId}/objects/{usage}/{version}/binary.
// Отдаёт содержимое версии потоком.
func (h *UnitsHandler) DownloadObject(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitId")
	usage := model.Usage(chi.URLParam(r, "usage"))

	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный номер версии %q", chi.URLParam(r, "version")))
		return
	}

	rc, objVersion, err := h.objects.OpenVersion(r.Context(), unitID, usage, version)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Объект %s/%d единицы %s не найден", usage, version, unitID))
			return
		}
		h.logger.Error("Ошибка выдачи объекта",
			slog.String("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка выдачи объекта")
		return
	}
	defer rc.Close()

	contentType := "application/octet-stream"
	if objVersion.Format != nil && objVersion.Format.MimeType != "" {
		contentType = objVersion.Format.MimeType
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(objVersion.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", objVersion.FileInfo.Filename))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		// Заголовки уже отправлены, остаётся только залогировать
		h.logger.Error("Ошибка потоковой передачи объекта",
			slog.String("unit_id", unitID),
			slog.String("error", err.Error()),
		)
	}
}
