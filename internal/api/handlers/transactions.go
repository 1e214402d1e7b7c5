// transactions.go — HTTP handlers транзакций: жизненный цикл, загрузка
// архива, одноразовая сверка.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/arkhiv/collect-module/internal/api/errors"
	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/status"
	"github.com/arturkryukov/arkhiv/collect-module/internal/service"
)

// TransactionsHandler — обработчик endpoints транзакций.
type TransactionsHandler struct {
	transactions *service.TransactionService
	projects     *service.ProjectService
	ingest       *service.IngestService
	reconcile    *service.ReconcileService
	// maxUploadSize — лимит размера загружаемого архива в байтах
	maxUploadSize int64
	logger        *slog.Logger
}

// NewTransactionsHandler создаёт обработчик endpoints транзакций.
func NewTransactionsHandler(
	transactions *service.TransactionService,
	projects *service.ProjectService,
	ingest *service.IngestService,
	reconcile *service.ReconcileService,
	maxUploadSize int64,
	logger *slog.Logger,
) *TransactionsHandler {
	return &TransactionsHandler{
		transactions:  transactions,
		projects:      projects,
		ingest:        ingest,
		reconcile:     reconcile,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "transactions_handler")),
	}
}

// Create обрабатывает POST /api/v1/projects/{projectId}/transactions.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		apierrors.ValidationError(w, "Поле 'name' обязательно")
		return
	}

	tx, err := h.transactions.Create(r.Context(), projectID, req.Name)
	if err != nil {
		writeRepositoryError(w, err, fmt.Sprintf("Проект %s не найден", projectID))
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// List обрабатывает GET /api/v1/projects/{projectId}/transactions.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")

	txs, err := h.transactions.ListByProject(r.Context(), projectID)
	if err != nil {
		writeRepositoryError(w, err, fmt.Sprintf("Проект %s не найден", projectID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": txs,
		"total":   len(txs),
	})
}

// Get обрабатывает GET /api/v1/transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tx, err := h.transactions.Get(r.Context(), id)
	if err != nil {
		writeRepositoryError(w, err, fmt.Sprintf("Транзакция %s не найдена", id))
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// Delete обрабатывает DELETE /api/v1/transactions/{id}.
// Удаляет контейнер workspace, единицы, группы объектов и запись реестра.
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.transactions.Delete(r.Context(), id); err != nil {
		h.logger.Error("Ошибка удаления транзакции",
			slog.String("transaction_id", id),
			slog.String("error", err.Error()),
		)
		writeRepositoryError(w, err, fmt.Sprintf("Транзакция %s не найдена", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangeStatus обрабатывает PUT /api/v1/transactions/{id}/status.
// Тело: {"status": "READY"}. Переход в SENT может дополнительно нести
// идентификатор операции платформы: {"status": "SENT", "operation_id": "..."}.
func (h *TransactionsHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Status      string `json:"status"`
		OperationID string `json:"operation_id,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	target := status.Status(req.Status)
	if !status.Valid(target) {
		apierrors.ValidationError(w, fmt.Sprintf("Неизвестный статус %q", req.Status))
		return
	}

	// Идентификатор операции привязывается до перехода в SENT:
	// сверка читает его сразу после смены статуса.
	if req.OperationID != "" {
		if err := h.transactions.AttachOperation(r.Context(), id, req.OperationID); err != nil {
			writeRepositoryError(w, err, fmt.Sprintf("Транзакция %s не найдена", id))
			return
		}
	}

	tx, err := h.transactions.ChangeStatus(r.Context(), id, target)
	if err != nil {
		var illegal *status.IllegalTransitionError
		var empty *service.EmptyTransactionError
		switch {
		case errors.As(err, &illegal):
			apierrors.InvalidTransition(w, illegal.Error())
		case errors.As(err, &empty):
			apierrors.EmptyTransaction(w, empty.Error())
		default:
			writeRepositoryError(w, err, fmt.Sprintf("Транзакция %s не найдена", id))
		}
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// Upload обрабатывает POST /api/v1/transactions/{id}/upload.
// Тело запроса — ZIP-архив. Допустимо только для открытой транзакции.
func (h *TransactionsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tx, err := h.transactions.Get(r.Context(), id)
	if err != nil {
		writeRepositoryError(w, err, fmt.Sprintf("Транзакция %s не найдена", id))
		return
	}
	if tx.Status != status.StatusOpen {
		apierrors.Conflict(w, fmt.Sprintf("Транзакция %s имеет статус %s, загрузка недоступна", id, tx.Status))
		return
	}

	project, err := h.projects.Get(r.Context(), tx.ProjectID)
	if err != nil {
		writeRepositoryError(w, err, fmt.Sprintf("Проект %s не найден", tx.ProjectID))
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	defer body.Close()

	result, err := h.ingest.Ingest(r.Context(), body, tx, project)
	if err != nil {
		h.writeIngestError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeIngestError сопоставляет ошибки приёма архива с HTTP-ответами.
func (h *TransactionsHandler) writeIngestError(w http.ResponseWriter, id string, err error) {
	var maxBytes *http.MaxBytesError
	var emptyArchive *service.EmptyArchiveError
	var unresolved *service.UnresolvedPathError
	var noUpdates *service.NoUpdatesAppliedError

	switch {
	case errors.As(err, &maxBytes):
		apierrors.FileTooLarge(w, fmt.Sprintf("Архив превышает лимит %d байт", h.maxUploadSize))
	case errors.As(err, &emptyArchive):
		apierrors.EmptyArchive(w, emptyArchive.Error())
	case errors.As(err, &unresolved):
		apierrors.UnresolvedPath(w, unresolved.Error())
	case errors.As(err, &noUpdates):
		apierrors.ValidationError(w, noUpdates.Error())
	default:
		h.logger.Error("Ошибка приёма архива",
			slog.String("transaction_id", id),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка приёма архива")
	}
}

// Reconcile обрабатывает POST /api/v1/transactions/reconcile.
// Одноразовый запуск сверки статусов отправленных транзакций.
func (h *TransactionsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, skipped, err := h.reconcile.RunOnce(r.Context())
	if skipped {
		apierrors.ReconcileInProgress(w, "Сверка уже выполняется")
		return
	}
	if err != nil {
		var missing *service.MissingOperationError
		if errors.As(err, &missing) {
			apierrors.Conflict(w, missing.Error())
			return
		}
		h.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка сверки статусов")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
