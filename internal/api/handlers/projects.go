// projects.go — HTTP handlers проектов: CRUD в пределах тенанта.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/arkhiv/collect-module/internal/api/errors"
	"github.com/arturkryukov/arkhiv/collect-module/internal/service"
)

// projectRequest — тело запроса создания и обновления проекта.
type projectRequest struct {
	Name                 string `json:"name"`
	StaticAttachmentID   string `json:"static_attachment_id,omitempty"`
	DynamicAttachmentKey string `json:"dynamic_attachment_key,omitempty"`
}

// ProjectsHandler — обработчик endpoints проектов.
type ProjectsHandler struct {
	projects *service.ProjectService
	logger   *slog.Logger
}

// NewProjectsHandler создаёт обработчик endpoints проектов.
func NewProjectsHandler(projects *service.ProjectService, logger *slog.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projects: projects,
		logger:   logger.With(slog.String("component", "projects_handler")),
	}
}

// Create обрабатывает POST /api/v1/projects.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		apierrors.ValidationError(w, "Поле 'name' обязательно")
		return
	}

	project, err := h.projects.Create(r.Context(), req.Name, req.StaticAttachmentID, req.DynamicAttachmentKey)
	if err != nil {
		h.logger.Error("Ошибка создания проекта", slog.String("error", err.Error()))
		writeRepositoryError(w, err, "Проект не найден")
		return
	}

	writeJSON(w, http.StatusCreated, project)
}

// List обрабатывает GET /api/v1/projects.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения списка проектов", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": projects,
		"total":   len(projects),
	})
}

// Get обрабатывает GET /api/v1/projects/{projectId}.
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectId")

	project, err := h.projects.Get(r.Context(), id)
	if err != nil {
		writeRepositoryError(w, err, fmt.Sprintf("Проект %s не найден", id))
		return
	}

	writeJSON(w, http.StatusOK, project)
}

// Update обрабатывает PUT /api/v1/projects/{projectId}.
func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectId")

	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		apierrors.ValidationError(w, "Поле 'name' обязательно")
		return
	}

	project, err := h.projects.Update(r.Context(), id, req.Name, req.StaticAttachmentID, req.DynamicAttachmentKey)
	if err != nil {
		writeRepositoryError(w, err, fmt.Sprintf("Проект %s не найден", id))
		return
	}

	writeJSON(w, http.StatusOK, project)
}

// Delete обрабатывает DELETE /api/v1/projects/{projectId}.
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectId")

	if err := h.projects.Delete(r.Context(), id); err != nil {
		writeRepositoryError(w, err, fmt.Sprintf("Проект %s не найден", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
