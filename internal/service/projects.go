// projects.go — CRUD проектов: контекстов приёма с точками прикрепления.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
	"github.com/arturkryukov/arkhiv/collect-module/internal/identity"
	"github.com/arturkryukov/arkhiv/collect-module/internal/repository"
)

// ProjectService управляет проектами.
type ProjectService struct {
	projects repository.ProjectRepository
	issuer   identity.Issuer
	tenant   int
	logger   *slog.Logger
}

// NewProjectService создаёт сервис проектов.
func NewProjectService(projects repository.ProjectRepository, issuer identity.Issuer, tenant int, logger *slog.Logger) *ProjectService {
	return &ProjectService{
		projects: projects,
		issuer:   issuer,
		tenant:   tenant,
		logger:   logger.With(slog.String("component", "project_service")),
	}
}

// Create создаёт проект.
func (s *ProjectService) Create(ctx context.Context, name, staticAttachmentID, dynamicAttachmentKey string) (*model.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("имя проекта пусто")
	}

	now := time.Now().UTC()
	project := &model.Project{
		ID:                   s.issuer.NewID(identity.KindProject),
		Name:                 name,
		Tenant:               s.tenant,
		StaticAttachmentID:   staticAttachmentID,
		DynamicAttachmentKey: dynamicAttachmentKey,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("создание проекта: %w", err)
	}

	s.logger.Info("проект создан", slog.String("project_id", project.ID))
	return project, nil
}

// Get возвращает проект по id.
func (s *ProjectService) Get(ctx context.Context, id string) (*model.Project, error) {
	return s.projects.GetByID(ctx, id)
}

// List возвращает проекты тенанта.
func (s *ProjectService) List(ctx context.Context) ([]*model.Project, error) {
	return s.projects.List(ctx, s.tenant)
}

// Update обновляет имя и точки прикрепления проекта.
func (s *ProjectService) Update(ctx context.Context, id, name, staticAttachmentID, dynamicAttachmentKey string) (*model.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("имя проекта пусто")
	}

	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("проект %s: %w", id, err)
	}
	project.Name = name
	project.StaticAttachmentID = staticAttachmentID
	project.DynamicAttachmentKey = dynamicAttachmentKey
	project.UpdatedAt = time.Now().UTC()

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("обновление проекта %s: %w", id, err)
	}
	return project, nil
}

// Delete удаляет проект.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	if err := s.projects.Delete(ctx, id); err != nil {
		return fmt.Errorf("удаление проекта %s: %w", id, err)
	}
	s.logger.Info("проект удалён", slog.String("project_id", id))
	return nil
}
