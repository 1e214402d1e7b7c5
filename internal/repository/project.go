// project.go — репозиторий проектов.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
)

// ProjectRepository — контракт доступа к проектам.
type ProjectRepository interface {
	Create(ctx context.Context, p *model.Project) error
	GetByID(ctx context.Context, id string) (*model.Project, error)
	List(ctx context.Context, tenant int) ([]*model.Project, error)
	Update(ctx context.Context, p *model.Project) error
	Delete(ctx context.Context, id string) error
}

// PgProjectRepository — реализация ProjectRepository поверх PostgreSQL.
type PgProjectRepository struct {
	db DBTX
}

// NewProjectRepository создаёт репозиторий проектов.
func NewProjectRepository(db DBTX) *PgProjectRepository {
	return &PgProjectRepository{db: db}
}

const projectColumns = `id, name, tenant, static_attachment_id, dynamic_attachment_key, created_at, updated_at`

// Create сохраняет новый проект.
func (r *PgProjectRepository) Create(ctx context.Context, p *model.Project) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO projects (id, name, tenant, static_attachment_id, dynamic_attachment_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Tenant, p.StaticAttachmentID, p.DynamicAttachmentKey, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка вставки проекта: %w", err)
	}
	return nil
}

// GetByID возвращает проект по id.
func (r *PgProjectRepository) GetByID(ctx context.Context, id string) (*model.Project, error) {
	row := r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// List возвращает проекты тенанта, отсортированные по дате создания.
func (r *PgProjectRepository) List(ctx context.Context, tenant int) ([]*model.Project, error) {
	rows, err := r.db.Query(ctx, `SELECT `+projectColumns+` FROM projects WHERE tenant = $1 ORDER BY created_at`, tenant)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки проектов: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения проектов: %w", err)
	}
	return projects, nil
}

// Update обновляет имя и точки прикрепления проекта.
func (r *PgProjectRepository) Update(ctx context.Context, p *model.Project) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE projects
		SET name = $2, static_attachment_id = $3, dynamic_attachment_key = $4, updated_at = $5
		WHERE id = $1`,
		p.ID, p.Name, p.StaticAttachmentID, p.DynamicAttachmentKey, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления проекта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет проект.
func (r *PgProjectRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления проекта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanProject читает одну строку проекта.
func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	err := row.Scan(&p.ID, &p.Name, &p.Tenant, &p.StaticAttachmentID, &p.DynamicAttachmentKey, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения проекта: %w", err)
	}
	return &p, nil
}
