// transaction.go — репозиторий транзакций.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/status"
)

// TransactionRepository — контракт доступа к транзакциям.
type TransactionRepository interface {
	Create(ctx context.Context, t *model.Transaction) error
	GetByID(ctx context.Context, id string) (*model.Transaction, error)
	ListByProject(ctx context.Context, projectID string) ([]*model.Transaction, error)
	ListByStatus(ctx context.Context, tenant int, st status.Status) ([]*model.Transaction, error)
	UpdateStatus(ctx context.Context, id string, st status.Status) error
	SetOperationID(ctx context.Context, id string, operationID string) error
	UpdateStatuses(ctx context.Context, statuses map[string]status.Status) error
	Delete(ctx context.Context, id string) error
}

// PgTransactionRepository — реализация TransactionRepository поверх PostgreSQL.
type PgTransactionRepository struct {
	db DBTX
}

// NewTransactionRepository создаёт репозиторий транзакций.
func NewTransactionRepository(db DBTX) *PgTransactionRepository {
	return &PgTransactionRepository{db: db}
}

const transactionColumns = `id, name, project_id, tenant, status, operation_id, created_at, updated_at`

// Create сохраняет новую транзакцию.
func (r *PgTransactionRepository) Create(ctx context.Context, t *model.Transaction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO transactions (id, name, project_id, tenant, status, operation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.ProjectID, t.Tenant, string(t.Status), t.OperationID, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка вставки транзакции: %w", err)
	}
	return nil
}

// GetByID возвращает транзакцию по id.
func (r *PgTransactionRepository) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// ListByProject возвращает транзакции проекта, от новых к старым.
func (r *PgTransactionRepository) ListByProject(ctx context.Context, projectID string) ([]*model.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки транзакций проекта: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListByStatus возвращает транзакции тенанта в заданном статусе.
// Используется сверкой для выборки отправленных партий.
func (r *PgTransactionRepository) ListByStatus(ctx context.Context, tenant int, st status.Status) ([]*model.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE tenant = $1 AND status = $2 ORDER BY created_at`, tenant, string(st))
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки транзакций по статусу: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// UpdateStatus переводит транзакцию в новый статус.
// Проверка допустимости перехода выполняется на уровне сервиса.
func (r *PgTransactionRepository) UpdateStatus(ctx context.Context, id string, st status.Status) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(st), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса транзакции: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOperationID привязывает идентификатор операции платформы.
func (r *PgTransactionRepository) SetOperationID(ctx context.Context, id string, operationID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions SET operation_id = $2, updated_at = $3 WHERE id = $1`,
		id, operationID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка привязки операции: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatuses массово обновляет статусы по итогам сверки.
// Каждая транзакция обновляется отдельным запросом, отсутствие
// строки не считается ошибкой: транзакцию могли удалить параллельно.
func (r *PgTransactionRepository) UpdateStatuses(ctx context.Context, statuses map[string]status.Status) error {
	now := time.Now().UTC()
	for id, st := range statuses {
		_, err := r.db.Exec(ctx, `
			UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1`,
			id, string(st), now,
		)
		if err != nil {
			return fmt.Errorf("ошибка массового обновления статусов (транзакция %s): %w", id, err)
		}
	}
	return nil
}

// Delete удаляет транзакцию.
func (r *PgTransactionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления транзакции: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanTransaction читает одну строку транзакции.
func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		t  model.Transaction
		st string
	)
	err := row.Scan(&t.ID, &t.Name, &t.ProjectID, &t.Tenant, &st, &t.OperationID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения транзакции: %w", err)
	}
	t.Status = status.Status(st)
	return &t, nil
}

// collectTransactions вычитывает все строки результата.
func collectTransactions(rows pgx.Rows) ([]*model.Transaction, error) {
	var txs []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения транзакций: %w", err)
	}
	return txs, nil
}
