// transactions.go — жизненный цикл транзакций: создание, охраняемые
// переходы статусов, удаление с очисткой хранилищ.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/status"
	"github.com/arturkryukov/arkhiv/collect-module/internal/identity"
	"github.com/arturkryukov/arkhiv/collect-module/internal/repository"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/metadata"
	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/workspace"
)

// TransactionService управляет жизненным циклом транзакций.
type TransactionService struct {
	transactions repository.TransactionRepository
	projects     repository.ProjectRepository
	store        metadata.Store
	ws           *workspace.Store
	issuer       identity.Issuer
	batchSize    int
	logger       *slog.Logger
}

// NewTransactionService создаёт сервис транзакций.
func NewTransactionService(
	transactions repository.TransactionRepository,
	projects repository.ProjectRepository,
	store metadata.Store,
	ws *workspace.Store,
	issuer identity.Issuer,
	batchSize int,
	logger *slog.Logger,
) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		projects:     projects,
		store:        store,
		ws:           ws,
		issuer:       issuer,
		batchSize:    batchSize,
		logger:       logger.With(slog.String("component", "transaction_service")),
	}
}

// Create создаёт транзакцию в статусе OPEN.
// Проект обязан существовать.
func (s *TransactionService) Create(ctx context.Context, projectID, name string) (*model.Transaction, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("проект %s: %w", projectID, err)
	}

	now := time.Now().UTC()
	tx := &model.Transaction{
		ID:        s.issuer.NewID(identity.KindTransaction),
		Name:      name,
		ProjectID: project.ID,
		Tenant:    project.Tenant,
		Status:    status.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("создание транзакции: %w", err)
	}

	s.logger.Info("транзакция создана",
		slog.String("transaction_id", tx.ID),
		slog.String("project_id", project.ID),
	)
	return tx, nil
}

// Get возвращает транзакцию по id.
func (s *TransactionService) Get(ctx context.Context, id string) (*model.Transaction, error) {
	return s.transactions.GetByID(ctx, id)
}

// ListByProject возвращает транзакции проекта.
func (s *TransactionService) ListByProject(ctx context.Context, projectID string) ([]*model.Transaction, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, fmt.Errorf("проект %s: %w", projectID, err)
	}
	return s.transactions.ListByProject(ctx, projectID)
}

// ChangeStatus выполняет охраняемый переход статуса.
// Переход в READY дополнительно требует непустого контейнера:
// пустую транзакцию отправлять нечем.
func (s *TransactionService) ChangeStatus(ctx context.Context, id string, target status.Status) (*model.Transaction, error) {
	if !status.Valid(target) {
		return nil, fmt.Errorf("неизвестный статус %q", target)
	}

	tx, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("транзакция %s: %w", id, err)
	}
	if err := status.CheckTransition(tx.ID, tx.Status, target); err != nil {
		return nil, err
	}
	if target == status.StatusReady && !s.ws.ContainerExists(tx.ID) {
		return nil, &EmptyTransactionError{TransactionID: tx.ID}
	}

	if err := s.transactions.UpdateStatus(ctx, id, target); err != nil {
		return nil, fmt.Errorf("обновление статуса транзакции %s: %w", id, err)
	}

	s.logger.Info("статус транзакции изменён",
		slog.String("transaction_id", id),
		slog.String("from", string(tx.Status)),
		slog.String("to", string(target)),
	)
	tx.Status = target
	tx.UpdatedAt = time.Now().UTC()
	return tx, nil
}

// AttachOperation записывает идентификатор операции платформы,
// присвоенный при отправке.
func (s *TransactionService) AttachOperation(ctx context.Context, id, operationID string) error {
	if operationID == "" {
		return fmt.Errorf("идентификатор операции пуст")
	}
	if err := s.transactions.SetOperationID(ctx, id, operationID); err != nil {
		return fmt.Errorf("привязка операции к транзакции %s: %w", id, err)
	}
	s.logger.Info("операция платформы привязана",
		slog.String("transaction_id", id),
		slog.String("operation_id", operationID),
	)
	return nil
}

// Delete удаляет транзакцию целиком: контейнер workspace, единицы
// и их группы объектов (батчами), затем запись реестра.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	tx, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("транзакция %s: %w", id, err)
	}

	if err := s.ws.DeleteContainer(tx.ID, true); err != nil {
		return fmt.Errorf("удаление контейнера транзакции %s: %w", tx.ID, err)
	}

	err = s.store.EachUnitRefBatch(ctx, tx.ID, s.batchSize, func(refs []model.UnitRef) error {
		unitIDs := make([]string, 0, len(refs))
		var groupIDs []string
		for _, ref := range refs {
			unitIDs = append(unitIDs, ref.ID)
			if ref.ObjectGroupID != "" {
				groupIDs = append(groupIDs, ref.ObjectGroupID)
			}
		}
		if len(groupIDs) > 0 {
			if err := s.store.DeleteObjectGroups(ctx, groupIDs); err != nil {
				return fmt.Errorf("удаление групп объектов: %w", err)
			}
		}
		if err := s.store.DeleteUnits(ctx, unitIDs); err != nil {
			return fmt.Errorf("удаление единиц: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("очистка метаданных транзакции %s: %w", tx.ID, err)
	}

	if err := s.transactions.Delete(ctx, tx.ID); err != nil {
		return fmt.Errorf("удаление записи транзакции %s: %w", tx.ID, err)
	}

	s.logger.Info("транзакция удалена", slog.String("transaction_id", tx.ID))
	return nil
}
