// paths.go — восстановление иерархических путей единиц и батчевое
// применение CSV-переопределений метаданных.
package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/arturkryukov/arkhiv/collect-module/internal/storage/metadata"
)

// ResolvedPaths — двусторонний справочник путей транзакции,
// поддерживаемый как две обычные односторонние карты.
type ResolvedPaths struct {
	// PathToID — иерархический путь → id единицы
	PathToID map[string]string
	// IDToPath — id единицы → иерархический путь
	IDToPath map[string]string
}

// PathService восстанавливает пути и применяет CSV-переопределения.
type PathService struct {
	store     metadata.Store
	batchSize int
	logger    *slog.Logger
}

// NewPathService создаёт сервис путей.
// batchSize ограничивает размер одного батча обновлений (CM_BATCH_SIZE).
func NewPathService(store metadata.Store, batchSize int, logger *slog.Logger) *PathService {
	return &PathService{
		store:     store,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "path_service")),
	}
}

// ResolvePaths восстанавливает пути всех единиц транзакции.
//
// Единицы сортируются по длине цепочки предков (мельче — раньше),
// поэтому к моменту вычисления пути единицы путь её родителя уже
// известен. Совпадающие пути не различаются: последняя запись побеждает.
func (s *PathService) ResolvePaths(ctx context.Context, transactionID string) (*ResolvedPaths, error) {
	summaries, err := s.store.ListUnitSummaries(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("выборка единиц транзакции %s: %w", transactionID, err)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return len(summaries[i].AncestorIDs) < len(summaries[j].AncestorIDs)
	})

	resolved := &ResolvedPaths{
		PathToID: make(map[string]string, len(summaries)),
		IDToPath: make(map[string]string, len(summaries)),
	}
	for _, u := range summaries {
		p := u.Title
		if u.ParentID != "" {
			parentPath, ok := resolved.IDToPath[u.ParentID]
			if !ok {
				// Родитель вне транзакции или потерян: единица трактуется как корень
				s.logger.Warn("путь родителя не найден, единица считается корневой",
					slog.String("unit_id", u.ID),
					slog.String("parent_id", u.ParentID),
				)
			} else {
				p = parentPath + "/" + u.Title
			}
		}
		resolved.PathToID[p] = u.ID
		resolved.IDToPath[u.ID] = p
	}
	return resolved, nil
}

// ApplyCSV применяет CSV-переопределение метаданных к разрешённым путям.
//
// Формат: заголовок + строки данных, разделитель ";", поля обрезаются.
// Первая колонка — иерархический путь единицы, остальные колонки —
// буквальные переопределения поле→значение. Строки применяются
// батчами фиксированного размера, строго последовательно; первый
// неуспешный батч останавливает применение, предыдущие остаются
// зафиксированными.
func (s *PathService) ApplyCSV(ctx context.Context, r io.Reader, resolved *ResolvedPaths, attachmentPrefix string) error {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return &NoUpdatesAppliedError{}
	}
	if err != nil {
		return fmt.Errorf("чтение заголовка CSV: %w", err)
	}
	if len(header) < 2 {
		return fmt.Errorf("заголовок CSV должен содержать колонку пути и хотя бы одно поле")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var (
		batch    []metadata.FieldUpdate
		batchNum int
		applied  int
		line     = 1
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("чтение строки CSV: %w", err)
		}
		line++

		// Пустые строки разделителей пропускаются
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		p := strings.TrimSpace(record[0])
		if attachmentPrefix != "" {
			p = attachmentPrefix + "/" + p
		}
		unitID, ok := resolved.PathToID[p]
		if !ok {
			return &UnresolvedPathError{Path: p, Line: line}
		}

		fields := make(map[string]any, len(header)-1)
		for i := 1; i < len(header) && i < len(record); i++ {
			fields[header[i]] = strings.TrimSpace(record[i])
		}

		batch = append(batch, metadata.FieldUpdate{ID: unitID, Fields: fields})
		applied++

		if len(batch) >= s.batchSize {
			if err := s.flushBatch(ctx, batch, batchNum); err != nil {
				return err
			}
			batch = batch[:0]
			batchNum++
		}
	}

	if applied == 0 {
		return &NoUpdatesAppliedError{}
	}
	if len(batch) > 0 {
		if err := s.flushBatch(ctx, batch, batchNum); err != nil {
			return err
		}
		batchNum++
	}

	s.logger.Info("переопределение метаданных применено",
		slog.Int("rows", applied),
		slog.Int("batches", batchNum),
	)
	return nil
}

// flushBatch отправляет один батч обновлений и проверяет поштучный итог.
func (s *PathService) flushBatch(ctx context.Context, batch []metadata.FieldUpdate, batchNum int) error {
	outcome, err := s.store.BulkSetUnitFields(ctx, batch)
	if err != nil {
		return fmt.Errorf("батч %d: %w", batchNum, err)
	}
	if outcome.Matched != int64(len(batch)) {
		return &BulkUpdateError{Batch: batchNum, Expected: len(batch), Matched: outcome.Matched}
	}
	return nil
}
