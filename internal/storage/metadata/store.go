// Пакет metadata — хранилище документов метаданных (units, object groups)
// в MongoDB. Корректность конкурентных прикреплений бинарных объектов
// опирается на атомарность обновления одного документа в MongoDB:
// замена поля qualifiers выполняется одним $set по _id.
package metadata

import (
	"context"
	"errors"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/model"
)

// Ошибки хранилища метаданных.
var (
	// ErrNotFound — документ не найден.
	ErrNotFound = errors.New("документ не найден")
)

// FieldUpdate — одно независимое обновление "установить поля документа по id".
type FieldUpdate struct {
	// ID — идентификатор документа
	ID string
	// Fields — устанавливаемые поля (имя → значение)
	Fields map[string]any
}

// BulkOutcome — итог батчевого обновления.
type BulkOutcome struct {
	// Matched — число документов, найденных по фильтру
	Matched int64
	// Modified — число фактически изменённых документов
	Modified int64
}

// Store — контракт хранилища метаданных, используемый сервисами.
type Store interface {
	// InsertUnit сохраняет новую единицу.
	InsertUnit(ctx context.Context, unit *model.Unit) error
	// GetUnit возвращает единицу по id (ErrNotFound, если её нет).
	GetUnit(ctx context.Context, id string) (*model.Unit, error)
	// SetUnitFields устанавливает поля единицы одним атомарным обновлением.
	SetUnitFields(ctx context.Context, id string, fields map[string]any) error
	// ListUnitSummaries возвращает проекции всех единиц транзакции
	// (id, название, родитель, цепочка предков).
	ListUnitSummaries(ctx context.Context, transactionID string) ([]model.UnitSummary, error)
	// EachUnitRefBatch обходит единицы транзакции батчами фиксированного
	// размера, передавая каждому вызову fn проекции id + objectGroupId.
	// Ошибка fn прерывает обход.
	EachUnitRefBatch(ctx context.Context, transactionID string, batchSize int, fn func([]model.UnitRef) error) error
	// BulkSetUnitFields выполняет батч независимых обновлений полей единиц
	// одним ordered bulk-запросом и возвращает итог по документам.
	BulkSetUnitFields(ctx context.Context, updates []FieldUpdate) (*BulkOutcome, error)
	// DeleteUnits удаляет единицы по списку id.
	DeleteUnits(ctx context.Context, ids []string) error

	// InsertObjectGroup сохраняет новую группу объектов.
	InsertObjectGroup(ctx context.Context, group *model.ObjectGroup) error
	// GetObjectGroup возвращает группу объектов по id (ErrNotFound, если её нет).
	GetObjectGroup(ctx context.Context, id string) (*model.ObjectGroup, error)
	// ReplaceQualifiers заменяет поле qualifiers группы одним атомарным обновлением.
	ReplaceQualifiers(ctx context.Context, id string, qualifiers []model.Qualifier) error
	// DeleteObjectGroups удаляет группы объектов по списку id.
	DeleteObjectGroups(ctx context.Context, ids []string) error
}
