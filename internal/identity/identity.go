// Пакет identity — выпуск глобально уникальных идентификаторов,
// привязанных к тенанту. Формат: {префикс вида}-{tenant}-{uuid}.
// Уникальность гарантируется UUID v4; упорядоченность не гарантируется.
package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind — вид идентифицируемой сущности.
type Kind string

const (
	// KindUnit — архивная единица
	KindUnit Kind = "au"
	// KindObjectGroup — группа объектов
	KindObjectGroup Kind = "got"
	// KindObjectVersion — версия бинарного объекта
	KindObjectVersion Kind = "obj"
	// KindTransaction — транзакция
	KindTransaction Kind = "tx"
	// KindProject — проект
	KindProject Kind = "pr"
)

// Issuer выпускает идентификаторы сущностей.
type Issuer interface {
	// NewID возвращает новый уникальный идентификатор указанного вида.
	NewID(kind Kind) string
}

// UUIDIssuer — Issuer на основе UUID v4 с привязкой к тенанту.
type UUIDIssuer struct {
	tenant int
}

// NewUUIDIssuer создаёт Issuer для указанного тенанта.
func NewUUIDIssuer(tenant int) *UUIDIssuer {
	return &UUIDIssuer{tenant: tenant}
}

// NewID возвращает идентификатор вида "au-0-8f14e45f-....".
func (i *UUIDIssuer) NewID(kind Kind) string {
	return fmt.Sprintf("%s-%d-%s", kind, i.tenant, uuid.New().String())
}
