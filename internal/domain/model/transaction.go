// transaction.go — модели транзакции (партии приёма) и проекта.
package model

import (
	"time"

	"github.com/arturkryukov/arkhiv/collect-module/internal/domain/status"
)

// Transaction — одна партия приёма с собственным жизненным циклом
// и изолированным контейнером workspace.
type Transaction struct {
	// ID — идентификатор транзакции (он же имя контейнера workspace)
	ID string `json:"id"`
	// Name — человекочитаемое имя
	Name string `json:"name"`
	// ProjectID — идентификатор проекта-владельца
	ProjectID string `json:"project_id"`
	// Tenant — номер тенанта
	Tenant int `json:"tenant"`
	// Status — текущий статус жизненного цикла
	Status status.Status `json:"status"`
	// OperationID — идентификатор операции платформы (заполняется при отправке)
	OperationID string `json:"operation_id,omitempty"`
	// CreatedAt, UpdatedAt — отметки времени создания и последнего изменения
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project — проект: контекст приёма с опциональными точками прикрепления.
// С точки зрения транзакции проект только читается.
type Project struct {
	// ID — идентификатор проекта
	ID string `json:"id"`
	// Name — имя проекта
	Name string `json:"name"`
	// Tenant — номер тенанта
	Tenant int `json:"tenant"`
	// StaticAttachmentID — внешняя единица, к которой прикрепляется
	// всё дерево транзакции (опционально)
	StaticAttachmentID string `json:"static_attachment_id,omitempty"`
	// DynamicAttachmentKey — ключ метаданных для динамического прикрепления (опционально)
	DynamicAttachmentKey string `json:"dynamic_attachment_key,omitempty"`
	// CreatedAt, UpdatedAt — отметки времени
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
