// Пакет model — доменные модели Collect Module.
// Unit и ObjectGroup хранятся в MongoDB, Transaction и Project — в PostgreSQL.
package model

// DescriptionLevel — уровень описания архивной единицы.
type DescriptionLevel string

const (
	// LevelSeries — серия (синтетическая единица точки прикрепления)
	LevelSeries DescriptionLevel = "Series"
	// LevelRecordGroup — группа документов (директория архива)
	LevelRecordGroup DescriptionLevel = "RecordGrp"
	// LevelItem — единица хранения (файл архива)
	LevelItem DescriptionLevel = "Item"
)

// Management — управляющий блок единицы. Единственная поддерживаемая
// директива — прикрепление поддерева к внешней единице платформы.
type Management struct {
	// AttachmentUnitID — идентификатор внешней единицы, к которой
	// прикрепляется поддерево транзакции
	AttachmentUnitID string `bson:"attachmentUnitId,omitempty" json:"attachment_unit_id,omitempty"`
}

// Unit — узел архивной иерархии транзакции.
// Единица без родителя и без директивы прикрепления — корень своей транзакции.
type Unit struct {
	// ID — идентификатор единицы
	ID string `bson:"_id" json:"id"`
	// TransactionID — идентификатор породившей транзакции (opi)
	TransactionID string `bson:"opi" json:"transaction_id"`
	// Title — название единицы (имя записи архива)
	Title string `bson:"title" json:"title"`
	// DescriptionLevel — уровень описания
	DescriptionLevel DescriptionLevel `bson:"descriptionLevel" json:"description_level"`
	// ParentID — идентификатор непосредственного родителя (пустая строка — корень)
	ParentID string `bson:"parentId,omitempty" json:"parent_id,omitempty"`
	// AncestorIDs — полная цепочка предков от корня к родителю
	AncestorIDs []string `bson:"ancestorIds,omitempty" json:"ancestor_ids,omitempty"`
	// ObjectGroupID — идентификатор прикреплённой группы объектов
	ObjectGroupID string `bson:"objectGroupId,omitempty" json:"object_group_id,omitempty"`
	// Management — управляющий блок (опционально)
	Management *Management `bson:"management,omitempty" json:"management,omitempty"`
}

// IsRoot сообщает, является ли единица корнем своей транзакции.
func (u *Unit) IsRoot() bool {
	return u.ParentID == "" && (u.Management == nil || u.Management.AttachmentUnitID == "")
}

// UnitSummary — проекция единицы для восстановления путей:
// только id, название, родитель и цепочка предков.
type UnitSummary struct {
	ID          string   `bson:"_id"`
	Title       string   `bson:"title"`
	ParentID    string   `bson:"parentId,omitempty"`
	AncestorIDs []string `bson:"ancestorIds,omitempty"`
}

// UnitRef — проекция единицы для батчевого удаления:
// только id и ссылка на группу объектов.
type UnitRef struct {
	ID            string `bson:"_id"`
	ObjectGroupID string `bson:"objectGroupId,omitempty"`
}
