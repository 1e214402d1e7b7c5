// objectgroup.go — модель группы объектов: квалификаторы и версии бинарных объектов.
package model

// Usage — категория использования бинарного объекта (квалификатор).
type Usage string

const (
	// UsageBinaryMaster — основной (мастер) экземпляр
	UsageBinaryMaster Usage = "BinaryMaster"
	// UsageDissemination — экземпляр для выдачи
	UsageDissemination Usage = "Dissemination"
	// UsageThumbnail — миниатюра
	UsageThumbnail Usage = "Thumbnail"
	// UsageTextContent — извлечённый текст
	UsageTextContent Usage = "TextContent"
)

// ValidUsage проверяет, что категория использования известна.
func ValidUsage(u Usage) bool {
	switch u {
	case UsageBinaryMaster, UsageDissemination, UsageThumbnail, UsageTextContent:
		return true
	}
	return false
}

// FormatIdentification — результат определения формата файла.
type FormatIdentification struct {
	// FormatID — идентификатор формата
	FormatID string `bson:"formatId" json:"format_id"`
	// MimeType — MIME-тип
	MimeType string `bson:"mimeType" json:"mime_type"`
	// Label — человекочитаемое название формата
	Label string `bson:"label" json:"label"`
}

// FileInfo — сведения об исходном файле версии.
type FileInfo struct {
	// Filename — оригинальное имя файла
	Filename string `bson:"filename" json:"filename"`
}

// ObjectVersion — одна неизменяемая версия бинарного объекта внутри квалификатора.
// Номера версий внутри квалификатора уникальны и непрерывны, начиная с 1.
type ObjectVersion struct {
	// ID — идентификатор версии
	ID string `bson:"_id" json:"id"`
	// TransactionID — идентификатор породившей транзакции (opi)
	TransactionID string `bson:"opi" json:"transaction_id"`
	// DataVersion — строка вида "BinaryMaster_1"
	DataVersion string `bson:"dataVersion" json:"data_version"`
	// Number — порядковый номер версии внутри квалификатора (с 1)
	Number int `bson:"number" json:"number"`
	// URI — путь объекта относительно контейнера транзакции
	URI string `bson:"uri,omitempty" json:"uri,omitempty"`
	// MessageDigest — дайджест содержимого
	MessageDigest string `bson:"messageDigest,omitempty" json:"message_digest,omitempty"`
	// Algorithm — алгоритм дайджеста
	Algorithm string `bson:"algorithm,omitempty" json:"algorithm,omitempty"`
	// Size — размер в байтах
	Size int64 `bson:"size" json:"size"`
	// FileInfo — сведения об исходном файле
	FileInfo FileInfo `bson:"fileInfo" json:"file_info"`
	// Format — результат определения формата (best-effort, может отсутствовать)
	Format *FormatIdentification `bson:"format,omitempty" json:"format,omitempty"`
}

// Qualifier — квалификатор: категория использования с упорядоченным
// списком версий.
type Qualifier struct {
	// Usage — категория использования
	Usage Usage `bson:"usage" json:"usage"`
	// Versions — версии в порядке возрастания номера
	Versions []ObjectVersion `bson:"versions" json:"versions"`
}

// LastVersion возвращает максимальный номер версии квалификатора.
// Для пустого квалификатора возвращает 0.
func (q *Qualifier) LastVersion() int {
	last := 0
	for _, v := range q.Versions {
		if v.Number > last {
			last = v.Number
		}
	}
	return last
}

// HasVersion проверяет занятость номера версии.
func (q *Qualifier) HasVersion(number int) bool {
	for _, v := range q.Versions {
		if v.Number == number {
			return true
		}
	}
	return false
}

// ObjectGroup — группа бинарных объектов единицы. Создаётся лениво
// при первом прикреплении бинарного объекта.
type ObjectGroup struct {
	// ID — идентификатор группы
	ID string `bson:"_id" json:"id"`
	// TransactionID — идентификатор породившей транзакции (opi)
	TransactionID string `bson:"opi" json:"transaction_id"`
	// FileInfo — сведения о первом прикреплённом файле
	FileInfo FileInfo `bson:"fileInfo" json:"file_info"`
	// Qualifiers — квалификаторы группы
	Qualifiers []Qualifier `bson:"qualifiers" json:"qualifiers"`
}

// FindQualifier возвращает квалификатор по категории использования или nil.
func (g *ObjectGroup) FindQualifier(usage Usage) *Qualifier {
	for i := range g.Qualifiers {
		if g.Qualifiers[i].Usage == usage {
			return &g.Qualifiers[i]
		}
	}
	return nil
}
